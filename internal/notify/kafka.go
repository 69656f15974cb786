package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	EventNotificationRequested = "NotificationRequested"
	producerName               = "farmmarket-sweeper"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type NotificationPayload struct {
	NotificationID string `json:"notification_id"`
	OrderID        int64  `json:"order_id"`
	RecipientID    int64  `json:"recipient_id"`
	RecipientName  string `json:"recipient_name"`
	Phone          string `json:"phone,omitempty"`
	Kind           string `json:"kind"`
	Title          string `json:"title"`
	Body           string `json:"body"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaGateway は通知要求をトピックに書き、SMS側のconsumerに渡す。
// 書き込みは同期で、失敗は呼び出し側に返す。
type KafkaGateway struct {
	w   messageWriter
	now func() time.Time
}

func NewKafkaGateway(brokers []string, topic string) *KafkaGateway {
	return newKafkaGateway(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	})
}

func newKafkaGateway(w messageWriter) *KafkaGateway {
	return &KafkaGateway{w: w, now: time.Now}
}

func (g *KafkaGateway) Send(ctx context.Context, to Recipient, msg Message) error {
	payload, err := json.Marshal(NotificationPayload{
		NotificationID: msg.NotificationID,
		OrderID:        msg.OrderID,
		RecipientID:    to.UserID,
		RecipientName:  to.Name,
		Phone:          to.Phone,
		Kind:           msg.Kind,
		Title:          msg.Title,
		Body:           msg.Body,
	})
	if err != nil {
		return err
	}

	orderKey := strconv.FormatInt(msg.OrderID, 10)
	env, err := json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventNotificationRequested,
		EventVersion:  1,
		OccurredAt:    g.now().UTC(),
		Producer:      producerName,
		CorrelationID: orderKey,
		Payload:       payload,
	})
	if err != nil {
		return err
	}

	//同じ注文の通知は同じパーティションへ
	return g.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderKey),
		Value: env,
		Time:  g.now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventNotificationRequested)},
			{Key: "notification_id", Value: []byte(msg.NotificationID)},
		},
	})
}

func (g *KafkaGateway) Close() error {
	return g.w.Close()
}
