package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaGateway_WritesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	g := newKafkaGateway(w)
	fixed := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	err := g.Send(context.Background(),
		Recipient{UserID: 3, Name: "Ana", Phone: "+639171234567"},
		Message{NotificationID: "n-1", OrderID: 42, Kind: "preorder_available", Title: "t", Body: "b"},
	)
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	assert.Equal(t, EventNotificationRequested, env.EventType)
	assert.Equal(t, "42", env.CorrelationID)
	assert.Equal(t, fixed, env.OccurredAt)
	assert.NotEmpty(t, env.EventID)

	var p NotificationPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "n-1", p.NotificationID)
	assert.Equal(t, "+639171234567", p.Phone)
	assert.Equal(t, int64(3), p.RecipientID)

	require.NoError(t, g.Close())
	assert.True(t, w.closed)
}

func TestKafkaGateway_PropagatesWriteError(t *testing.T) {
	g := newKafkaGateway(&fakeWriter{err: errors.New("broker unavailable")})
	err := g.Send(context.Background(), Recipient{UserID: 1}, Message{OrderID: 1})
	assert.EqualError(t, err, "broker unavailable")
}

func TestLogGateway(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	g := NewLogGateway(zap.New(core))

	require.NoError(t, g.Send(context.Background(), Recipient{UserID: 9}, Message{OrderID: 5, Kind: "order_placed"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(5), logs.All()[0].ContextMap()["order_id"])
}
