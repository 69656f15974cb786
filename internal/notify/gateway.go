// Package notify は通知ゲートウェイ（SMSなどの配送側）への出口。
// 配送の仕組み自体はここでは持たず、渡すだけ。
package notify

import (
	"context"

	"go.uber.org/zap"
)

type Recipient struct {
	UserID int64
	Name   string
	Phone  string
}

type Message struct {
	NotificationID string
	OrderID        int64
	Kind           string
	Title          string
	Body           string
}

// Gateway はベストエフォートで1回送る。再送は呼び出し側が決める。
type Gateway interface {
	Send(ctx context.Context, to Recipient, msg Message) error
}

// LogGateway はログに出すだけ（開発用）
type LogGateway struct {
	logger *zap.Logger
}

func NewLogGateway(logger *zap.Logger) *LogGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(_ context.Context, to Recipient, msg Message) error {
	g.logger.Info("notification",
		zap.String("notification_id", msg.NotificationID),
		zap.Int64("order_id", msg.OrderID),
		zap.Int64("recipient_id", to.UserID),
		zap.String("kind", msg.Kind),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
	)
	return nil
}
