package channel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rescuemesh/notification-service/internal/domain/notification"
)

// MockSender stands in for a channel whose credentials are absent. It logs
// the would-be delivery and reports success, mirroring development mode.
type MockSender struct {
	name notification.Channel
	log  *zap.Logger
}

func NewMockSender(name notification.Channel, log *zap.Logger) *MockSender {
	if log == nil {
		log = zap.L()
	}
	return &MockSender{name: name, log: log.With(zap.String("component", "channel.mock"), zap.String("channel", string(name)))}
}

func (s *MockSender) Name() notification.Channel { return s.name }

func (s *MockSender) Send(_ context.Context, target notification.Target, message string, _ map[string]any) (string, error) {
	s.log.Info("mock delivery",
		zap.String("recipient_id", target.RecipientID),
		zap.String("message", message),
	)
	return fmt.Sprintf("mock-%d", time.Now().UnixNano()), nil
}
