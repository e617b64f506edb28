package channel

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rescuemesh/notification-service/internal/domain/notification"
)

// SendError is a typed delivery failure. The orchestrator aggregates all
// kinds the same way and keeps the kind for observability.
type SendError struct {
	Kind notification.FailKind
	Err  error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }

func failf(kind notification.FailKind, err error) *SendError {
	return &SendError{Kind: kind, Err: err}
}

// Classify maps an adapter error to a failure kind.
func Classify(err error) notification.FailKind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return notification.FailTimeout
	}
	return notification.FailProvider
}

type SMSConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Region   string        `mapstructure:"region"`
	SenderID string        `mapstructure:"sender_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PushConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	GatewayURL string        `mapstructure:"gateway_url"`
	ServerKey  string        `mapstructure:"server_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type WhatsAppConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	PhoneID string        `mapstructure:"phone_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	SMS      SMSConfig      `mapstructure:"sms"`
	Push     PushConfig     `mapstructure:"push"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
}

// BuildSenders performs strategy selection once at startup: a disabled
// channel is absent from the map (never attempted), an enabled channel
// without credentials gets the mock sender. The hot send path never
// branches on configuration.
func BuildSenders(ctx context.Context, cfg Config, httpc *http.Client, log *zap.Logger) (map[notification.Channel]notification.Sender, error) {
	senders := make(map[notification.Channel]notification.Sender, 3)

	if cfg.SMS.Enabled {
		if cfg.SMS.Region != "" {
			s, err := NewSMSSender(ctx, cfg.SMS)
			if err != nil {
				return nil, err
			}
			senders[notification.ChannelSMS] = s
		} else {
			log.Warn("sms credentials not configured, using mock sender")
			senders[notification.ChannelSMS] = NewMockSender(notification.ChannelSMS, log)
		}
	}

	if cfg.Push.Enabled {
		if cfg.Push.GatewayURL != "" && cfg.Push.ServerKey != "" {
			senders[notification.ChannelPush] = NewPushSender(cfg.Push, httpc)
		} else {
			log.Warn("push credentials not configured, using mock sender")
			senders[notification.ChannelPush] = NewMockSender(notification.ChannelPush, log)
		}
	}

	if cfg.WhatsApp.Enabled {
		if cfg.WhatsApp.BaseURL != "" && cfg.WhatsApp.Token != "" {
			senders[notification.ChannelWhatsApp] = NewWhatsAppSender(cfg.WhatsApp, httpc)
		} else {
			log.Warn("whatsapp credentials not configured, using mock sender")
			senders[notification.ChannelWhatsApp] = NewMockSender(notification.ChannelWhatsApp, log)
		}
	}

	return senders, nil
}
