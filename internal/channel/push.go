package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rescuemesh/notification-service/internal/domain/notification"
)

// PushSender posts to a push gateway that owns device-token lookup for a
// recipient id.
type PushSender struct {
	url     string
	key     string
	httpc   *http.Client
	timeout time.Duration
}

func NewPushSender(cfg PushConfig, httpc *http.Client) *PushSender {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &PushSender{
		url:     cfg.GatewayURL,
		key:     cfg.ServerKey,
		httpc:   httpc,
		timeout: orDefault(cfg.Timeout),
	}
}

func (s *PushSender) Name() notification.Channel { return notification.ChannelPush }

type pushRequest struct {
	RecipientID string         `json:"recipientId"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
}

type pushResponse struct {
	MessageID string `json:"messageId"`
}

func (s *PushSender) Send(ctx context.Context, target notification.Target, message string, payload map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(pushRequest{
		RecipientID: target.RecipientID,
		Title:       "RescueMesh Alert",
		Body:        message,
		Data:        payload,
	})
	if err != nil {
		return "", failf(notification.FailProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", failf(notification.FailProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.key)

	resp, err := s.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", failf(notification.FailTimeout, err)
		}
		return "", failf(notification.FailProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", failf(notification.FailProvider, fmt.Errorf("push gateway status %d", resp.StatusCode))
	}

	var pr pushResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&pr); err != nil || pr.MessageID == "" {
		// gateway accepted the message even if the body is unreadable
		return fmt.Sprintf("push-%d", time.Now().UnixNano()), nil
	}
	return pr.MessageID, nil
}
