package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rescuemesh/notification-service/internal/domain/notification"
)

// WhatsAppSender posts text messages to a graph-style business API.
type WhatsAppSender struct {
	baseURL string
	token   string
	phoneID string
	httpc   *http.Client
	timeout time.Duration
}

func NewWhatsAppSender(cfg WhatsAppConfig, httpc *http.Client) *WhatsAppSender {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &WhatsAppSender{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		phoneID: cfg.PhoneID,
		httpc:   httpc,
		timeout: orDefault(cfg.Timeout),
	}
}

func (s *WhatsAppSender) Name() notification.Channel { return notification.ChannelWhatsApp }

type waRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type waResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (s *WhatsAppSender) Send(ctx context.Context, target notification.Target, message string, _ map[string]any) (string, error) {
	if target.Phone == "" {
		return "", failf(notification.FailTargetMissing, errors.New("recipient has no phone number"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wr := waRequest{MessagingProduct: "whatsapp", To: target.Phone, Type: "text"}
	wr.Text.Body = message
	body, err := json.Marshal(wr)
	if err != nil {
		return "", failf(notification.FailProvider, err)
	}

	url := s.baseURL + "/" + s.phoneID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", failf(notification.FailProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", failf(notification.FailTimeout, err)
		}
		return "", failf(notification.FailProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", failf(notification.FailProvider, fmt.Errorf("whatsapp api status %d", resp.StatusCode))
	}

	var wres waResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&wres); err != nil || len(wres.Messages) == 0 {
		return fmt.Sprintf("wa-%d", time.Now().UnixNano()), nil
	}
	return wres.Messages[0].ID, nil
}
