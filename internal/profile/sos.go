package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrRequestNotFound = errors.New("sos request not found")

// SOSRequest is the slice of an SOS record the notifier cares about.
type SOSRequest struct {
	Urgency  string `json:"urgency"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

// SOSClient enriches match notifications with request details. Lookups are
// best-effort: the message falls back to a generic location on any failure.
type SOSClient struct {
	baseURL string
	timeout time.Duration
	httpc   *http.Client
	log     *zap.Logger
}

func NewSOSClient(cfg Config, httpc *http.Client) *SOSClient {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SOSClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		httpc:   httpc,
		log:     zap.L().With(zap.String("component", "profile.sos_client")),
	}
}

func (c *SOSClient) WithLogger(l *zap.Logger) *SOSClient {
	if l == nil {
		return c
	}
	cp := *c
	cp.log = l.With(zap.String("component", "profile.sos_client"))
	return &cp
}

func (c *SOSClient) GetRequest(ctx context.Context, requestID string) (*SOSRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/sos/requests/%s", c.baseURL, requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ErrRequestNotFound
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Warn("could not fetch request details", zap.String("request_id", requestID), zap.Error(err))
		return nil, ErrRequestNotFound
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("sos service status", zap.String("request_id", requestID), zap.Int("status", resp.StatusCode))
		return nil, ErrRequestNotFound
	}

	var sr SOSRequest
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&sr); err != nil {
		c.log.Warn("decode request details", zap.String("request_id", requestID), zap.Error(err))
		return nil, ErrRequestNotFound
	}
	return &sr, nil
}
