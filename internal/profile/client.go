// Package profile holds the HTTP clients for the user-profile and SOS
// services. Both are best-effort collaborators: every failure mode folds
// into a single not-found result so callers degrade instead of aborting.
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

var ErrPhoneNotFound = errors.New("phone not found")

type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Client struct {
	baseURL string
	timeout time.Duration
	httpc   *http.Client
	log     *zap.Logger
}

func NewClient(cfg Config, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		httpc:   httpc,
		log:     zap.L().With(zap.String("component", "profile.client")),
	}
}

func (c *Client) WithLogger(l *zap.Logger) *Client {
	if l == nil {
		return c
	}
	cp := *c
	cp.log = l.With(zap.String("component", "profile.client"))
	return &cp
}

type userResponse struct {
	Profile struct {
		Phone string `json:"phone"`
	} `json:"profile"`
}

// ResolvePhone fetches the recipient's phone from the profile service.
// Timeout, non-2xx and a missing field all return ErrPhoneNotFound.
func (c *Client) ResolvePhone(ctx context.Context, recipientID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/users/%s", c.baseURL, recipientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", ErrPhoneNotFound
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Warn("could not fetch user details", zap.String("recipient_id", recipientID), zap.Error(err))
		return "", ErrPhoneNotFound
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("profile service status", zap.String("recipient_id", recipientID), zap.Int("status", resp.StatusCode))
		return "", ErrPhoneNotFound
	}

	var ur userResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ur); err != nil {
		c.log.Warn("decode user details", zap.String("recipient_id", recipientID), zap.Error(err))
		return "", ErrPhoneNotFound
	}
	if ur.Profile.Phone == "" {
		return "", ErrPhoneNotFound
	}
	return ur.Profile.Phone, nil
}
