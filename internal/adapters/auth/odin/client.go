package odin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medication-reminder/internal/platform/httpclient"
	"medication-reminder/internal/ports/auth"
)

var (
	ErrOdinNotConfigured = errors.New("odin client not configured")
	ErrOdinUnauthorized  = errors.New("odin unauthorized")
	ErrOdinUpstream      = errors.New("odin upstream error")
)

const verifyPath = "/v1/tokens/verify"

type Config struct {
	BaseURL string
	APIKey  string

	APIKeyHeader string // default "X-Api-Key"
	Timeout      time.Duration
}

type Client struct {
	http         *httpclient.Client
	apiKey       string
	apiKeyHeader string
}

func NewClient(cfg Config) (*Client, error) {
	h := strings.TrimSpace(cfg.APIKeyHeader)
	if h == "" {
		h = "X-Api-Key"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc, err := httpclient.NewWithBaseURL(strings.TrimSpace(cfg.BaseURL), timeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:         hc,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		apiKeyHeader: h,
	}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.http != nil && c.http.BaseURL != "" && c.apiKey != ""
}

type verifyResponse struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Timezone string `json:"timezone"`
}

// VerifyToken valida el bearer token contra Odin y devuelve los claims.
func (c *Client) VerifyToken(ctx context.Context, token string) (auth.Claims, error) {
	if !c.IsConfigured() {
		return auth.Claims{}, ErrOdinNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrOdinUnauthorized
	}

	var out verifyResponse
	err := c.http.DoJSON(ctx, http.MethodPost, verifyPath,
		map[string]string{
			c.apiKeyHeader:  c.apiKey,
			"Authorization": "Bearer " + token,
		},
		map[string]string{"token": token},
		&out)
	if err != nil {
		var he *httpclient.HTTPError
		if errors.As(err, &he) && (he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden) {
			return auth.Claims{}, ErrOdinUnauthorized
		}
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrOdinUpstream, err)
	}

	out.UserID = strings.TrimSpace(out.UserID)
	if out.UserID == "" {
		return auth.Claims{}, errors.New("odin response missing user_id")
	}

	return auth.Claims{
		UserID:   out.UserID,
		Email:    strings.TrimSpace(out.Email),
		Phone:    strings.TrimSpace(out.Phone),
		Timezone: strings.TrimSpace(out.Timezone),
	}, nil
}
