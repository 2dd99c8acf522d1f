package plansfeatures

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medication-reminder/internal/platform/httpclient"
)

// NotificationsPrefix agrupa las capabilities de canales ("notifications:sms").
const NotificationsPrefix = "notifications:"

const apiKeyHeader = "X-Api-Key"

var (
	ErrPlansNotConfigured = errors.New("plans-features client not configured")
	ErrPlansUnauthorized  = errors.New("plans-features unauthorized")
	ErrPlansUpstream      = errors.New("plans-features upstream error")
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // default 5s
}

// Client consulta a plans-features qué canales de notificación habilita el
// plan de un usuario.
type Client struct {
	http   *httpclient.Client
	apiKey string
}

func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc, err := httpclient.NewWithBaseURL(strings.TrimSpace(cfg.BaseURL), timeout)
	if err != nil {
		return nil, err
	}
	return &Client{http: hc, apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.http != nil && c.http.BaseURL != "" && c.apiKey != ""
}

// Entitlements es lo que el plan habilita en notificaciones.
type Entitlements struct {
	Plan         string          `json:"plan"`
	Capabilities map[string]bool `json:"capabilities"`
}

// Allows acepta la capability exacta, "notifications:*" o "*".
func (e Entitlements) Allows(capability string) bool {
	capability = normalizeKey(capability)
	if e.Capabilities[capability] || e.Capabilities["*"] {
		return true
	}
	return strings.HasPrefix(capability, NotificationsPrefix) && e.Capabilities[NotificationsPrefix+"*"]
}

// NotificationEntitlements trae las capabilities de notificación del usuario.
// Un usuario sin plan (404) no tiene ningún canal habilitado.
func (c *Client) NotificationEntitlements(ctx context.Context, userID string) (Entitlements, error) {
	if !c.IsConfigured() {
		return Entitlements{}, ErrPlansNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Entitlements{}, errors.New("userID required")
	}

	var out Entitlements
	path := "/v1/users/" + url.PathEscape(userID) + "/capabilities?prefix=" + url.QueryEscape(NotificationsPrefix)
	err := c.http.DoJSON(ctx, http.MethodGet, path, map[string]string{apiKeyHeader: c.apiKey}, nil, &out)
	if err != nil {
		var he *httpclient.HTTPError
		switch {
		case errors.As(err, &he) && he.StatusCode == http.StatusNotFound:
			return Entitlements{Capabilities: map[string]bool{}}, nil
		case errors.As(err, &he) && (he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden):
			return Entitlements{}, ErrPlansUnauthorized
		}
		return Entitlements{}, fmt.Errorf("%w: %v", ErrPlansUpstream, err)
	}

	caps := make(map[string]bool, len(out.Capabilities))
	for k, v := range out.Capabilities {
		caps[normalizeKey(k)] = v
	}
	out.Capabilities = caps
	return out, nil
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
