package sendgrid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medication-reminder/internal/notify"
	"medication-reminder/internal/platform/httpclient"
)

const (
	DefaultBaseURL = "https://api.sendgrid.com"
	sendPath       = "/v3/mail/send"
)

var ErrNotConfigured = errors.New("sendgrid not configured")

type Config struct {
	BaseURL   string // default DefaultBaseURL
	APIKey    string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// Sender entrega notificaciones por email usando la API v3 de SendGrid.
type Sender struct {
	http *httpclient.Client
	cfg  Config
}

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	hc, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Sender{http: hc, cfg: cfg}, nil
}

func (s *Sender) Channel() notify.Channel { return notify.ChannelEmail }

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To []address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	CustomArgs       map[string]string `json:"custom_args,omitempty"`
}

func (s *Sender) Send(ctx context.Context, n notify.Notification) error {
	to := strings.TrimSpace(n.Recipient.Email)
	if to == "" {
		return notify.ErrNoRecipient
	}

	req := mailRequest{
		Personalizations: []personalization{{To: []address{{Email: to}}}},
		From:             address{Email: s.cfg.FromEmail, Name: s.cfg.FromName},
		Subject:          notify.Subject(n),
		Content:          []content{{Type: "text/plain", Value: notify.Body(n)}},
		CustomArgs: map[string]string{
			"notification_id": n.ID,
			"medication_id":   n.MedicationID,
			"kind":            string(n.Kind),
		},
	}

	err := s.http.DoJSON(ctx, http.MethodPost, sendPath,
		map[string]string{"Authorization": "Bearer " + s.cfg.APIKey},
		req, nil)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	return nil
}
