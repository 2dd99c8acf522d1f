package twilio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medication-reminder/internal/notify"
	"medication-reminder/internal/platform/httpclient"
)

const DefaultBaseURL = "https://api.twilio.com"

var ErrNotConfigured = errors.New("twilio not configured")

type Config struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string // número E.164 o Messaging Service SID (MG...)
	Timeout    time.Duration
}

// Sender entrega SMS con la Messages API de Twilio (form-encoded, basic auth).
type Sender struct {
	http *httpclient.Client
	cfg  Config
	auth string
}

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	hc, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Sender{
		http: hc,
		cfg:  cfg,
		auth: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.AccountSID+":"+cfg.AuthToken)),
	}, nil
}

func (s *Sender) Channel() notify.Channel { return notify.ChannelSMS }

type messageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

func (s *Sender) Send(ctx context.Context, n notify.Notification) error {
	to := strings.TrimSpace(n.Recipient.Phone)
	if to == "" {
		return notify.ErrNoRecipient
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("Body", notify.Body(n))
	if strings.HasPrefix(s.cfg.From, "MG") {
		form.Set("MessagingServiceSid", s.cfg.From)
	} else {
		form.Set("From", s.cfg.From)
	}

	var out messageResponse
	path := "/2010-04-01/Accounts/" + url.PathEscape(s.cfg.AccountSID) + "/Messages.json"
	if err := s.http.DoForm(ctx, http.MethodPost, path, map[string]string{"Authorization": s.auth}, form, &out); err != nil {
		return fmt.Errorf("twilio: %w", err)
	}
	if out.Status == "failed" || out.Status == "undelivered" {
		return fmt.Errorf("twilio: message %s %s", out.SID, out.Status)
	}
	return nil
}
