package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medication-reminder/internal/notify"
	"medication-reminder/internal/platform/httpclient"
)

var ErrNotConfigured = errors.New("device gateway not configured")

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Sender avisa al dispensador físico (ESP32) a través del gateway HTTP.
// El gateway enciende el LED/buzzer del compartimento correspondiente.
type Sender struct {
	http   *httpclient.Client
	apiKey string
}

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	hc, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Sender{http: hc, apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func (s *Sender) Channel() notify.Channel { return notify.ChannelDevice }

type deviceCommand struct {
	NotificationID string `json:"notification_id"`
	Kind           string `json:"kind"`
	MedicationID   string `json:"medication_id"`
	Medication     string `json:"medication"`
	Dosage         string `json:"dosage,omitempty"`
	Action         string `json:"action,omitempty"`
	ScheduledAt    string `json:"scheduled_at,omitempty"` // RFC3339
	Message        string `json:"message"`
	// Alert: el dispositivo hace sonar el buzzer (dose_due / low_supply).
	Alert bool `json:"alert"`
}

func (s *Sender) Send(ctx context.Context, n notify.Notification) error {
	deviceID := strings.TrimSpace(n.Recipient.DeviceID)
	if deviceID == "" {
		return notify.ErrNoRecipient
	}

	cmd := deviceCommand{
		NotificationID: n.ID,
		Kind:           string(n.Kind),
		MedicationID:   n.MedicationID,
		Medication:     n.MedicationName,
		Dosage:         n.Dosage,
		Action:         n.Action,
		Message:        notify.Subject(n),
		Alert:          n.Kind != notify.KindDoseEvent,
	}
	if !n.ScheduledAt.IsZero() {
		cmd.ScheduledAt = n.ScheduledAt.Format(time.RFC3339)
	}

	headers := map[string]string{}
	if s.apiKey != "" {
		headers["X-Api-Key"] = s.apiKey
	}

	path := "/v1/devices/" + url.PathEscape(deviceID) + "/notify"
	if err := s.http.DoJSON(ctx, http.MethodPost, path, headers, cmd, nil); err != nil {
		return fmt.Errorf("device gateway: %w", err)
	}
	return nil
}
