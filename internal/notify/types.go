package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDispatchFailure   = errors.New("dispatch failure")
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrChannelNotAllowed = errors.New("channel not allowed by plan")
	ErrNoSender          = errors.New("channel sender not configured")
	ErrNoRecipient       = errors.New("missing recipient for channel")
)

// Channel ∈ {email, sms, push, device}
// @Enum email, sms, push, device
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelSMS    Channel = "sms"
	ChannelPush   Channel = "push"
	ChannelDevice Channel = "device"
)

func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelDevice:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// Kind distingue el origen de la notificación.
type Kind string

const (
	KindDoseDue   Kind = "dose_due"   // recordatorio: llegó next_reminder_at
	KindDoseEvent Kind = "dose_event" // se registró una transición
	KindLowSupply Kind = "low_supply" // inventario bajo o agotado
)

type Recipient struct {
	UserID   string
	Email    string
	Phone    string
	DeviceID string
}

type Notification struct {
	ID   string
	Kind Kind

	MedicationID   string
	MedicationName string
	Dosage         string

	EventID     string
	Action      string
	ScheduledAt time.Time

	NextReminderAt  *time.Time
	InventoryStatus string
	Quantity        float64

	Recipient Recipient
	CreatedAt time.Time
}

// ChannelResult es el resultado de un canal. Err envuelve ErrDispatchFailure.
type ChannelResult struct {
	Channel     Channel
	OK          bool
	Err         error
	AttemptedAt time.Time
	Duration    time.Duration
}

// Sender entrega una notificación por un canal concreto.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, n Notification) error
}

// Delivery es el registro persistido por canal.
type Delivery struct {
	ID             string
	NotificationID string
	MedicationID   string
	EventID        string
	Kind           Kind
	Channel        Channel
	OK             bool
	Error          string
	AttemptedAt    time.Time
}

type DeliveryRepository interface {
	Record(ctx context.Context, ds []Delivery) error
	ListByMedication(ctx context.Context, medicationID string, limit int) ([]Delivery, error)
}

// Failed devuelve solo los resultados con error.
func Failed(results []ChannelResult) []ChannelResult {
	out := make([]ChannelResult, 0)
	for _, r := range results {
		if !r.OK {
			out = append(out, r)
		}
	}
	return out
}
