package redispush

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"medication-reminder/internal/notify"
)

const DefaultPrefix = "medrem:push:"

// Message es el payload publicado; lo consumen los clientes conectados (app/web).
type Message struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	MedicationID   string     `json:"medication_id"`
	MedicationName string     `json:"medication_name"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	Action         string     `json:"action,omitempty"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	NextReminderAt *time.Time `json:"next_reminder_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Sender publica en el canal Redis del usuario (medrem:push:{userID}).
type Sender struct {
	rdb    redis.UniversalClient
	prefix string
	// RequireSubscriber: si nadie escucha, se reporta como fallo del canal.
	requireSubscriber bool
}

type Options struct {
	Prefix            string
	RequireSubscriber bool
}

func New(rdb redis.UniversalClient, opts Options) *Sender {
	p := opts.Prefix
	if p == "" {
		p = DefaultPrefix
	}
	return &Sender{rdb: rdb, prefix: p, requireSubscriber: opts.RequireSubscriber}
}

func (s *Sender) Channel() notify.Channel { return notify.ChannelPush }

// Topic devuelve el canal Redis de un usuario.
func (s *Sender) Topic(userID string) string {
	return s.prefix + userID
}

func (s *Sender) Send(ctx context.Context, n notify.Notification) error {
	userID := strings.TrimSpace(n.Recipient.UserID)
	if userID == "" {
		return notify.ErrNoRecipient
	}

	msg := Message{
		ID:             n.ID,
		Kind:           string(n.Kind),
		MedicationID:   n.MedicationID,
		MedicationName: n.MedicationName,
		Title:          notify.Subject(n),
		Body:           notify.Body(n),
		Action:         n.Action,
		NextReminderAt: n.NextReminderAt,
		CreatedAt:      n.CreatedAt,
	}
	if !n.ScheduledAt.IsZero() {
		t := n.ScheduledAt
		msg.ScheduledAt = &t
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redispush: marshal: %w", err)
	}

	receivers, err := s.rdb.Publish(ctx, s.Topic(userID), b).Result()
	if err != nil {
		return fmt.Errorf("redispush: publish: %w", err)
	}
	if s.requireSubscriber && receivers == 0 {
		return fmt.Errorf("redispush: no subscribers on %s", s.Topic(userID))
	}
	return nil
}
