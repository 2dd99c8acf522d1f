package medications

import (
	"context"
	"time"

	"medication-reminder/internal/domain/streak"
)

type Repository interface {
	Create(ctx context.Context, m Medication, slots []Slot, st streak.Streak) error
	GetByID(ctx context.Context, id string) (Medication, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]Medication, error)
	Delete(ctx context.Context, id string) error

	GetState(ctx context.Context, medicationID string) (State, error)
	// Commit aplica una transición completa o nada.
	// Si la revisión guardada no coincide con ExpectedRevision => ErrConcurrentModification.
	Commit(ctx context.Context, c Commit) error

	ListEvents(ctx context.Context, medicationID string, filter EventFilter) ([]DoseEvent, error)
	// ListDueSlots devuelve los slots actionable (upcoming, o missed todavía sin
	// avanzar) con NextReminderAt <= before.
	ListDueSlots(ctx context.Context, before time.Time, limit int) ([]Slot, error)
}

type EventFilter struct {
	Actions []Action
	From    *time.Time
	To      *time.Time
	Limit   int // <= 0: sin límite
	// Ascending devuelve en orden cronológico (replay); por defecto más reciente primero.
	Ascending bool
}
