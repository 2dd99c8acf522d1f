package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/domain/streak"
)

var (
	ErrNotFound = medications.ErrNotFound
)

type medicationRepo struct {
	mu sync.RWMutex

	byID    map[string]medications.Medication
	slots   map[string][]medications.Slot // medicationID -> slots ordenados
	streaks map[string]streak.Streak
	events  map[string][]medications.DoseEvent // medicationID -> append-only
}

func NewMedicationRepo() medications.Repository {
	return &medicationRepo{
		byID:    make(map[string]medications.Medication),
		slots:   make(map[string][]medications.Slot),
		streaks: make(map[string]streak.Streak),
		events:  make(map[string][]medications.DoseEvent),
	}
}

func (r *medicationRepo) Create(ctx context.Context, m medications.Medication, slots []medications.Slot, st streak.Streak) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(m.ID) == "" {
		return errors.New("medication id required")
	}
	if _, exists := r.byID[m.ID]; exists {
		return errors.New("medication already exists")
	}

	r.byID[m.ID] = cloneMedication(m)
	r.slots[m.ID] = cloneSlots(slots)
	r.streaks[m.ID] = cloneStreak(st)
	r.events[m.ID] = nil
	return nil
}

func (r *medicationRepo) GetByID(ctx context.Context, id string) (medications.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return medications.Medication{}, ErrNotFound
	}
	return cloneMedication(m), nil
}

func (r *medicationRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]medications.Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]medications.Medication, 0)
	for _, m := range r.byID {
		if m.OwnerUserID == ownerUserID {
			out = append(out, cloneMedication(m))
		}
	}

	// Orden estable por created_at asc (solo para consistencia en dev)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *medicationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	delete(r.slots, id)
	delete(r.streaks, id)
	delete(r.events, id)
	return nil
}

func (r *medicationRepo) GetState(ctx context.Context, medicationID string) (medications.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[medicationID]
	if !ok {
		return medications.State{}, ErrNotFound
	}
	return medications.State{
		Medication: cloneMedication(m),
		Slots:      cloneSlots(r.slots[medicationID]),
		Streak:     cloneStreak(r.streaks[medicationID]),
	}, nil
}

// Commit valida todo antes de escribir: o entra completo o no entra nada.
func (r *medicationRepo) Commit(ctx context.Context, c medications.Commit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[c.MedicationID]
	if !ok {
		return ErrNotFound
	}
	if m.Revision != c.ExpectedRevision {
		return medications.ErrConcurrentModification
	}

	current := r.slots[c.MedicationID]
	idx := make(map[string]int, len(current))
	for i, s := range current {
		idx[s.ID] = i
	}
	for _, s := range c.Slots {
		if _, ok := idx[s.ID]; !ok {
			return medications.ErrSlotNotFound
		}
	}

	slots := cloneSlots(current)
	for _, s := range c.Slots {
		slots[idx[s.ID]] = cloneSlot(s)
	}
	r.slots[c.MedicationID] = slots

	if c.Streak != nil {
		r.streaks[c.MedicationID] = cloneStreak(*c.Streak)
	}
	if c.Inventory != nil {
		inv := *c.Inventory
		m.Inventory = &inv
	}
	for _, e := range c.Events {
		r.events[c.MedicationID] = append(r.events[c.MedicationID], cloneEvent(e))
	}

	m.Revision++
	if !c.At.IsZero() {
		m.UpdatedAt = c.At
	}
	r.byID[c.MedicationID] = m
	return nil
}

func (r *medicationRepo) ListEvents(ctx context.Context, medicationID string, filter medications.EventFilter) ([]medications.DoseEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.byID[medicationID]; !ok {
		return nil, ErrNotFound
	}

	var allowed map[medications.Action]struct{}
	if len(filter.Actions) > 0 {
		allowed = make(map[medications.Action]struct{}, len(filter.Actions))
		for _, a := range filter.Actions {
			allowed[a] = struct{}{}
		}
	}

	out := make([]medications.DoseEvent, 0)
	for _, e := range r.events[medicationID] {
		if allowed != nil {
			if _, ok := allowed[e.Action]; !ok {
				continue
			}
		}
		if filter.From != nil && e.ScheduledAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.ScheduledAt.After(*filter.To) {
			continue
		}
		out = append(out, cloneEvent(e))
	}

	// El slice interno ya está en orden de inserción (cronológico).
	if !filter.Ascending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *medicationRepo) ListDueSlots(ctx context.Context, before time.Time, limit int) ([]medications.Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]medications.Slot, 0)
	for _, slots := range r.slots {
		for _, s := range slots {
			if s.NextReminderAt == nil {
				continue
			}
			if s.Status != medications.SlotUpcoming && s.Status != medications.SlotMissed {
				continue
			}
			if s.NextReminderAt.After(before) {
				continue
			}
			out = append(out, cloneSlot(s))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].NextReminderAt.Before(*out[j].NextReminderAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// clones: el repo nunca comparte punteros ni slices con el caller.

func cloneMedication(m medications.Medication) medications.Medication {
	if m.Channels != nil {
		m.Channels = append(m.Channels[:0:0], m.Channels...)
	}
	if m.Frequency.Times != nil {
		m.Frequency.Times = append([]string(nil), m.Frequency.Times...)
	}
	if m.Inventory != nil {
		inv := *m.Inventory
		m.Inventory = &inv
	}
	return m
}

func cloneSlots(in []medications.Slot) []medications.Slot {
	out := make([]medications.Slot, len(in))
	for i, s := range in {
		out[i] = cloneSlot(s)
	}
	return out
}

func cloneSlot(s medications.Slot) medications.Slot {
	if s.TimeOfDay != nil {
		t := *s.TimeOfDay
		s.TimeOfDay = &t
	}
	s.LastTakenAt = cloneTime(s.LastTakenAt)
	s.ScheduledAt = cloneTime(s.ScheduledAt)
	s.NextReminderAt = cloneTime(s.NextReminderAt)
	s.LastNotifiedAt = cloneTime(s.LastNotifiedAt)
	return s
}

func cloneStreak(s streak.Streak) streak.Streak {
	s.LastTaken = cloneTime(s.LastTaken)
	return s
}

func cloneEvent(e medications.DoseEvent) medications.DoseEvent {
	e.ActualAt = cloneTime(e.ActualAt)
	return e
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
