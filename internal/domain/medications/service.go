package medications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"medication-reminder/internal/domain/frequency"
	"medication-reminder/internal/domain/schedule"
	"medication-reminder/internal/domain/streak"
	"medication-reminder/internal/notify"
	"medication-reminder/internal/platform/logger"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrNotFound               = errors.New("not found")
	ErrSlotNotFound           = errors.New("slot not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)

type Service struct {
	repo Repository
	log  logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		repo: repo,
		log:  log.With(map[string]any{"service": "medications"}),
		now:  time.Now,
	}
}

// WithClock fija el reloj del servicio (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

type InventoryInput struct {
	Quantity        float64
	DoseAmount      float64
	RefillThreshold float64
}

type CreateInput struct {
	Name         string
	Dosage       string
	Instructions string

	Frequency string   // tag o texto legacy ("every_6_hours")
	Hours     float64  // every_X_hours / custom
	Times     []string // specific_times, "HH:MM"
	Timezone  string

	// FirstDoseAt opcional; ver seedSlots.
	FirstDoseAt *time.Time

	Channels []string
	Contact  Contact

	Inventory *InventoryInput
}

func (s *Service) Create(ctx context.Context, ownerUserID string, in CreateInput) (Medication, []Slot, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return Medication{}, nil, ErrInvalidInput
	}
	if strings.TrimSpace(in.Name) == "" {
		return Medication{}, nil, fmt.Errorf("%w: name required", ErrInvalidInput)
	}

	desc, err := frequency.ParseDescriptor(in.Frequency, in.Hours, in.Times)
	if err != nil {
		return Medication{}, nil, err
	}
	rule, err := frequency.Resolve(desc)
	if err != nil {
		return Medication{}, nil, err
	}

	tz := strings.TrimSpace(in.Timezone)
	loc := time.UTC
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return Medication{}, nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, tz)
		}
	}

	channels := make([]notify.Channel, 0, len(in.Channels))
	for _, raw := range in.Channels {
		c, err := notify.ParseChannel(raw)
		if err != nil {
			return Medication{}, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		channels = append(channels, c)
	}

	now := s.now()
	m := Medication{
		ID:           uuid.NewString(),
		OwnerUserID:  ownerUserID,
		Name:         strings.TrimSpace(in.Name),
		Dosage:       strings.TrimSpace(in.Dosage),
		Instructions: strings.TrimSpace(in.Instructions),
		Frequency:    desc,
		Timezone:     tz,
		Channels:     channels,
		Contact: Contact{
			Email:    strings.TrimSpace(in.Contact.Email),
			Phone:    strings.TrimSpace(in.Contact.Phone),
			DeviceID: strings.TrimSpace(in.Contact.DeviceID),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if in.Inventory != nil {
		inv, err := newInventory(m.ID, *in.Inventory, now)
		if err != nil {
			return Medication{}, nil, err
		}
		m.Inventory = &inv
	}

	slots, err := seedSlots(m.ID, rule, desc, now.In(loc), in.FirstDoseAt)
	if err != nil {
		return Medication{}, nil, err
	}

	st := streak.New(m.ID)
	st.UpdatedAt = now

	if err := s.repo.Create(ctx, m, slots, st); err != nil {
		return Medication{}, nil, err
	}

	s.log.Info("medication created", map[string]any{
		"medication_id": m.ID,
		"frequency":     desc.String(),
		"slots":         len(slots),
	})
	return m, slots, nil
}

func newInventory(medicationID string, in InventoryInput, now time.Time) (Inventory, error) {
	if in.Quantity < 0 || in.RefillThreshold < 0 || in.DoseAmount < 0 {
		return Inventory{}, fmt.Errorf("%w: inventory values must be >= 0", ErrInvalidInput)
	}
	dose := in.DoseAmount
	if dose == 0 {
		dose = 1
	}
	return Inventory{
		MedicationID:    medicationID,
		Quantity:        in.Quantity,
		DoseAmount:      dose,
		RefillThreshold: in.RefillThreshold,
		UpdatedAt:       now,
	}, nil
}

// seedSlots arma los slots iniciales: uno rolling para intervalos, uno por horario
// para specific_times. Solo el primero a disparar queda con NextReminderAt.
func seedSlots(medicationID string, rule frequency.Rule, desc frequency.Descriptor, now time.Time, firstDose *time.Time) ([]Slot, error) {
	var slots []Slot

	switch rule.Kind {
	case frequency.KindSpecificTimes:
		// Position = índice en la lista original; el orden por hora es estable.
		for i, raw := range desc.Times {
			t, err := frequency.ParseTimeOfDay(raw)
			if err != nil {
				return nil, err
			}
			tod := t
			slots = append(slots, Slot{
				ID:           uuid.NewString(),
				MedicationID: medicationID,
				TimeOfDay:    &tod,
				Position:     i,
				Status:       SlotUpcoming,
				UpdatedAt:    now,
			})
		}
		SortSlots(slots)
	default:
		slots = []Slot{{
			ID:           uuid.NewString(),
			MedicationID: medicationID,
			Status:       SlotUpcoming,
			UpdatedAt:    now,
		}}
	}

	from := now
	if firstDose != nil && !firstDose.IsZero() {
		// intervalos: el primer recordatorio es FirstDoseAt.
		// specific_times: el primer horario >= FirstDoseAt.
		from = firstDose.In(now.Location()).Add(-time.Second)
		if rule.Kind == frequency.KindFixedInterval {
			slots[0].Schedule(firstDose.In(now.Location()))
			return slots, nil
		}
	}

	next, err := schedule.FirstReminder(rule, from, SlotTimes(slots))
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].ID == next.SlotID || (next.SlotID == "" && i == 0) {
			slots[i].Schedule(next.At)
			break
		}
	}
	return slots, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Medication, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Medication{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, ownerUserID string) ([]Medication, error) {
	return s.repo.ListByOwner(ctx, ownerUserID)
}

// Delete es explícito; nunca se borra una medicación implícitamente.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidInput
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("medication deleted", map[string]any{"medication_id": id})
	return nil
}

func (s *Service) State(ctx context.Context, id string) (State, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return State{}, ErrInvalidInput
	}
	return s.repo.GetState(ctx, id)
}

func (s *Service) History(ctx context.Context, id string, filter EventFilter) ([]DoseEvent, error) {
	return s.repo.ListEvents(ctx, id, filter)
}

// VerifyStreak recalcula el streak desde el historial y lo compara con el guardado.
func (s *Service) VerifyStreak(ctx context.Context, id string) (stored streak.Streak, replayed streak.Streak, err error) {
	st, err := s.repo.GetState(ctx, id)
	if err != nil {
		return streak.Streak{}, streak.Streak{}, err
	}
	events, err := s.repo.ListEvents(ctx, id, EventFilter{Ascending: true})
	if err != nil {
		return streak.Streak{}, streak.Streak{}, err
	}
	return st.Streak, streak.Replay(id, StreakEntries(events)), nil
}
