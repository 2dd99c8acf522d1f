package transitions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"medication-reminder/internal/domain/frequency"
	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/domain/schedule"
	"medication-reminder/internal/domain/streak"
	"medication-reminder/internal/notify"
	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/ports/lock"
)

var (
	ErrInvalidDelay = errors.New("invalid delay")
	ErrBadState     = errors.New("invalid state")
	ErrInvalidInput = medications.ErrInvalidInput

	ErrSlotNotFound           = medications.ErrSlotNotFound
	ErrConcurrentModification = medications.ErrConcurrentModification
	ErrUnknownFrequency       = frequency.ErrUnknownFrequency
	ErrInvalidInterval        = frequency.ErrInvalidInterval
)

// Notifier es el borde hacia el Notification Dispatcher.
// Se llama solo después de un commit exitoso y nunca se espera la entrega.
type Notifier interface {
	DispatchAsync(n notify.Notification, channels []notify.Channel)
}

type Options struct {
	Repo     medications.Repository
	Locker   lock.Locker
	Notifier Notifier // opcional
	Logger   logger.Logger
	Now      func() time.Time // default time.Now
}

// Engine es el único punto de entrada para mutar slots, streak e inventario
// de una medicación. Cada operación toma el lock de la medicación, lee el estado,
// arma un Commit y lo aplica de forma atómica.
type Engine struct {
	repo     medications.Repository
	locks    lock.Locker
	notifier Notifier
	log      logger.Logger
	now      func() time.Time
	newID    func() string
}

func NewEngine(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		repo:     opts.Repo,
		locks:    opts.Locker,
		notifier: opts.Notifier,
		log:      log.With(map[string]any{"service": "transitions"}),
		now:      now,
		newID:    uuid.NewString,
	}
}

type TakeInput struct {
	ActualAt *time.Time // default: now
	Quantity *float64   // default: Inventory.DoseAmount
}

type TakeResult struct {
	Event        medications.DoseEvent
	NextReminder time.Time
	NextSlotID   string
	Streak       streak.Streak

	Inventory       *medications.Inventory
	InventoryStatus medications.InventoryStatus
	// LowSupply es true si este take cruzó el umbral o agotó el stock.
	LowSupply bool
}

type SkipResult struct {
	Event        medications.DoseEvent
	NextReminder time.Time
	NextSlotID   string
	Streak       streak.Streak
}

type MissResult struct {
	Event  medications.DoseEvent
	Streak streak.Streak
}

type DelayResult struct {
	Event       medications.DoseEvent
	NewReminder time.Time
}

type AdvanceResult struct {
	NextReminder time.Time
	NextSlotID   string
}

type RefillResult struct {
	Inventory medications.Inventory
	Status    medications.InventoryStatus
}

// Take marca el dose como tomado, agenda el próximo, descuenta inventario y
// extiende el streak.
func (e *Engine) Take(ctx context.Context, medicationID, slotID string, in TakeInput) (TakeResult, error) {
	var (
		res      TakeResult
		notifyFn func(medications.Medication)
	)

	err := e.apply(ctx, medicationID, func(st medications.State, now time.Time) (medications.Commit, error) {
		slot, idx, ok := st.Slot(slotID)
		if !ok {
			return medications.Commit{}, ErrSlotNotFound
		}
		if err := checkTakeable(slot); err != nil {
			return medications.Commit{}, err
		}

		actual := now
		if in.ActualAt != nil && !in.ActualAt.IsZero() {
			actual = *in.ActualAt
		}

		rule, err := frequency.Resolve(st.Medication.Frequency)
		if err != nil {
			return medications.Commit{}, err
		}

		loc := st.Medication.Location()
		scheduled := scheduledAt(slot, actual, loc)
		rescheduled := slot.Actionable()

		var next schedule.Next
		if rescheduled {
			// intervalos: rolling desde la toma real; specific_times: desde el horario
			// programado del slot (un delay no lo corre)
			base := actual.In(loc)
			if rule.Kind == frequency.KindSpecificTimes {
				base = scheduled.In(loc)
			}
			next, err = schedule.NextSlot(rule, base, medications.SlotTimes(st.Slots))
			if err != nil {
				return medications.Commit{}, err
			}
		} else {
			// toma tardía de un dose ya perdido y avanzado: el schedule no se toca
			next = currentNext(st.Slots)
		}

		slot.Status = medications.SlotTaken
		slot.Taken = true
		takenAt := actual
		slot.LastTakenAt = &takenAt
		slot.Unschedule()
		slot.UpdatedAt = now
		st.Slots[idx] = slot

		slots := []medications.Slot{slot}
		if rescheduled {
			slots = advanceTo(st.Slots, next, now)
		}

		ev := medications.DoseEvent{
			ID:           e.newID(),
			MedicationID: medicationID,
			SlotID:       slot.ID,
			Action:       medications.ActionTaken,
			ScheduledAt:  scheduled,
			ActualAt:     &takenAt,
			RecordedAt:   now,
		}

		c := medications.Commit{Slots: slots}

		if inv := st.Medication.Inventory; inv != nil {
			updated := *inv
			qty := updated.DoseAmount
			if in.Quantity != nil {
				qty = *in.Quantity
			}
			if qty < 0 {
				return medications.Commit{}, fmt.Errorf("%w: quantity must be >= 0", ErrInvalidInput)
			}
			before := updated.Status()
			ev.Quantity = updated.Consume(qty)
			updated.UpdatedAt = now
			c.Inventory = &updated

			res.Inventory = &updated
			res.InventoryStatus = updated.Status()
			res.LowSupply = medications.Crossed(before, res.InventoryStatus)
		} else if in.Quantity != nil {
			ev.Quantity = *in.Quantity
		}

		sk := st.Streak
		sk.OnTaken(actual)
		sk.UpdatedAt = now
		c.Streak = &sk
		c.Events = []medications.DoseEvent{ev}

		res.Event = ev
		res.NextReminder = next.At
		res.NextSlotID = next.SlotID
		res.Streak = sk

		notifyFn = func(m medications.Medication) {
			e.dispatchEvent(m, ev, &res.NextReminder)
			if res.LowSupply && res.Inventory != nil {
				e.dispatchLowSupply(m, ev.ID, *res.Inventory)
			}
		}
		return c, nil
	})
	if err != nil {
		return TakeResult{}, err
	}

	e.log.Info("dose taken", map[string]any{
		"medication_id":    medicationID,
		"slot_id":          slotID,
		"next_reminder_at": res.NextReminder,
		"inventory_status": string(res.InventoryStatus),
	})
	e.afterCommit(ctx, medicationID, notifyFn)
	return res, nil
}

// Skip registra el dose como salteado y sigue agendando: skip no frena los
// recordatorios futuros. Resetea el streak actual.
func (e *Engine) Skip(ctx context.Context, medicationID, slotID, reason string) (SkipResult, error) {
	var (
		res      SkipResult
		notifyFn func(medications.Medication)
	)

	err := e.apply(ctx, medicationID, func(st medications.State, now time.Time) (medications.Commit, error) {
		slot, idx, ok := st.Slot(slotID)
		if !ok {
			return medications.Commit{}, ErrSlotNotFound
		}
		if !slot.Actionable() || (slot.Status != medications.SlotUpcoming && slot.Status != medications.SlotMissed) {
			return medications.Commit{}, fmt.Errorf("%w: only the pending dose can be skipped", ErrBadState)
		}

		rule, err := frequency.Resolve(st.Medication.Frequency)
		if err != nil {
			return medications.Commit{}, err
		}

		loc := st.Medication.Location()
		scheduled := scheduledAt(slot, now, loc)
		next, err := schedule.NextSlot(rule, scheduled.In(loc), medications.SlotTimes(st.Slots))
		if err != nil {
			return medications.Commit{}, err
		}

		slot.Status = medications.SlotSkipped
		slot.Taken = false
		slot.Unschedule()
		slot.UpdatedAt = now
		st.Slots[idx] = slot

		slots := advanceTo(st.Slots, next, now)

		ev := medications.DoseEvent{
			ID:           e.newID(),
			MedicationID: medicationID,
			SlotID:       slot.ID,
			Action:       medications.ActionSkipped,
			ScheduledAt:  scheduled,
			Reason:       strings.TrimSpace(reason),
			RecordedAt:   now,
		}

		sk := st.Streak
		sk.OnSkippedOrMissed(streak.OutcomeSkipped)
		sk.UpdatedAt = now

		res = SkipResult{Event: ev, NextReminder: next.At, NextSlotID: next.SlotID, Streak: sk}
		notifyFn = func(m medications.Medication) { e.dispatchEvent(m, ev, &res.NextReminder) }

		return medications.Commit{
			Slots:  slots,
			Streak: &sk,
			Events: []medications.DoseEvent{ev},
		}, nil
	})
	if err != nil {
		return SkipResult{}, err
	}

	e.log.Info("dose skipped", map[string]any{
		"medication_id":    medicationID,
		"slot_id":          slotID,
		"next_reminder_at": res.NextReminder,
	})
	e.afterCommit(ctx, medicationID, notifyFn)
	return res, nil
}

// Miss registra un dose perdido y resetea el streak. No avanza el schedule:
// eso lo hace Advance en el próximo chequeo (la ventana ya pasó).
func (e *Engine) Miss(ctx context.Context, medicationID, slotID string) (MissResult, error) {
	var (
		res      MissResult
		notifyFn func(medications.Medication)
	)

	err := e.apply(ctx, medicationID, func(st medications.State, now time.Time) (medications.Commit, error) {
		slot, idx, ok := st.Slot(slotID)
		if !ok {
			return medications.Commit{}, ErrSlotNotFound
		}
		if slot.Status != medications.SlotUpcoming || !slot.Actionable() {
			return medications.Commit{}, fmt.Errorf("%w: only the upcoming slot can be missed", ErrBadState)
		}

		slot.Status = medications.SlotMissed
		slot.Taken = false
		slot.UpdatedAt = now
		st.Slots[idx] = slot

		ev := medications.DoseEvent{
			ID:           e.newID(),
			MedicationID: medicationID,
			SlotID:       slot.ID,
			Action:       medications.ActionMissed,
			ScheduledAt:  scheduledAt(slot, now, st.Medication.Location()),
			RecordedAt:   now,
		}

		sk := st.Streak
		sk.OnSkippedOrMissed(streak.OutcomeMissed)
		sk.UpdatedAt = now

		res = MissResult{Event: ev, Streak: sk}
		notifyFn = func(m medications.Medication) { e.dispatchEvent(m, ev, nil) }

		return medications.Commit{
			Slots:  []medications.Slot{slot},
			Streak: &sk,
			Events: []medications.DoseEvent{ev},
		}, nil
	})
	if err != nil {
		return MissResult{}, err
	}

	e.log.Info("dose missed", map[string]any{
		"medication_id": medicationID,
		"slot_id":       slotID,
		"scheduled_at":  res.Event.ScheduledAt,
	})
	e.afterCommit(ctx, medicationID, notifyFn)
	return res, nil
}

// Advance pasa un slot Missed al próximo ciclo. No agrega eventos.
func (e *Engine) Advance(ctx context.Context, medicationID, slotID string) (AdvanceResult, error) {
	var res AdvanceResult

	err := e.apply(ctx, medicationID, func(st medications.State, now time.Time) (medications.Commit, error) {
		slot, idx, ok := st.Slot(slotID)
		if !ok {
			return medications.Commit{}, ErrSlotNotFound
		}
		if slot.Status != medications.SlotMissed || !slot.Actionable() {
			return medications.Commit{}, fmt.Errorf("%w: only a missed upcoming slot can be advanced", ErrBadState)
		}

		rule, err := frequency.Resolve(st.Medication.Frequency)
		if err != nil {
			return medications.Commit{}, err
		}

		loc := st.Medication.Location()
		base := scheduledAt(slot, now, loc).In(loc)
		next, err := schedule.NextSlot(rule, base, medications.SlotTimes(st.Slots))
		if err != nil {
			return medications.Commit{}, err
		}

		// ScheduledAt queda como el dose perdido (permite la toma tardía)
		slot.NextReminderAt = nil
		slot.UpdatedAt = now
		st.Slots[idx] = slot

		res = AdvanceResult{NextReminder: next.At, NextSlotID: next.SlotID}
		return medications.Commit{Slots: advanceTo(st.Slots, next, now)}, nil
	})
	if err != nil {
		return AdvanceResult{}, err
	}
	return res, nil
}

// Delay corre el recordatorio a now + hours. El dose sigue Upcoming y se agrega
// un evento delayed (no terminal).
func (e *Engine) Delay(ctx context.Context, medicationID, slotID string, hours float64) (DelayResult, error) {
	if hours <= 0 {
		return DelayResult{}, fmt.Errorf("%w: hours must be > 0", ErrInvalidDelay)
	}
	d := time.Duration(hours * float64(time.Hour))
	if d <= 0 {
		return DelayResult{}, fmt.Errorf("%w: hours must be > 0", ErrInvalidDelay)
	}

	var res DelayResult
	err := e.apply(ctx, medicationID, func(st medications.State, now time.Time) (medications.Commit, error) {
		slot, idx, ok := st.Slot(slotID)
		if !ok {
			return medications.Commit{}, ErrSlotNotFound
		}
		if slot.Status != medications.SlotUpcoming || !slot.Actionable() {
			return medications.Commit{}, fmt.Errorf("%w: only the upcoming slot can be delayed", ErrBadState)
		}

		scheduled := scheduledAt(slot, now, st.Medication.Location())
		at := now.Add(d)
		slot.ScheduledAt = &scheduled
		slot.NextReminderAt = &at
		slot.UpdatedAt = now
		st.Slots[idx] = slot

		ev := medications.DoseEvent{
			ID:           e.newID(),
			MedicationID: medicationID,
			SlotID:       slot.ID,
			Action:       medications.ActionDelayed,
			ScheduledAt:  scheduled,
			Delay:        d,
			RecordedAt:   now,
		}

		res = DelayResult{Event: ev, NewReminder: at}
		return medications.Commit{
			Slots:  []medications.Slot{slot},
			Events: []medications.DoseEvent{ev},
		}, nil
	})
	if err != nil {
		return DelayResult{}, err
	}

	e.log.Info("dose delayed", map[string]any{
		"medication_id":    medicationID,
		"slot_id":          slotID,
		"next_reminder_at": res.NewReminder,
	})
	return res, nil
}

// Refill suma stock. Si la medicación no tenía inventario, empieza a trackearlo.
func (e *Engine) Refill(ctx context.Context, medicationID string, quantity float64) (RefillResult, error) {
	if quantity <= 0 {
		return RefillResult{}, fmt.Errorf("%w: quantity must be > 0", ErrInvalidInput)
	}

	var res RefillResult
	err := e.apply(ctx, medicationID, func(st medications.State, now time.Time) (medications.Commit, error) {
		inv := medications.Inventory{MedicationID: medicationID, DoseAmount: 1}
		if st.Medication.Inventory != nil {
			inv = *st.Medication.Inventory
		}
		inv.Refill(quantity)
		inv.UpdatedAt = now

		res = RefillResult{Inventory: inv, Status: inv.Status()}
		return medications.Commit{Inventory: &inv}, nil
	})
	if err != nil {
		return RefillResult{}, err
	}

	e.log.Info("inventory refilled", map[string]any{
		"medication_id": medicationID,
		"quantity":      res.Inventory.Quantity,
		"status":        string(res.Status),
	})
	return res, nil
}

// MarkReminded registra que ya se despachó el recordatorio del slot.
// Devuelve ErrBadState si el slot ya no es el upcoming (otro escritor ganó).
func (e *Engine) MarkReminded(ctx context.Context, medicationID, slotID string, at time.Time) (medications.Slot, error) {
	var out medications.Slot
	err := e.apply(ctx, medicationID, func(st medications.State, now time.Time) (medications.Commit, error) {
		slot, idx, ok := st.Slot(slotID)
		if !ok {
			return medications.Commit{}, ErrSlotNotFound
		}
		if slot.Status != medications.SlotUpcoming || !slot.Actionable() {
			return medications.Commit{}, fmt.Errorf("%w: slot is not upcoming", ErrBadState)
		}
		if slot.LastNotifiedAt != nil && !slot.LastNotifiedAt.Before(*slot.NextReminderAt) {
			return medications.Commit{}, fmt.Errorf("%w: already reminded", ErrBadState)
		}

		t := at
		slot.LastNotifiedAt = &t
		slot.UpdatedAt = now
		st.Slots[idx] = slot
		out = slot
		return medications.Commit{Slots: []medications.Slot{slot}}, nil
	})
	return out, err
}

// apply serializa por medicación: lock -> leer -> build -> commit.
func (e *Engine) apply(ctx context.Context, medicationID string, build func(st medications.State, now time.Time) (medications.Commit, error)) error {
	medicationID = strings.TrimSpace(medicationID)
	if medicationID == "" {
		return ErrInvalidInput
	}

	unlock, err := e.lock(ctx, medicationID)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := e.repo.GetState(ctx, medicationID)
	if err != nil {
		return err
	}

	now := e.now()
	c, err := build(st, now)
	if err != nil {
		return err
	}
	c.MedicationID = medicationID
	c.ExpectedRevision = st.Medication.Revision
	c.At = now

	if err := e.repo.Commit(ctx, c); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			e.log.Warn("stale revision on commit", map[string]any{
				"medication_id": medicationID,
				"revision":      st.Medication.Revision,
			})
		}
		return err
	}
	return nil
}

func (e *Engine) lock(ctx context.Context, medicationID string) (func(), error) {
	if e.locks == nil {
		return func() {}, nil
	}
	unlock, err := e.locks.Lock(ctx, "medication:"+medicationID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return nil, err
	}
	return unlock, nil
}

// afterCommit despacha sin bloquear al caller. Un fallo acá nunca revierte el evento.
func (e *Engine) afterCommit(ctx context.Context, medicationID string, fn func(medications.Medication)) {
	if e.notifier == nil || fn == nil {
		return
	}
	m, err := e.repo.GetByID(ctx, medicationID)
	if err != nil {
		e.log.Warn("skip dispatch: medication lookup failed", map[string]any{
			"medication_id": medicationID,
			"error":         err,
		})
		return
	}
	fn(m)
}

func (e *Engine) dispatchEvent(m medications.Medication, ev medications.DoseEvent, next *time.Time) {
	if len(m.Channels) == 0 {
		return
	}
	n := baseNotification(m, notify.KindDoseEvent)
	n.EventID = ev.ID
	n.Action = string(ev.Action)
	n.ScheduledAt = ev.ScheduledAt
	n.NextReminderAt = next
	e.notifier.DispatchAsync(n, m.Channels)
}

func (e *Engine) dispatchLowSupply(m medications.Medication, eventID string, inv medications.Inventory) {
	if len(m.Channels) == 0 {
		return
	}
	n := baseNotification(m, notify.KindLowSupply)
	n.EventID = eventID
	n.InventoryStatus = string(inv.Status())
	n.Quantity = inv.Quantity
	e.notifier.DispatchAsync(n, m.Channels)
}

// DispatchDue despacha el recordatorio dose_due de un slot (lo usan los jobs).
func (e *Engine) DispatchDue(m medications.Medication, slot medications.Slot) {
	if e.notifier == nil || len(m.Channels) == 0 || slot.NextReminderAt == nil {
		return
	}
	n := baseNotification(m, notify.KindDoseDue)
	n.ScheduledAt = slot.NextReminderAt.In(m.Location())
	e.notifier.DispatchAsync(n, m.Channels)
}

func baseNotification(m medications.Medication, kind notify.Kind) notify.Notification {
	return notify.Notification{
		Kind:           kind,
		MedicationID:   m.ID,
		MedicationName: m.Name,
		Dosage:         m.Dosage,
		Recipient: notify.Recipient{
			UserID:   m.OwnerUserID,
			Email:    m.Contact.Email,
			Phone:    m.Contact.Phone,
			DeviceID: m.Contact.DeviceID,
		},
	}
}

// scheduledAt es el instante programado del dose del slot, no el deadline.
func scheduledAt(slot medications.Slot, ref time.Time, loc *time.Location) time.Time {
	if at, ok := slot.Scheduled(); ok {
		return at
	}
	if slot.TimeOfDay != nil {
		return slot.TimeOfDay.On(ref.In(loc))
	}
	return ref
}

// checkTakeable: el dose pendiente (upcoming o missed sin avanzar) o un dose
// perdido que se toma tarde. Un slot upcoming que no es el actionable no es
// un dose todavía.
func checkTakeable(slot medications.Slot) error {
	switch {
	case slot.Status == medications.SlotUpcoming && slot.Actionable():
		return nil
	case slot.Status == medications.SlotMissed:
		return nil
	case slot.Status == medications.SlotUpcoming:
		return fmt.Errorf("%w: slot is not the pending dose", ErrBadState)
	}
	return fmt.Errorf("%w: slot is %s", ErrBadState, slot.Status)
}

// currentNext devuelve el recordatorio vigente (el slot actionable).
func currentNext(slots []medications.Slot) schedule.Next {
	for _, s := range slots {
		if s.NextReminderAt != nil {
			return schedule.Next{At: *s.NextReminderAt, SlotID: s.ID}
		}
	}
	return schedule.Next{}
}

// advanceTo deja como único actionable al slot elegido por el scheduler y
// devuelve todos los slots (el Commit hace upsert).
func advanceTo(slots []medications.Slot, next schedule.Next, now time.Time) []medications.Slot {
	out := make([]medications.Slot, len(slots))
	for i, s := range slots {
		if s.ID == next.SlotID || (next.SlotID == "" && i == 0) {
			s.Schedule(next.At)
			s.Status = medications.SlotUpcoming
			s.UpdatedAt = now
		} else if s.NextReminderAt != nil {
			s.Unschedule()
			s.UpdatedAt = now
		}
		out[i] = s
	}
	return out
}
