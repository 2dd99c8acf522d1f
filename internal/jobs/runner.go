package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/domain/transitions"
	"medication-reminder/internal/platform/logger"
)

const (
	DefaultBatchSize = 200
	// maxCatchUp acota cuántos doses seguidos se marcan como perdidos
	// para una medicación en una sola pasada (p.ej. every_hour tras un downtime largo).
	maxCatchUp = 48
	runTimeout = 2 * time.Minute
)

type Options struct {
	Repo   medications.Repository
	Engine *transitions.Engine
	Logger logger.Logger

	// Grace: cuánto después de next_reminder_at se considera perdido.
	Grace     time.Duration
	BatchSize int
	Now       func() time.Time
}

// Runner ejecuta los dos jobs periódicos: recordatorios due y barrido de perdidos.
type Runner struct {
	repo   medications.Repository
	engine *transitions.Engine
	log    logger.Logger
	grace  time.Duration
	batch  int
	now    func() time.Time

	cron *cron.Cron
}

func New(opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		repo:   opts.Repo,
		engine: opts.Engine,
		log:    log.With(map[string]any{"component": "jobs"}),
		grace:  opts.Grace,
		batch:  batch,
		now:    now,
	}
}

// RemindDue despacha dose_due para cada slot cuyo next_reminder_at ya llegó
// y todavía no fue notificado. Devuelve cuántos recordatorios salieron.
func (r *Runner) RemindDue(ctx context.Context) (int, error) {
	now := r.now()
	slots, err := r.repo.ListDueSlots(ctx, now, r.batch)
	if err != nil {
		return 0, fmt.Errorf("list due slots: %w", err)
	}

	sent := 0
	for _, s := range slots {
		if s.Status != medications.SlotUpcoming {
			continue // missed pendiente de avanzar: lo resuelve el sweep
		}
		if s.LastNotifiedAt != nil && !s.LastNotifiedAt.Before(*s.NextReminderAt) {
			continue
		}

		// Se marca antes de despachar: como mucho un recordatorio por next_reminder_at.
		marked, err := r.engine.MarkReminded(ctx, s.MedicationID, s.ID, now)
		if err != nil {
			if !isStale(err) {
				r.log.Warn("mark reminded failed", map[string]any{
					"medication_id": s.MedicationID,
					"slot_id":       s.ID,
					"error":         err,
				})
			}
			continue
		}

		m, err := r.repo.GetByID(ctx, s.MedicationID)
		if err != nil {
			continue
		}
		r.engine.DispatchDue(m, marked)
		sent++
	}

	if sent > 0 {
		r.log.Info("reminders dispatched", map[string]any{"count": sent})
	}
	return sent, nil
}

// SweepMissed marca como perdidos los doses vencidos hace más de Grace y
// avanza el schedule. Si la medicación quedó atrasada varios ciclos, los recorre.
// Un slot que ya estaba missed (miss manual o un Advance que falló) solo se avanza.
func (r *Runner) SweepMissed(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.grace)
	slots, err := r.repo.ListDueSlots(ctx, cutoff, r.batch)
	if err != nil {
		return 0, fmt.Errorf("list overdue slots: %w", err)
	}

	total := 0
	for _, s := range slots {
		total += r.catchUp(ctx, s, cutoff)
	}

	if total > 0 {
		r.log.Info("missed doses recorded", map[string]any{"count": total})
	}
	return total, nil
}

func (r *Runner) catchUp(ctx context.Context, s medications.Slot, cutoff time.Time) int {
	medicationID, slotID := s.MedicationID, s.ID
	alreadyMissed := s.Status == medications.SlotMissed
	missed := 0

	for i := 0; i < maxCatchUp; i++ {
		if !alreadyMissed {
			if _, err := r.engine.Miss(ctx, medicationID, slotID); err != nil {
				if !isStale(err) {
					r.log.Warn("miss failed", map[string]any{
						"medication_id": medicationID,
						"slot_id":       slotID,
						"error":         err,
					})
				}
				return missed
			}
			missed++
		}
		alreadyMissed = false

		adv, err := r.engine.Advance(ctx, medicationID, slotID)
		if err != nil {
			r.log.Error("advance after miss failed", map[string]any{
				"medication_id": medicationID,
				"slot_id":       slotID,
				"error":         err,
			})
			return missed
		}
		if adv.NextReminder.After(cutoff) {
			return missed
		}
		slotID = adv.NextSlotID
	}

	r.log.Warn("missed catch-up limit reached", map[string]any{
		"medication_id": medicationID,
		"limit":         maxCatchUp,
	})
	return missed
}

// isStale: otro escritor resolvió el slot entre el listado y la transición.
func isStale(err error) bool {
	return errors.Is(err, transitions.ErrBadState) ||
		errors.Is(err, transitions.ErrSlotNotFound) ||
		errors.Is(err, transitions.ErrConcurrentModification) ||
		errors.Is(err, medications.ErrNotFound)
}

// Start agenda ambos jobs con robfig/cron. Una corrida que se solapa con la
// anterior se saltea.
func (r *Runner) Start(reminderSpec, missedSpec string) error {
	cl := cronLogger{log: r.log}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := c.AddFunc(reminderSpec, r.wrap("reminders", r.RemindDue)); err != nil {
		return fmt.Errorf("reminder job: %w", err)
	}
	if _, err := c.AddFunc(missedSpec, r.wrap("missed_sweep", r.SweepMissed)); err != nil {
		return fmt.Errorf("missed job: %w", err)
	}

	r.cron = c
	c.Start()
	r.log.Info("jobs started", map[string]any{
		"reminder_spec": reminderSpec,
		"missed_spec":   missedSpec,
		"missed_grace":  r.grace.String(),
	})
	return nil
}

// Stop detiene el cron y devuelve un ctx que se cierra cuando terminan las corridas en curso.
func (r *Runner) Stop() context.Context {
	if r.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return r.cron.Stop()
}

func (r *Runner) wrap(name string, fn func(context.Context) (int, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := fn(ctx); err != nil {
			r.log.Error("job failed", map[string]any{"job": name, "error": err})
		}
	}
}

// cronLogger adapta logger.Logger a cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kv(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	f := kv(keysAndValues)
	f["error"] = err
	l.log.Error("cron: "+msg, f)
}

func kv(keysAndValues []any) map[string]any {
	out := make(map[string]any, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		k, ok := keysAndValues[i].(string)
		if !ok {
			k = fmt.Sprint(keysAndValues[i])
		}
		out[k] = keysAndValues[i+1]
	}
	return out
}
