package transitions_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memlock "medication-reminder/internal/adapters/lock/memory"
	mem "medication-reminder/internal/adapters/storage/memory"
	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/domain/transitions"
	"medication-reminder/internal/notify"
	"medication-reminder/internal/ports/lock"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type sent struct {
	n        notify.Notification
	channels []notify.Channel
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []sent
}

func (f *fakeNotifier) DispatchAsync(n notify.Notification, channels []notify.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, sent{n: n, channels: channels})
}

func (f *fakeNotifier) kinds() []notify.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.Kind, 0, len(f.got))
	for _, s := range f.got {
		out = append(out, s.n.Kind)
	}
	return out
}

type fixture struct {
	repo     medications.Repository
	svc      *medications.Service
	engine   *transitions.Engine
	notifier *fakeNotifier
	clock    *clock
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	c := &clock{t: start}
	repo := mem.NewMedicationRepo()
	n := &fakeNotifier{}
	return &fixture{
		repo:     repo,
		svc:      medications.NewService(repo, nil).WithClock(c.Now),
		engine:   transitions.NewEngine(transitions.Options{Repo: repo, Locker: memlock.NewLocker(), Notifier: n, Now: c.Now}),
		notifier: n,
		clock:    c,
	}
}

func (f *fixture) create(t *testing.T, in medications.CreateInput) (medications.Medication, []medications.Slot) {
	t.Helper()
	if in.Name == "" {
		in.Name = "Metformina"
	}
	m, slots, err := f.svc.Create(context.Background(), "owner-1", in)
	require.NoError(t, err)
	return m, slots
}

func (f *fixture) state(t *testing.T, id string) medications.State {
	t.Helper()
	st, err := f.repo.GetState(context.Background(), id)
	require.NoError(t, err)
	return st
}

func (f *fixture) events(t *testing.T, id string) []medications.DoseEvent {
	t.Helper()
	evs, err := f.repo.ListEvents(context.Background(), id, medications.EventFilter{Ascending: true})
	require.NoError(t, err)
	return evs
}

func utc(d, h, m int) time.Time {
	return time.Date(2024, 1, d, h, m, 0, 0, time.UTC)
}

func countActionable(slots []medications.Slot) int {
	n := 0
	for _, s := range slots {
		if s.Actionable() {
			n++
		}
	}
	return n
}

func TestDelay_MovesReminderWithoutTerminalEvent(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "specific_times", Times: []string{"08:00", "20:00"}})
	morning := slots[0]

	f.clock.Set(utc(1, 8, 0))
	res, err := f.engine.Delay(context.Background(), m.ID, morning.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, utc(1, 10, 0), res.NewReminder)
	assert.Equal(t, medications.ActionDelayed, res.Event.Action)
	assert.Equal(t, utc(1, 8, 0), res.Event.ScheduledAt)
	assert.False(t, res.Event.Action.Terminal())

	st := f.state(t, m.ID)
	slot, _, _ := st.Slot(morning.ID)
	assert.Equal(t, medications.SlotUpcoming, slot.Status)
	require.NotNil(t, slot.NextReminderAt)
	assert.Equal(t, utc(1, 10, 0), *slot.NextReminderAt)
	assert.Equal(t, 0, st.Streak.Total(), "delay no toca el streak")

	evs := f.events(t, m.ID)
	require.Len(t, evs, 1)
	assert.Equal(t, 2*time.Hour, evs[0].Delay)
}

func TestDelay_InvalidHours(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "daily"})

	for _, h := range []float64{0, -1, 1e-15} {
		_, err := f.engine.Delay(context.Background(), m.ID, slots[0].ID, h)
		assert.ErrorIs(t, err, transitions.ErrInvalidDelay, "hours=%v", h)
	}
	assert.Empty(t, f.events(t, m.ID))
}

func TestTake_FixedIntervalRollsFromActualTime(t *testing.T) {
	f := newFixture(t, utc(1, 8, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "twice_daily", Channels: []string{"push"}})
	require.Equal(t, utc(1, 20, 0), *slots[0].NextReminderAt)

	f.clock.Set(utc(1, 20, 5))
	res, err := f.engine.Take(context.Background(), m.ID, slots[0].ID, transitions.TakeInput{})
	require.NoError(t, err)

	assert.Equal(t, utc(2, 8, 5), res.NextReminder)
	assert.Equal(t, slots[0].ID, res.NextSlotID)
	assert.Equal(t, utc(1, 20, 0), res.Event.ScheduledAt)
	require.NotNil(t, res.Event.ActualAt)
	assert.Equal(t, utc(1, 20, 5), *res.Event.ActualAt)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, 1, res.Streak.Longest)

	st := f.state(t, m.ID)
	assert.Equal(t, 1, countActionable(st.Slots))
	assert.Equal(t, medications.SlotUpcoming, st.Slots[0].Status)
	assert.Equal(t, []notify.Kind{notify.KindDoseEvent}, f.notifier.kinds())
}

func TestTake_SpecificTimesUsesScheduledSlot(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "specific_times", Times: []string{"09:00", "13:00", "18:00"}})
	evening := slots[2]

	// Saltamos hasta el de las 18:00 y lo tomamos tarde: el próximo es 09:00 del día siguiente.
	_, err := f.engine.Skip(context.Background(), m.ID, slots[0].ID, "")
	require.NoError(t, err)
	_, err = f.engine.Skip(context.Background(), m.ID, slots[1].ID, "")
	require.NoError(t, err)

	f.clock.Set(utc(1, 19, 30))
	res, err := f.engine.Take(context.Background(), m.ID, evening.ID, transitions.TakeInput{})
	require.NoError(t, err)
	assert.Equal(t, utc(2, 9, 0), res.NextReminder)
	assert.Equal(t, slots[0].ID, res.NextSlotID)
	assert.Equal(t, utc(1, 18, 0), res.Event.ScheduledAt)

	_, err = f.engine.Take(context.Background(), m.ID, evening.ID, transitions.TakeInput{})
	assert.ErrorIs(t, err, transitions.ErrBadState, "un dose tomado no se vuelve a tomar")
}

func TestSkip_ResetsStreakAndKeepsSchedule(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "specific_times", Times: []string{"08:00", "20:00"}})

	_, err := f.engine.Take(context.Background(), m.ID, slots[0].ID, transitions.TakeInput{})
	require.NoError(t, err)

	res, err := f.engine.Skip(context.Background(), m.ID, slots[1].ID, "  sin stock  ")
	require.NoError(t, err)
	assert.Equal(t, "sin stock", res.Event.Reason)
	assert.Equal(t, 0, res.Streak.Current)
	assert.Equal(t, 1, res.Streak.Longest)
	assert.Equal(t, slots[0].ID, res.NextSlotID)
	assert.Equal(t, utc(2, 8, 0), res.NextReminder)

	st := f.state(t, m.ID)
	assert.Equal(t, 1, countActionable(st.Slots))
}

func TestMissThenAdvance(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "specific_times", Times: []string{"08:00", "20:00"}})
	morning, evening := slots[0], slots[1]

	f.clock.Set(utc(1, 10, 0))
	res, err := f.engine.Miss(context.Background(), m.ID, morning.ID)
	require.NoError(t, err)
	assert.Equal(t, utc(1, 8, 0), res.Event.ScheduledAt)
	assert.Equal(t, 1, res.Streak.MissedCount)

	_, err = f.engine.Miss(context.Background(), m.ID, morning.ID)
	assert.ErrorIs(t, err, transitions.ErrBadState)
	_, err = f.engine.Delay(context.Background(), m.ID, morning.ID, 1)
	assert.ErrorIs(t, err, transitions.ErrBadState, "un dose perdido no se pospone")
	_, err = f.engine.Advance(context.Background(), m.ID, evening.ID)
	assert.ErrorIs(t, err, transitions.ErrBadState, "solo se avanza un slot perdido")

	adv, err := f.engine.Advance(context.Background(), m.ID, morning.ID)
	require.NoError(t, err)
	assert.Equal(t, evening.ID, adv.NextSlotID)
	assert.Equal(t, utc(1, 20, 0), adv.NextReminder)

	st := f.state(t, m.ID)
	assert.Equal(t, 1, countActionable(st.Slots))
	got, _, _ := st.Slot(morning.ID)
	assert.Equal(t, medications.SlotMissed, got.Status)
	assert.Nil(t, got.NextReminderAt)

	// Advance no agrega eventos.
	assert.Len(t, f.events(t, m.ID), 1)
}

func TestTake_LateFromMissed(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "specific_times", Times: []string{"08:00", "20:00"}})

	f.clock.Set(utc(1, 9, 0))
	_, err := f.engine.Miss(context.Background(), m.ID, slots[0].ID)
	require.NoError(t, err)

	f.clock.Set(utc(1, 9, 30))
	res, err := f.engine.Take(context.Background(), m.ID, slots[0].ID, transitions.TakeInput{})
	require.NoError(t, err)
	assert.Equal(t, slots[1].ID, res.NextSlotID)
	assert.Equal(t, 1, res.Streak.Current)
}

func TestDelayThenTake_KeepsScheduledSlot(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "specific_times", Times: []string{"09:00", "13:00", "18:00"}})
	first, noon := slots[0], slots[1]

	f.clock.Set(utc(1, 9, 0))
	_, err := f.engine.Delay(context.Background(), m.ID, first.ID, 5)
	require.NoError(t, err)

	st := f.state(t, m.ID)
	delayed, _, _ := st.Slot(first.ID)
	require.NotNil(t, delayed.ScheduledAt)
	assert.Equal(t, utc(1, 9, 0), *delayed.ScheduledAt, "delay mueve solo el deadline")
	assert.Equal(t, utc(1, 14, 0), *delayed.NextReminderAt)

	f.clock.Set(utc(1, 14, 0))
	res, err := f.engine.Take(context.Background(), m.ID, first.ID, transitions.TakeInput{})
	require.NoError(t, err)
	assert.Equal(t, noon.ID, res.NextSlotID)
	assert.Equal(t, utc(1, 13, 0), res.NextReminder)
	assert.Equal(t, utc(1, 9, 0), res.Event.ScheduledAt)
	require.NotNil(t, res.Event.ActualAt)
	assert.Equal(t, utc(1, 14, 0), *res.Event.ActualAt)

	st = f.state(t, m.ID)
	assert.Equal(t, 1, countActionable(st.Slots))
	got, _, _ := st.Slot(noon.ID)
	require.NotNil(t, got.ScheduledAt)
	assert.Equal(t, utc(1, 13, 0), *got.ScheduledAt)
}

func TestDelayThenSkip_KeepsScheduledSlot(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "specific_times", Times: []string{"09:00", "13:00", "18:00"}})

	f.clock.Set(utc(1, 9, 0))
	_, err := f.engine.Delay(context.Background(), m.ID, slots[0].ID, 5)
	require.NoError(t, err)

	f.clock.Set(utc(1, 14, 30))
	res, err := f.engine.Skip(context.Background(), m.ID, slots[0].ID, "")
	require.NoError(t, err)
	assert.Equal(t, slots[1].ID, res.NextSlotID)
	assert.Equal(t, utc(1, 13, 0), res.NextReminder)
	assert.Equal(t, utc(1, 9, 0), res.Event.ScheduledAt)
}

func TestDelayThenMiss_RecordsScheduledTime(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "twice_daily"})

	f.clock.Set(utc(1, 19, 0))
	_, err := f.engine.Delay(context.Background(), m.ID, slots[0].ID, 3)
	require.NoError(t, err)

	f.clock.Set(utc(1, 23, 0))
	res, err := f.engine.Miss(context.Background(), m.ID, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, utc(1, 19, 0), res.Event.ScheduledAt)

	adv, err := f.engine.Advance(context.Background(), m.ID, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, utc(2, 7, 0), adv.NextReminder, "el ciclo sigue desde el horario programado")
}

func TestTake_RejectsSlotThatIsNotPending(t *testing.T) {
	f := newFixture(t, utc(1, 6, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "specific_times", Times: []string{"08:00", "20:00"}})
	morning, evening := slots[0], slots[1]

	f.clock.Set(utc(1, 7, 0))
	_, err := f.engine.Take(context.Background(), m.ID, evening.ID, transitions.TakeInput{})
	assert.ErrorIs(t, err, transitions.ErrBadState)
	_, err = f.engine.Skip(context.Background(), m.ID, evening.ID, "")
	assert.ErrorIs(t, err, transitions.ErrBadState)

	st := f.state(t, m.ID)
	got, _, _ := st.Slot(morning.ID)
	require.NotNil(t, got.NextReminderAt)
	assert.Equal(t, utc(1, 8, 0), *got.NextReminderAt, "el dose de las 08:00 sigue pendiente")
	assert.Empty(t, f.events(t, m.ID))
}

func TestTake_LateAfterAdvanceKeepsSchedule(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "specific_times", Times: []string{"08:00", "13:00", "20:00"}})
	morning, noon, evening := slots[0], slots[1], slots[2]

	// 08:00 y 13:00 perdidos y avanzados: el pendiente es 20:00
	f.clock.Set(utc(1, 15, 0))
	for _, s := range []medications.Slot{morning, noon} {
		_, err := f.engine.Miss(context.Background(), m.ID, s.ID)
		require.NoError(t, err)
		_, err = f.engine.Advance(context.Background(), m.ID, s.ID)
		require.NoError(t, err)
	}

	_, err := f.engine.Skip(context.Background(), m.ID, morning.ID, "")
	assert.ErrorIs(t, err, transitions.ErrBadState, "un dose ya avanzado no se saltea")

	res, err := f.engine.Take(context.Background(), m.ID, morning.ID, transitions.TakeInput{})
	require.NoError(t, err)
	assert.Equal(t, utc(1, 8, 0), res.Event.ScheduledAt)
	assert.Equal(t, evening.ID, res.NextSlotID)
	assert.Equal(t, utc(1, 20, 0), res.NextReminder)

	st := f.state(t, m.ID)
	assert.Equal(t, 1, countActionable(st.Slots))
	got, _, _ := st.Slot(noon.ID)
	assert.Equal(t, medications.SlotMissed, got.Status, "13:00 no vuelve a quedar pendiente")
	assert.Nil(t, got.NextReminderAt)
}

func TestTake_InventoryAndLowSupply(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{
		Frequency: "every_X_hours",
		Hours:     4,
		Channels:  []string{"email"},
		Contact:   medications.Contact{Email: "owner@example.com"},
		Inventory: &medications.InventoryInput{Quantity: 2, DoseAmount: 1, RefillThreshold: 1},
	})

	res, err := f.engine.Take(context.Background(), m.ID, slots[0].ID, transitions.TakeInput{})
	require.NoError(t, err)
	require.NotNil(t, res.Inventory)
	assert.Equal(t, 1.0, res.Inventory.Quantity)
	assert.Equal(t, medications.InventoryBelowThreshold, res.InventoryStatus)
	assert.True(t, res.LowSupply)
	assert.Equal(t, []notify.Kind{notify.KindDoseEvent, notify.KindLowSupply}, f.notifier.kinds())

	// Ya estaba bajo: sigue bajando sin volver a avisar hasta depleted.
	qty := 5.0
	res, err = f.engine.Take(context.Background(), m.ID, slots[0].ID, transitions.TakeInput{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Inventory.Quantity)
	assert.Equal(t, medications.InventoryDepleted, res.InventoryStatus)
	assert.True(t, res.LowSupply)
	assert.Equal(t, 1.0, res.Event.Quantity, "se registra lo efectivamente descontado")

	st := f.state(t, m.ID)
	require.NotNil(t, st.Medication.Inventory)
	assert.Equal(t, 0.0, st.Medication.Inventory.Quantity)

	neg := -1.0
	_, err = f.engine.Take(context.Background(), m.ID, slots[0].ID, transitions.TakeInput{Quantity: &neg})
	assert.ErrorIs(t, err, transitions.ErrInvalidInput)
}

func TestRefill(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, _ := f.create(t, medications.CreateInput{Frequency: "daily"})

	_, err := f.engine.Refill(context.Background(), m.ID, 0)
	assert.ErrorIs(t, err, transitions.ErrInvalidInput)

	res, err := f.engine.Refill(context.Background(), m.ID, 14)
	require.NoError(t, err)
	assert.Equal(t, 14.0, res.Inventory.Quantity)
	assert.Equal(t, 1.0, res.Inventory.DoseAmount)
	assert.Equal(t, medications.InventoryOK, res.Status)

	st := f.state(t, m.ID)
	require.NotNil(t, st.Medication.Inventory)
	assert.Equal(t, 14.0, st.Medication.Inventory.Quantity)
}

func TestMarkReminded_OncePerReminder(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "daily"})

	at := utc(2, 7, 0)
	slot, err := f.engine.MarkReminded(context.Background(), m.ID, slots[0].ID, at)
	require.NoError(t, err)
	require.NotNil(t, slot.LastNotifiedAt)
	assert.Equal(t, at, *slot.LastNotifiedAt)

	_, err = f.engine.MarkReminded(context.Background(), m.ID, slots[0].ID, at.Add(time.Minute))
	assert.ErrorIs(t, err, transitions.ErrBadState)

	// Tras un delay hay un nuevo next_reminder_at y se puede volver a recordar.
	f.clock.Set(at)
	_, err = f.engine.Delay(context.Background(), m.ID, slots[0].ID, 1)
	require.NoError(t, err)
	_, err = f.engine.MarkReminded(context.Background(), m.ID, slots[0].ID, at.Add(time.Hour))
	assert.NoError(t, err)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, _ := f.create(t, medications.CreateInput{Frequency: "daily"})

	_, err := f.engine.Take(context.Background(), m.ID, "missing", transitions.TakeInput{})
	assert.ErrorIs(t, err, transitions.ErrSlotNotFound)

	_, err = f.engine.Miss(context.Background(), "missing", "missing")
	assert.ErrorIs(t, err, medications.ErrNotFound)

	_, err = f.engine.Skip(context.Background(), " ", "x", "")
	assert.ErrorIs(t, err, transitions.ErrInvalidInput)
}

func TestConcurrentTakes_ExactlyOneWins(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "specific_times", Times: []string{"08:00", "20:00"}})

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Take(context.Background(), m.ID, slots[0].ID, transitions.TakeInput{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	for _, err := range errs {
		assert.ErrorIs(t, err, transitions.ErrBadState)
	}
	assert.Len(t, f.events(t, m.ID), 1)
	assert.Equal(t, 1, f.state(t, m.ID).Streak.Current)
}

type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context, key string) (func(), error) {
	return nil, lock.ErrNotAcquired
}

func TestLockTimeoutIsConcurrentModification(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "daily"})

	eng := transitions.NewEngine(transitions.Options{Repo: f.repo, Locker: busyLocker{}, Now: f.clock.Now})
	_, err := eng.Take(context.Background(), m.ID, slots[0].ID, transitions.TakeInput{})
	assert.ErrorIs(t, err, transitions.ErrConcurrentModification)
	assert.Empty(t, f.events(t, m.ID))
}

// staleRepo simula otro escritor que commitea entre GetState y Commit.
type staleRepo struct {
	medications.Repository
}

func (r staleRepo) Commit(ctx context.Context, c medications.Commit) error {
	c.ExpectedRevision--
	return r.Repository.Commit(ctx, c)
}

func TestStaleRevisionRejected(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "daily"})

	eng := transitions.NewEngine(transitions.Options{Repo: staleRepo{f.repo}, Now: f.clock.Now})
	_, err := eng.Skip(context.Background(), m.ID, slots[0].ID, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, transitions.ErrConcurrentModification))

	st := f.state(t, m.ID)
	assert.Equal(t, 0, st.Streak.Total(), "nada se aplica")
	assert.Empty(t, f.events(t, m.ID))
}

func TestNoDispatchWithoutChannels(t *testing.T) {
	f := newFixture(t, utc(1, 7, 0))
	m, slots := f.create(t, medications.CreateInput{Frequency: "daily"})

	_, err := f.engine.Take(context.Background(), m.ID, slots[0].ID, transitions.TakeInput{})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.kinds())
}
