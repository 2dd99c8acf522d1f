package medications

import (
	"context"
	"errors"
	"testing"
	"time"

	"medication-reminder/internal/domain/frequency"
	"medication-reminder/internal/domain/streak"
)

// -------------------------
// Test repo (solo Create/GetByID)
// -------------------------

type testRepo struct {
	meds    map[string]Medication
	slots   map[string][]Slot
	streaks map[string]streak.Streak
}

func newTestRepo() *testRepo {
	return &testRepo{
		meds:    map[string]Medication{},
		slots:   map[string][]Slot{},
		streaks: map[string]streak.Streak{},
	}
}

func (r *testRepo) Create(ctx context.Context, m Medication, slots []Slot, st streak.Streak) error {
	r.meds[m.ID] = m
	r.slots[m.ID] = slots
	r.streaks[m.ID] = st
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Medication, error) {
	m, ok := r.meds[id]
	if !ok {
		return Medication{}, ErrNotFound
	}
	return m, nil
}

func (r *testRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]Medication, error) {
	return nil, nil
}
func (r *testRepo) Delete(ctx context.Context, id string) error { return nil }
func (r *testRepo) GetState(ctx context.Context, id string) (State, error) {
	return State{Medication: r.meds[id], Slots: r.slots[id], Streak: r.streaks[id]}, nil
}
func (r *testRepo) Commit(ctx context.Context, c Commit) error { return errors.New("not implemented") }
func (r *testRepo) ListEvents(ctx context.Context, id string, f EventFilter) ([]DoseEvent, error) {
	return nil, nil
}
func (r *testRepo) ListDueSlots(ctx context.Context, before time.Time, limit int) ([]Slot, error) {
	return nil, nil
}

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func actionable(slots []Slot) []Slot {
	var out []Slot
	for _, s := range slots {
		if s.Actionable() {
			out = append(out, s)
		}
	}
	return out
}

func TestCreate_SpecificTimesSeedsOneActionableSlot(t *testing.T) {
	repo := newTestRepo()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(repo, nil).WithClock(fixedNow(now))

	m, slots, err := svc.Create(context.Background(), "owner-1", CreateInput{
		Name:      "Amoxicilina",
		Frequency: "specific_times",
		Times:     []string{"18:00", "09:00", "13:00"},
		Channels:  []string{"email", "SMS"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if slots[0].TimeOfDay.String() != "09:00" || slots[2].TimeOfDay.String() != "18:00" {
		t.Fatalf("expected slots ordered by time of day")
	}

	act := actionable(slots)
	if len(act) != 1 {
		t.Fatalf("expected exactly one actionable slot, got %d", len(act))
	}
	if act[0].TimeOfDay.String() != "13:00" || !act[0].NextReminderAt.Equal(time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected first reminder 13:00 today, got %s at %v", act[0].TimeOfDay, act[0].NextReminderAt)
	}

	if len(m.Channels) != 2 || m.Channels[1] != "sms" {
		t.Fatalf("expected normalized channels, got %v", m.Channels)
	}
	if _, ok := repo.meds[m.ID]; !ok {
		t.Fatalf("expected medication persisted")
	}
	if st := repo.streaks[m.ID]; st.MedicationID != m.ID || st.Current != 0 {
		t.Fatalf("expected empty streak persisted, got %+v", st)
	}
}

func TestCreate_IntervalUsesRollingSlot(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	svc := NewService(newTestRepo(), nil).WithClock(fixedNow(now))

	_, slots, err := svc.Create(context.Background(), "owner-1", CreateInput{
		Name:      "Ibuprofeno",
		Frequency: "every 6 hours",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 1 || slots[0].TimeOfDay != nil {
		t.Fatalf("expected a single rolling slot, got %+v", slots)
	}
	if !slots[0].NextReminderAt.Equal(now.Add(6 * time.Hour)) {
		t.Fatalf("expected first reminder now+6h, got %v", slots[0].NextReminderAt)
	}
}

func TestCreate_FirstDoseAt(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	svc := NewService(newTestRepo(), nil).WithClock(fixedNow(now))
	first := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	_, slots, err := svc.Create(context.Background(), "owner-1", CreateInput{
		Name: "X", Frequency: "twice_daily", FirstDoseAt: &first,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slots[0].NextReminderAt.Equal(first) {
		t.Fatalf("interval: expected first reminder at first_dose_at, got %v", slots[0].NextReminderAt)
	}

	// specific_times: el primer horario >= first_dose_at (13:00 incluido)
	first = time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	_, slots, err = svc.Create(context.Background(), "owner-1", CreateInput{
		Name: "Y", Frequency: "specific_times", Times: []string{"09:00", "13:00"}, FirstDoseAt: &first,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	act := actionable(slots)
	if len(act) != 1 || !act[0].NextReminderAt.Equal(first) {
		t.Fatalf("specific_times: expected 13:00 as first reminder, got %+v", act)
	}
}

func TestCreate_Timezone(t *testing.T) {
	// 10:00Z = 07:00 en Buenos Aires (UTC-3): el slot de 08:00 local es hoy.
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(newTestRepo(), nil).WithClock(fixedNow(now))

	_, slots, err := svc.Create(context.Background(), "owner-1", CreateInput{
		Name: "Z", Frequency: "specific_times", Times: []string{"08:00"}, Timezone: "America/Argentina/Buenos_Aires",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	if !slots[0].NextReminderAt.Equal(want) {
		t.Fatalf("expected %s, got %v", want, slots[0].NextReminderAt)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(newTestRepo(), nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		owner string
		in    CreateInput
		want  error
	}{
		{"no owner", "", CreateInput{Name: "X", Frequency: "daily"}, ErrInvalidInput},
		{"no name", "u", CreateInput{Frequency: "daily"}, ErrInvalidInput},
		{"unknown frequency", "u", CreateInput{Name: "X", Frequency: "sometimes"}, frequency.ErrUnknownFrequency},
		{"zero hours", "u", CreateInput{Name: "X", Frequency: "custom"}, frequency.ErrInvalidInterval},
		{"bad tz", "u", CreateInput{Name: "X", Frequency: "daily", Timezone: "Nowhere/City"}, ErrInvalidInput},
		{"bad channel", "u", CreateInput{Name: "X", Frequency: "daily", Channels: []string{"fax"}}, ErrInvalidInput},
		{"negative stock", "u", CreateInput{Name: "X", Frequency: "daily", Inventory: &InventoryInput{Quantity: -1}}, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Create(ctx, tc.owner, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreate_InventoryDefaultsDoseAmount(t *testing.T) {
	svc := NewService(newTestRepo(), nil)
	m, _, err := svc.Create(context.Background(), "u", CreateInput{
		Name: "X", Frequency: "daily", Inventory: &InventoryInput{Quantity: 10, RefillThreshold: 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Inventory == nil || m.Inventory.DoseAmount != 1 || m.Inventory.Status() != InventoryOK {
		t.Fatalf("expected inventory with dose_amount 1, got %+v", m.Inventory)
	}
}
