package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/domain/streak"
	"medication-reminder/internal/notify"
)

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T, r medications.Repository, id string, next time.Time) medications.Slot {
	t.Helper()
	at := next
	slot := medications.Slot{ID: id + "-s1", MedicationID: id, Status: medications.SlotUpcoming, NextReminderAt: &at}
	m := medications.Medication{ID: id, OwnerUserID: "owner-1", Name: "X", CreatedAt: t0}
	if err := r.Create(context.Background(), m, []medications.Slot{slot}, streak.New(id)); err != nil {
		t.Fatalf("create: %v", err)
	}
	return slot
}

func TestCommit_RevisionMismatch(t *testing.T) {
	r := NewMedicationRepo()
	slot := seed(t, r, "m1", t0)
	ctx := context.Background()

	slot.Status = medications.SlotTaken
	if err := r.Commit(ctx, medications.Commit{MedicationID: "m1", ExpectedRevision: 0, Slots: []medications.Slot{slot}}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// misma revisión otra vez: ya quedó vieja
	err := r.Commit(ctx, medications.Commit{MedicationID: "m1", ExpectedRevision: 0, Slots: []medications.Slot{slot}})
	if !errors.Is(err, medications.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	m, _ := r.GetByID(ctx, "m1")
	if m.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", m.Revision)
	}
}

func TestCommit_UnknownSlotAppliesNothing(t *testing.T) {
	r := NewMedicationRepo()
	slot := seed(t, r, "m1", t0)
	ctx := context.Background()

	sk := streak.New("m1")
	sk.OnTaken(t0)
	slot.Status = medications.SlotTaken
	ghost := medications.Slot{ID: "ghost", MedicationID: "m1"}

	err := r.Commit(ctx, medications.Commit{
		MedicationID:     "m1",
		ExpectedRevision: 0,
		Slots:            []medications.Slot{slot, ghost},
		Streak:           &sk,
		Events:           []medications.DoseEvent{{ID: "e1", MedicationID: "m1", Action: medications.ActionTaken, ScheduledAt: t0}},
	})
	if !errors.Is(err, medications.ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}

	st, _ := r.GetState(ctx, "m1")
	if st.Slots[0].Status != medications.SlotUpcoming {
		t.Fatalf("slot should be untouched, got %s", st.Slots[0].Status)
	}
	if st.Streak.Current != 0 {
		t.Fatalf("streak should be untouched, got %d", st.Streak.Current)
	}
	if st.Medication.Revision != 0 {
		t.Fatalf("revision should be untouched, got %d", st.Medication.Revision)
	}
	evs, _ := r.ListEvents(ctx, "m1", medications.EventFilter{})
	if len(evs) != 0 {
		t.Fatalf("expected no events, got %d", len(evs))
	}
}

func TestListEvents_OrderFilterLimit(t *testing.T) {
	r := NewMedicationRepo()
	seed(t, r, "m1", t0)
	ctx := context.Background()

	actions := []medications.Action{medications.ActionTaken, medications.ActionSkipped, medications.ActionTaken, medications.ActionMissed}
	for i, a := range actions {
		ev := medications.DoseEvent{
			ID: string(rune('a' + i)), MedicationID: "m1", Action: a,
			ScheduledAt: t0.Add(time.Duration(i) * time.Hour),
		}
		if err := r.Commit(ctx, medications.Commit{MedicationID: "m1", ExpectedRevision: int64(i), Events: []medications.DoseEvent{ev}}); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	evs, _ := r.ListEvents(ctx, "m1", medications.EventFilter{})
	if len(evs) != 4 || evs[0].ID != "d" || evs[3].ID != "a" {
		t.Fatalf("expected newest first, got %+v", evs)
	}

	evs, _ = r.ListEvents(ctx, "m1", medications.EventFilter{Ascending: true, Limit: 2})
	if len(evs) != 2 || evs[0].ID != "a" || evs[1].ID != "b" {
		t.Fatalf("expected first two ascending, got %+v", evs)
	}

	evs, _ = r.ListEvents(ctx, "m1", medications.EventFilter{Actions: []medications.Action{medications.ActionTaken}})
	if len(evs) != 2 || evs[0].ID != "c" {
		t.Fatalf("expected two taken events, got %+v", evs)
	}

	from := t0.Add(time.Hour)
	to := t0.Add(2 * time.Hour)
	evs, _ = r.ListEvents(ctx, "m1", medications.EventFilter{From: &from, To: &to})
	if len(evs) != 2 {
		t.Fatalf("expected 2 events in range, got %d", len(evs))
	}

	if _, err := r.ListEvents(ctx, "nope", medications.EventFilter{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDueSlots(t *testing.T) {
	r := NewMedicationRepo()
	ctx := context.Background()
	seed(t, r, "late", t0.Add(2*time.Hour))
	seed(t, r, "early", t0)
	seed(t, r, "future", t0.Add(48*time.Hour))

	due, err := r.ListDueSlots(ctx, t0.Add(3*time.Hour), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(due) != 2 || due[0].MedicationID != "early" || due[1].MedicationID != "late" {
		t.Fatalf("unexpected due slots: %+v", due)
	}

	due, _ = r.ListDueSlots(ctx, t0.Add(3*time.Hour), 1)
	if len(due) != 1 {
		t.Fatalf("expected limit 1, got %d", len(due))
	}

	// un missed todavía actionable sigue listado (falta avanzarlo)
	st, _ := r.GetState(ctx, "early")
	s := st.Slots[0]
	s.Status = medications.SlotMissed
	if err := r.Commit(ctx, medications.Commit{MedicationID: "early", Slots: []medications.Slot{s}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	due, _ = r.ListDueSlots(ctx, t0.Add(3*time.Hour), 0)
	if len(due) != 2 || due[0].Status != medications.SlotMissed {
		t.Fatalf("expected missed slot still due: %+v", due)
	}

	// sin recordatorio ya no es due
	s.NextReminderAt = nil
	if err := r.Commit(ctx, medications.Commit{MedicationID: "early", ExpectedRevision: 1, Slots: []medications.Slot{s}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	due, _ = r.ListDueSlots(ctx, t0.Add(3*time.Hour), 0)
	if len(due) != 1 || due[0].MedicationID != "late" {
		t.Fatalf("unexpected due slots after advance: %+v", due)
	}
}

func TestRepo_DoesNotShareMemory(t *testing.T) {
	r := NewMedicationRepo()
	seed(t, r, "m1", t0)
	ctx := context.Background()

	st, _ := r.GetState(ctx, "m1")
	*st.Slots[0].NextReminderAt = t0.Add(time.Hour)

	again, _ := r.GetState(ctx, "m1")
	if !again.Slots[0].NextReminderAt.Equal(t0) {
		t.Fatalf("caller mutation leaked into repo: %v", again.Slots[0].NextReminderAt)
	}
}

func TestDeliveries_NewestFirst(t *testing.T) {
	r := NewDeliveryRepo()
	ctx := context.Background()
	_ = r.Record(ctx, []notify.Delivery{
		{ID: "1", MedicationID: "m1", Channel: notify.ChannelEmail, AttemptedAt: t0},
		{ID: "2", MedicationID: "m1", Channel: notify.ChannelSMS, AttemptedAt: t0.Add(time.Minute)},
		{ID: "3", MedicationID: "m2", Channel: notify.ChannelPush, AttemptedAt: t0},
	})

	got, _ := r.ListByMedication(ctx, "m1", 0)
	if len(got) != 2 || got[0].ID != "2" {
		t.Fatalf("unexpected deliveries: %+v", got)
	}
	got, _ = r.ListByMedication(ctx, "m1", 1)
	if len(got) != 1 {
		t.Fatalf("expected limit 1, got %d", len(got))
	}
}
