package medications

import (
	"sort"
	"time"

	"medication-reminder/internal/domain/frequency"
	"medication-reminder/internal/domain/schedule"
	"medication-reminder/internal/domain/streak"
	"medication-reminder/internal/notify"
)

// Contact es a dónde se despachan los recordatorios de la medicación.
type Contact struct {
	Email    string
	Phone    string
	DeviceID string // ESP32 registrado en el gateway
}

type Medication struct {
	ID          string
	OwnerUserID string

	Name         string
	Dosage       string // "500 mg"
	Instructions string

	Frequency frequency.Descriptor
	Timezone  string // IANA; vacío = UTC

	Channels []notify.Channel
	Contact  Contact

	Inventory *Inventory // opcional

	// Revision se incrementa en cada Commit; sirve de guard optimista.
	Revision int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location devuelve la zona horaria con la que se interpretan los time-of-day.
func (m Medication) Location() *time.Location {
	if m.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlotStatus es el estado del dose pendiente del slot.
type SlotStatus string

const (
	SlotUpcoming SlotStatus = "upcoming"
	SlotTaken    SlotStatus = "taken"
	SlotSkipped  SlotStatus = "skipped"
	SlotMissed   SlotStatus = "missed"
)

// Slot es una entrada del schedule.
// Para intervalos hay un único rolling slot (TimeOfDay nil).
// Para specific_times hay un slot por horario, ordenados por TimeOfDay.
// Invariante: exactamente un slot de la medicación tiene NextReminderAt != nil.
// ScheduledAt es el horario programado del dose pendiente y NextReminderAt el
// deadline del recordatorio: Delay mueve solo el deadline.
type Slot struct {
	ID           string
	MedicationID string

	TimeOfDay *frequency.TimeOfDay
	Position  int // orden en la lista original

	Status         SlotStatus
	Taken          bool // el último dose resuelto de este slot fue tomado
	LastTakenAt    *time.Time
	ScheduledAt    *time.Time
	NextReminderAt *time.Time
	LastNotifiedAt *time.Time

	UpdatedAt time.Time
}

// Actionable indica si el slot es el que tiene el próximo recordatorio.
func (s Slot) Actionable() bool {
	return s.NextReminderAt != nil
}

// Schedule deja el slot con un dose pendiente para at (sin delay).
func (s *Slot) Schedule(at time.Time) {
	sched, next := at, at
	s.ScheduledAt = &sched
	s.NextReminderAt = &next
}

// Unschedule saca al slot de la rotación.
func (s *Slot) Unschedule() {
	s.ScheduledAt = nil
	s.NextReminderAt = nil
}

// Scheduled devuelve el horario programado del dose pendiente.
func (s Slot) Scheduled() (time.Time, bool) {
	switch {
	case s.ScheduledAt != nil:
		return *s.ScheduledAt, true
	case s.NextReminderAt != nil:
		return *s.NextReminderAt, true
	}
	return time.Time{}, false
}

type Action string

const (
	ActionTaken   Action = "taken"
	ActionMissed  Action = "missed"
	ActionSkipped Action = "skipped"
	ActionDelayed Action = "delayed"
)

// Terminal indica si la acción cierra el dose (delayed no lo cierra).
func (a Action) Terminal() bool {
	return a == ActionTaken || a == ActionMissed || a == ActionSkipped
}

// DoseEvent es inmutable: se agrega al log y nunca se modifica ni se borra.
type DoseEvent struct {
	ID           string
	MedicationID string
	SlotID       string

	Action Action

	ScheduledAt time.Time
	ActualAt    *time.Time // solo taken
	Quantity    float64    // solo taken

	Reason string        // opcional (skip)
	Delay  time.Duration // solo delayed

	RecordedAt time.Time
}

// StreakEntries mapea el historial (cronológico) a entradas del streak.
func StreakEntries(events []DoseEvent) []streak.Entry {
	out := make([]streak.Entry, 0, len(events))
	for _, e := range events {
		var o streak.Outcome
		switch e.Action {
		case ActionTaken:
			o = streak.OutcomeTaken
		case ActionSkipped:
			o = streak.OutcomeSkipped
		case ActionMissed:
			o = streak.OutcomeMissed
		default:
			continue
		}
		at := e.RecordedAt
		if e.ActualAt != nil {
			at = *e.ActualAt
		}
		out = append(out, streak.Entry{Outcome: o, At: at})
	}
	return out
}

// State es todo lo que una transición lee de una medicación.
type State struct {
	Medication Medication
	Slots      []Slot
	Streak     streak.Streak
}

// Slot busca un slot por id.
func (st State) Slot(id string) (Slot, int, bool) {
	for i, s := range st.Slots {
		if s.ID == id {
			return s, i, true
		}
	}
	return Slot{}, -1, false
}

// Commit agrupa todo lo que una transición escribe.
// El repositorio lo aplica de forma atómica o no aplica nada.
type Commit struct {
	MedicationID     string
	ExpectedRevision int64

	Slots     []Slot         // slots modificados (upsert por id)
	Streak    *streak.Streak // nil = sin cambios
	Inventory *Inventory     // nil = sin cambios
	Events    []DoseEvent    // append-only

	At time.Time
}

// SortSlots ordena por time-of-day (rolling primero) y, en empate, por Position.
func SortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		switch {
		case a.TimeOfDay == nil && b.TimeOfDay != nil:
			return true
		case a.TimeOfDay != nil && b.TimeOfDay == nil:
			return false
		case a.TimeOfDay != nil && b.TimeOfDay != nil && *a.TimeOfDay != *b.TimeOfDay:
			return *a.TimeOfDay < *b.TimeOfDay
		}
		return a.Position < b.Position
	})
}

// SlotTimes adapta los slots al input del scheduler.
func SlotTimes(slots []Slot) []schedule.SlotTime {
	out := make([]schedule.SlotTime, 0, len(slots))
	for _, s := range slots {
		st := schedule.SlotTime{SlotID: s.ID}
		if s.TimeOfDay != nil {
			st.TimeOfDay = *s.TimeOfDay
		}
		out = append(out, st)
	}
	return out
}
