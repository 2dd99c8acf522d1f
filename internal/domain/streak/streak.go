package streak

import "time"

// Outcome es lo que le importa al streak de un DoseEvent.
type Outcome string

const (
	OutcomeTaken   Outcome = "taken"
	OutcomeSkipped Outcome = "skipped"
	OutcomeMissed  Outcome = "missed"
)

// Streak se mantiene incrementalmente por el motor de transiciones.
// Invariante: Longest >= Current.
type Streak struct {
	MedicationID string

	Current   int
	Longest   int
	LastTaken *time.Time

	// Contadores crudos para calcular adherencia en lectura.
	TakenCount   int
	SkippedCount int
	MissedCount  int

	UpdatedAt time.Time
}

func New(medicationID string) Streak {
	return Streak{MedicationID: medicationID}
}

func (s *Streak) OnTaken(at time.Time) {
	s.Current++
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	t := at
	s.LastTaken = &t
	s.TakenCount++
}

// OnSkippedOrMissed resetea Current; Longest no se toca.
func (s *Streak) OnSkippedOrMissed(o Outcome) {
	s.Current = 0
	switch o {
	case OutcomeSkipped:
		s.SkippedCount++
	case OutcomeMissed:
		s.MissedCount++
	}
}

// Apply aplica un outcome. Devuelve false si el outcome no afecta al streak.
func (s *Streak) Apply(o Outcome, at time.Time) bool {
	switch o {
	case OutcomeTaken:
		s.OnTaken(at)
	case OutcomeSkipped, OutcomeMissed:
		s.OnSkippedOrMissed(o)
	default:
		return false
	}
	return true
}

// Entry es un outcome con su instante, en orden cronológico.
type Entry struct {
	Outcome Outcome
	At      time.Time
}

// Replay reconstruye el streak desde el historial completo.
// Debe coincidir con el mantenido incrementalmente.
func Replay(medicationID string, entries []Entry) Streak {
	s := New(medicationID)
	for _, e := range entries {
		s.Apply(e.Outcome, e.At)
	}
	return s
}

// Total es la cantidad de doses resueltos (taken + skipped + missed).
func (s Streak) Total() int {
	return s.TakenCount + s.SkippedCount + s.MissedCount
}

// AdherenceRate = taken / (taken + missed + skipped). 0 si no hay doses.
func (s Streak) AdherenceRate() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.TakenCount) / float64(total)
}

// Valid chequea el invariante.
func (s Streak) Valid() bool {
	return s.Current >= 0 && s.Longest >= s.Current
}
