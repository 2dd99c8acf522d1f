package schedule

import (
	"fmt"
	"sort"
	"time"

	"medication-reminder/internal/domain/frequency"
)

var (
	ErrInvalidInterval = frequency.ErrInvalidInterval
)

// SlotTime es lo mínimo que el scheduler necesita de un slot:
// su id y, para specific_times, el time-of-day.
type SlotTime struct {
	SlotID    string
	TimeOfDay frequency.TimeOfDay
}

// Next es el próximo recordatorio y el slot que lo representa.
// SlotID vacío = no hay slot asociado (p.ej. slots sin ids).
type Next struct {
	At     time.Time
	SlotID string
}

// ComputeNextReminder calcula el próximo recordatorio a partir del dose actual.
// Siempre devuelve un instante estrictamente posterior a current; si no puede,
// devuelve ErrInvalidInterval en vez de iterar.
func ComputeNextReminder(rule frequency.Rule, current time.Time, slots []SlotTime) (time.Time, error) {
	n, err := NextSlot(rule, current, slots)
	if err != nil {
		return time.Time{}, err
	}
	return n.At, nil
}

// NextSlot es ComputeNextReminder devolviendo además el slot elegido.
//
// FixedInterval: current + h (el único slot, si viene, es el rolling slot).
// SpecificTimes: el slot "matched" es el último con time-of-day <= current;
// el siguiente es el primero estrictamente posterior, y si no hay, el primero
// del día siguiente.
func NextSlot(rule frequency.Rule, current time.Time, slots []SlotTime) (Next, error) {
	switch rule.Kind {
	case frequency.KindFixedInterval:
		if rule.Hours <= 0 {
			return Next{}, fmt.Errorf("%w: %gh", ErrInvalidInterval, rule.Hours)
		}
		at := current.Add(rule.Interval())
		if !at.After(current) {
			return Next{}, fmt.Errorf("%w: %gh", ErrInvalidInterval, rule.Hours)
		}
		n := Next{At: at}
		if len(slots) > 0 {
			n.SlotID = slots[0].SlotID
		}
		return n, nil

	case frequency.KindSpecificTimes:
		ordered := orderedSlots(rule, slots)
		if len(ordered) == 0 {
			return Next{}, fmt.Errorf("%w: no times configured", ErrInvalidInterval)
		}

		cur := frequency.SecondsOf(current)
		for _, s := range ordered {
			if s.TimeOfDay.Seconds() > cur {
				return check(current, Next{At: s.TimeOfDay.On(current), SlotID: s.SlotID})
			}
		}

		first := ordered[0]
		return check(current, Next{At: first.TimeOfDay.On(current.AddDate(0, 0, 1)), SlotID: first.SlotID})
	}

	return Next{}, fmt.Errorf("%w: unknown rule kind %q", ErrInvalidInterval, rule.Kind)
}

// FirstReminder calcula el primer recordatorio de una medicación nueva.
// Para intervalos es from + h; para specific_times, el próximo horario estrictamente
// posterior a from.
func FirstReminder(rule frequency.Rule, from time.Time, slots []SlotTime) (Next, error) {
	return NextSlot(rule, from, slots)
}

// Preview lista los próximos n recordatorios a partir de from.
func Preview(rule frequency.Rule, from time.Time, slots []SlotTime, n int) ([]Next, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]Next, 0, n)
	cur := from
	for i := 0; i < n; i++ {
		next, err := NextSlot(rule, cur, slots)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		cur = next.At
	}
	return out, nil
}

func orderedSlots(rule frequency.Rule, slots []SlotTime) []SlotTime {
	var out []SlotTime
	if len(slots) > 0 {
		out = make([]SlotTime, len(slots))
		copy(out, slots)
	} else {
		out = make([]SlotTime, 0, len(rule.Times))
		for _, t := range rule.Times {
			out = append(out, SlotTime{TimeOfDay: t})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeOfDay < out[j].TimeOfDay })
	return out
}

func check(current time.Time, n Next) (Next, error) {
	if !n.At.After(current) {
		return Next{}, fmt.Errorf("%w: %s is not after %s", ErrInvalidInterval, n.At.Format(time.RFC3339), current.Format(time.RFC3339))
	}
	return n, nil
}
