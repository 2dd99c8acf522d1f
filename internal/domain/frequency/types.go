package frequency

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownFrequency = errors.New("unknown frequency")
	ErrInvalidInterval  = errors.New("invalid interval")
	ErrInvalidTime      = errors.New("invalid time of day")
)

// Tag es el identificador user-facing de la frecuencia.
// @Enum daily, twice_daily, thrice_daily, every_hour, weekly, monthly, every_X_hours, specific_times, custom
type Tag string

const (
	TagDaily         Tag = "daily"
	TagTwiceDaily    Tag = "twice_daily"
	TagThriceDaily   Tag = "thrice_daily"
	TagEveryHour     Tag = "every_hour"
	TagWeekly        Tag = "weekly"
	TagMonthly       Tag = "monthly"
	TagEveryXHours   Tag = "every_X_hours"
	TagSpecificTimes Tag = "specific_times"
	TagCustom        Tag = "custom"
)

// Descriptor describe la frecuencia tal como la registra el usuario.
// Hours solo aplica a every_X_hours y custom; Times solo a specific_times.
type Descriptor struct {
	Tag   Tag
	Hours float64
	Times []string // "HH:MM"
}

func (d Descriptor) String() string {
	switch d.Tag {
	case TagEveryXHours:
		return fmt.Sprintf("every_%g_hours", d.Hours)
	case TagSpecificTimes:
		return string(d.Tag) + "[" + strings.Join(d.Times, ",") + "]"
	case TagCustom:
		return fmt.Sprintf("custom(%gh)", d.Hours)
	default:
		return string(d.Tag)
	}
}

// TimeOfDay son minutos desde medianoche (0..1439).
type TimeOfDay int

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, ErrInvalidTime
	}
	return TimeOfDay(hour*60 + minute), nil
}

// ParseTimeOfDay acepta "HH:MM" (también "H:MM").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return NewTimeOfDay(t.Hour(), t.Minute())
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On devuelve el instante de ese time-of-day en la fecha de day (misma location).
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location())
}

// SecondsOf extrae el time-of-day (segundos desde medianoche) de un instante.
func SecondsOf(ts time.Time) int {
	return ts.Hour()*3600 + ts.Minute()*60 + ts.Second()
}

func (t TimeOfDay) Seconds() int { return int(t) * 60 }

// Kind distingue las dos formas de regla.
type Kind string

const (
	KindFixedInterval Kind = "fixed_interval"
	KindSpecificTimes Kind = "specific_times"
)

// Rule es la regla de intervalo resuelta (IntervalRule).
type Rule struct {
	Kind  Kind
	Hours float64     // KindFixedInterval
	Times []TimeOfDay // KindSpecificTimes, orden estable ascendente
}

func FixedInterval(hours float64) Rule {
	return Rule{Kind: KindFixedInterval, Hours: hours}
}

func SpecificTimes(times []TimeOfDay) Rule {
	return Rule{Kind: KindSpecificTimes, Times: times}
}

// Interval devuelve la duración de una regla FixedInterval.
func (r Rule) Interval() time.Duration {
	return time.Duration(r.Hours * float64(time.Hour))
}
