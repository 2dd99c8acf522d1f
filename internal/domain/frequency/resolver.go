package frequency

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fixedHours = map[Tag]float64{
	TagDaily:       24,
	TagTwiceDaily:  12,
	TagThriceDaily: 8,
	TagEveryHour:   1,
	TagWeekly:      168,
	TagMonthly:     720,
}

// Resolve traduce un Descriptor a su Rule.
// No hay default silencioso: un tag desconocido devuelve ErrUnknownFrequency.
func Resolve(d Descriptor) (Rule, error) {
	if h, ok := fixedHours[d.Tag]; ok {
		return FixedInterval(h), nil
	}

	switch d.Tag {
	case TagEveryXHours, TagCustom:
		if d.Hours <= 0 {
			return Rule{}, fmt.Errorf("%w: %s requires hours > 0", ErrInvalidInterval, d.Tag)
		}
		return FixedInterval(d.Hours), nil

	case TagSpecificTimes:
		if len(d.Times) == 0 {
			return Rule{}, fmt.Errorf("%w: specific_times requires at least one time", ErrInvalidInterval)
		}
		times := make([]TimeOfDay, 0, len(d.Times))
		for _, raw := range d.Times {
			t, err := ParseTimeOfDay(raw)
			if err != nil {
				return Rule{}, err
			}
			times = append(times, t)
		}
		// stable: horas iguales conservan el orden original de la lista
		sort.SliceStable(times, func(i, j int) bool { return times[i] < times[j] })
		return SpecificTimes(times), nil
	}

	return Rule{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, d.Tag)
}

var everyXHours = regexp.MustCompile(`^every_(\d+(?:\.\d+)?)_hours?$`)

var aliases = map[string]Tag{
	"once_daily":        TagDaily,
	"once_a_day":        TagDaily,
	"twice_a_day":       TagTwiceDaily,
	"three_times_a_day": TagThriceDaily,
	"three_times_daily": TagThriceDaily,
	"hourly":            TagEveryHour,
}

// ParseDescriptor normaliza el texto que llega de clientes/legacy
// ("Twice Daily", "every-6-hours", "every_8_hours"...) a un Descriptor.
// times solo se usa cuando el tag resulta ser specific_times.
func ParseDescriptor(raw string, hours float64, times []string) (Descriptor, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	if s == "" {
		return Descriptor{}, fmt.Errorf("%w: empty", ErrUnknownFrequency)
	}

	if s == strings.ToLower(string(TagEveryXHours)) {
		return Descriptor{Tag: TagEveryXHours, Hours: hours}, nil
	}
	if m := everyXHours.FindStringSubmatch(s); m != nil {
		h, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, raw)
		}
		return Descriptor{Tag: TagEveryXHours, Hours: h}, nil
	}
	if t, ok := aliases[s]; ok {
		return Descriptor{Tag: t}, nil
	}

	tag := Tag(s)
	switch tag {
	case TagDaily, TagTwiceDaily, TagThriceDaily, TagEveryHour, TagWeekly, TagMonthly:
		return Descriptor{Tag: tag}, nil
	case TagSpecificTimes:
		return Descriptor{Tag: tag, Times: times}, nil
	case TagCustom:
		return Descriptor{Tag: tag, Hours: hours}, nil
	}

	return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, raw)
}
