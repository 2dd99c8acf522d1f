package streak

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreak_Incremental(t *testing.T) {
	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	s := New("med-1")

	s.OnTaken(at)
	s.OnTaken(at.Add(12 * time.Hour))
	assert.Equal(t, 2, s.Current)
	assert.Equal(t, 2, s.Longest)
	require.NotNil(t, s.LastTaken)
	assert.Equal(t, at.Add(12*time.Hour), *s.LastTaken)

	s.OnSkippedOrMissed(OutcomeMissed)
	assert.Equal(t, 0, s.Current)
	assert.Equal(t, 2, s.Longest, "longest sobrevive al reset")

	s.OnTaken(at.Add(36 * time.Hour))
	s.OnSkippedOrMissed(OutcomeSkipped)
	assert.Equal(t, 0, s.Current)
	assert.Equal(t, 2, s.Longest)

	assert.Equal(t, 3, s.TakenCount)
	assert.Equal(t, 1, s.MissedCount)
	assert.Equal(t, 1, s.SkippedCount)
	assert.InDelta(t, 0.6, s.AdherenceRate(), 1e-9)
}

func TestStreak_ApplyIgnoresUnknown(t *testing.T) {
	s := New("med-1")
	assert.False(t, s.Apply("delayed", time.Now()))
	assert.Equal(t, New("med-1"), s)
	assert.Zero(t, s.AdherenceRate())
}

func TestReplay_MatchesIncremental(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	outcomes := []Outcome{OutcomeTaken, OutcomeTaken, OutcomeTaken, OutcomeSkipped, OutcomeMissed}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for run := 0; run < 50; run++ {
		inc := New("med-1")
		var entries []Entry
		for i := 0; i < 40; i++ {
			o := outcomes[rng.Intn(len(outcomes))]
			at := start.Add(time.Duration(i) * time.Hour)
			inc.Apply(o, at)
			entries = append(entries, Entry{Outcome: o, At: at})

			require.True(t, inc.Valid(), "longest >= current")
		}

		replayed := Replay("med-1", entries)
		assert.Equal(t, inc.Current, replayed.Current)
		assert.Equal(t, inc.Longest, replayed.Longest)
		assert.Equal(t, inc.TakenCount, replayed.TakenCount)
		assert.Equal(t, inc.Total(), len(entries))
	}
}
