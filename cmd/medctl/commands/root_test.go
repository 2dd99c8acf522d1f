package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "preview")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, err := execute(t, "--unknown-flag", "value")
	assert.Error(t, err)
}

func TestPreview_FixedInterval(t *testing.T) {
	out, err := execute(t, "preview", "-f", "twice_daily", "--from", "2024-01-01T08:00:00Z", "-n", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "twice_daily")
	assert.Contains(t, lines[1], "2024-01-01T20:00:00Z")
	assert.Contains(t, lines[2], "2024-01-02T08:00:00Z")
	assert.Contains(t, lines[3], "2024-01-02T20:00:00Z")
}

func TestPreview_SpecificTimesWrapsToNextDay(t *testing.T) {
	out, err := execute(t, "preview", "-f", "specific_times", "--times", "13:00,09:00,18:00",
		"--from", "2024-01-01T18:00:00Z", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01-02T09:00:00Z")
	assert.Contains(t, out, "2024-01-02T13:00:00Z")
	assert.NotContains(t, out, "2024-01-01T18:00:00Z")
}

func TestPreview_Errors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		msg  string
	}{
		{"missing frequency", []string{"preview"}, "frequency"},
		{"unknown frequency", []string{"preview", "-f", "every_full_moon"}, "unknown frequency"},
		{"zero interval", []string{"preview", "-f", "every_X_hours", "--hours", "0"}, "interval"},
		{"bad tz", []string{"preview", "-f", "daily", "--tz", "Mars/Olympus"}, "timezone"},
		{"bad from", []string{"preview", "-f", "daily", "--from", "yesterday"}, "RFC3339"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestMigrate_PrintSchema(t *testing.T) {
	out, err := execute(t, "migrate", "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS medications")
	assert.Contains(t, out, "dose_events")
}
