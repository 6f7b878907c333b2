package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    Status
		wantErr bool
	}{
		{name: "lowercase", raw: "working", want: StatusWorking},
		{name: "mixed case", raw: "Attention", want: StatusAttention},
		{name: "padded", raw: "  question ", want: StatusQuestion},
		{name: "closed", raw: "CLOSED", want: StatusClosed},
		{name: "unknown", raw: "sleeping", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseStatus(tc.raw)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSessionInactive(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{Status: StatusWorking, StatusSince: since}

	assert.False(t, s.Inactive(since.Add(time.Hour), time.Hour))
	assert.True(t, s.Inactive(since.Add(time.Hour+time.Second), time.Hour))
	assert.False(t, s.Inactive(since.Add(48*time.Hour), 0))

	s.Status = StatusClosed
	assert.False(t, s.Inactive(since.Add(48*time.Hour), time.Hour))
}

func TestSessionElapsedNeverNegative(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{StatusSince: since}

	assert.Equal(t, time.Duration(0), s.Elapsed(since.Add(-time.Minute)))
	assert.Equal(t, 90*time.Second, s.Elapsed(since.Add(90*time.Second)))
}

func TestAppendHistoryDropsOldest(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var history []HistoryEntry
	for i := 0; i < 5; i++ {
		status := StatusWorking
		if i%2 == 1 {
			status = StatusAttention
		}
		history = appendHistory(history, HistoryEntry{Status: status, At: base.Add(time.Duration(i) * time.Second)}, 3)
	}

	require.Len(t, history, 3)
	assert.Equal(t, base.Add(2*time.Second), history[0].At)
	assert.Equal(t, base.Add(4*time.Second), history[2].At)
}

func TestUsageStaleDetection(t *testing.T) {
	t.Parallel()

	captured := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	u := Usage{CapturedAt: captured}

	assert.False(t, u.IsStale(captured.Add(5*time.Minute), 10*time.Minute))
	assert.True(t, u.IsStale(captured.Add(11*time.Minute), 10*time.Minute))
	assert.False(t, u.IsStale(captured.Add(24*time.Hour), 0))
	assert.True(t, Usage{}.IsStale(captured, 10*time.Minute))
}

func TestWindowLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seconds int64
		want    string
	}{
		{name: "five hours", seconds: 5 * 3600, want: "5h"},
		{name: "one week", seconds: 7 * 86400, want: "7d"},
		{name: "odd minutes", seconds: 1830, want: "31m"},
		{name: "zero", seconds: 0, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WindowLabel(tc.seconds))
		})
	}
}

func TestUsageWindowLeftPercentClamps(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 75.0, UsageWindow{UsedPercent: 25}.LeftPercent(), 0.001)
	assert.InDelta(t, 0.0, UsageWindow{UsedPercent: 130}.LeftPercent(), 0.001)
	assert.InDelta(t, 100.0, UsageWindow{UsedPercent: -5}.LeftPercent(), 0.001)
}
