package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveWindowContains(t *testing.T) {
	wib := time.FixedZone("WIB", 7*3600)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		win  ActiveWindow
		at   time.Time
		want bool
	}{
		{"start edge", ActiveWindow{6, 22, time.UTC}, day.Add(6 * time.Hour), true},
		{"end hour inclusive", ActiveWindow{6, 22, time.UTC}, day.Add(22*time.Hour + 59*time.Minute), true},
		{"after end", ActiveWindow{6, 22, time.UTC}, day.Add(23 * time.Hour), false},
		{"before start", ActiveWindow{6, 22, time.UTC}, day.Add(5*time.Hour + 59*time.Minute), false},
		{"wrap late", ActiveWindow{22, 2, time.UTC}, day.Add(23 * time.Hour), true},
		{"wrap early", ActiveWindow{22, 2, time.UTC}, day.Add(2 * time.Hour), true},
		{"wrap outside", ActiveWindow{22, 2, time.UTC}, day.Add(3 * time.Hour), false},
		{"window timezone", ActiveWindow{6, 22, wib}, day.Add(-time.Hour), true},                 // 06:00 WIB
		{"window timezone outside", ActiveWindow{6, 22, wib}, day.Add(-61 * time.Minute), false}, // 05:59 WIB
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.win.Contains(tt.at))
		})
	}
}

func TestBuildTriggerPlainInterval(t *testing.T) {
	now := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	tr := BuildTrigger(5*time.Minute, nil)
	assert.Equal(t, now.Add(5*time.Minute), tr.Next(now))
}

func TestBuildTriggerWindowGating(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	tr := BuildTrigger(time.Hour, &ActiveWindow{StartHour: 6, EndHour: 22, Loc: time.UTC})

	var hours []int
	for n := tr.Next(start); n.Before(end); n = tr.Next(n) {
		hours = append(hours, n.Hour())
	}
	require.Len(t, hours, 17)
	assert.Equal(t, 6, hours[0])
	assert.Equal(t, 22, hours[len(hours)-1])
}

func TestBuildTriggerSkipsToNextWindow(t *testing.T) {
	tr := BuildTrigger(time.Hour, &ActiveWindow{StartHour: 6, EndHour: 22, Loc: time.UTC})

	at := time.Date(2024, 1, 1, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 2, 6, 30, 0, 0, time.UTC), tr.Next(at))
}

func TestBuildTriggerStartupSpread(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := BuildTrigger(time.Minute, nil, WithStartupSpread(now, "42_abc"))

	first := tr.Next(now)
	assert.False(t, first.Before(now.Add(time.Minute)))
	assert.True(t, first.Before(now.Add(time.Minute+maxStartupSpread)))
	assert.Equal(t, first.Add(time.Minute).Truncate(time.Second), tr.Next(first))
}

func TestBuildTriggerSpreadInsideWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	tr := BuildTrigger(time.Hour, &ActiveWindow{StartHour: 6, EndHour: 22, Loc: time.UTC}, WithStartupSpread(now, "k"))

	next := tr.Next(now)
	assert.Equal(t, 6, next.Hour())
	assert.Equal(t, 2, next.Day())
}
