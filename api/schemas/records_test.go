package schemas

import (
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayKey(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	assert.Equal(t, "entries_2025-03-07", DayKey(time.Date(2025, 3, 7, 23, 59, 0, 0, loc)))
	assert.Equal(t, "entries_2025-12-01", DayKey(time.Date(2025, 12, 1, 0, 0, 0, 0, loc)))

	// The day is taken in the instant's own location.
	instant := time.Date(2025, 3, 8, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, "entries_2025-03-07", DayKey(instant.In(loc)))
}

func TestSettings_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Settings
		want Settings
	}{
		{"zero value", Settings{}, DefaultSettings()},
		{"kept", Settings{WorkHours: 6, BreakMinutes: 15}, Settings{WorkHours: 6, BreakMinutes: 15}},
		{"zero break", Settings{WorkHours: 7.5}, Settings{WorkHours: 7.5, BreakMinutes: DefaultBreakMinutes}},
		{"negative hours", Settings{WorkHours: -1, BreakMinutes: 30}, Settings{WorkHours: DefaultWorkHours, BreakMinutes: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.WithDefaults())
		})
	}
}

func TestRecordTimes(t *testing.T) {
	at := time.Date(2025, 3, 7, 8, 0, 0, 0, time.UTC)
	e := Entry{Timestamp: at.UnixMilli(), Source: SourceAuto}
	assert.True(t, at.Equal(e.Time()))

	info := AlarmInfo{ExitTime: at.Add(9 * time.Hour).UnixMilli()}
	assert.True(t, at.Add(9*time.Hour).Equal(info.Exit()))
}

func TestStoredJSONShape(t *testing.T) {
	data, err := json.Marshal(AlarmInfo{ExitTime: 1, Entries: 2, Settings: DefaultSettings()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"exit_time":1,"entries":2,"settings":{"work_hours":8,"break_minutes":60}}`, string(data))

	data, err = json.Marshal(Notification{Title: "t", Message: "m", Priority: PriorityHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"t","message":"m","priority":2}`, string(data))
}
