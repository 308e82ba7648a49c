package schemas

import (
	"fmt"
	"time"
)

// -- Storage Keys --

// Keys shared by every component that reads or writes the persistence store.
// Day-scoped entry lists use DayKey instead of a constant.
const (
	KeyButtonConfig = "button_config"
	KeySettings     = "settings"
	KeyAlarmInfo    = "alarm_info"
	KeyNotified5Min = "notified_5min"
	KeyNotified1Min = "notified_1min"
	KeyNotifiedExit = "notified_exit"

	entriesKeyPrefix = "entries_"
)

// DayKey returns the storage key for the entry list of the calendar day containing t,
// evaluated in t's location (e.g., "entries_2025-03-07").
func DayKey(t time.Time) string {
	return fmt.Sprintf("%s%04d-%02d-%02d", entriesKeyPrefix, t.Year(), int(t.Month()), t.Day())
}

// -- Button Configuration --

// TargetElementConfig records the clock button chosen with the picker.
// The selector resolved to exactly one element in the document it was captured from.
type TargetElementConfig struct {
	Selector   string    `json:"selector"`
	PageOrigin string    `json:"page_origin"`
	PagePath   string    `json:"page_path"`
	PageTitle  string    `json:"page_title,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// -- Time Clock Records --

// EntrySource tells whether an entry came from a detected click or was typed in.
type EntrySource string

const (
	SourceAuto   EntrySource = "auto"
	SourceManual EntrySource = "manual"
)

// Entry is a single clock punch. Timestamp is Unix milliseconds.
type Entry struct {
	Timestamp int64       `json:"timestamp"`
	Source    EntrySource `json:"source"`
}

// Time converts the entry timestamp into a local time.Time.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Settings holds the workday definition used to compute the exit time.
type Settings struct {
	WorkHours    float64 `json:"work_hours"`
	BreakMinutes int     `json:"break_minutes"`
}

// Default workday values applied when no settings were saved.
const (
	DefaultWorkHours    = 8.0
	DefaultBreakMinutes = 60
)

// DefaultSettings returns the workday used before the user saves their own.
func DefaultSettings() Settings {
	return Settings{WorkHours: DefaultWorkHours, BreakMinutes: DefaultBreakMinutes}
}

// WithDefaults fills zero fields with the defaults.
func (s Settings) WithDefaults() Settings {
	if s.WorkHours <= 0 {
		s.WorkHours = DefaultWorkHours
	}
	if s.BreakMinutes <= 0 {
		s.BreakMinutes = DefaultBreakMinutes
	}
	return s
}

// AlarmInfo is the snapshot saved whenever the exit alarm is (re)scheduled.
type AlarmInfo struct {
	ExitTime int64    `json:"exit_time"`
	Entries  int      `json:"entries"`
	Settings Settings `json:"settings"`
}

// Exit returns the scheduled exit instant.
func (a AlarmInfo) Exit() time.Time {
	return time.UnixMilli(a.ExitTime)
}
