package timeclock

import (
	"fmt"
	"math"
	"time"

	"github.com/xkilldash9x/punchclock/api/schemas"
)

// Workday returns the total span between the first entry and the exit time.
func Workday(s schemas.Settings) time.Duration {
	s = s.WithDefaults()
	return time.Duration(s.WorkHours*float64(time.Hour)) + time.Duration(s.BreakMinutes)*time.Minute
}

// ExitTime is the first entry of the day plus the work hours and the break.
// It reports false when there are no entries.
func ExitTime(entries []schemas.Entry, s schemas.Settings) (time.Time, bool) {
	if len(entries) == 0 {
		return time.Time{}, false
	}
	first := entries[0].Timestamp
	for _, e := range entries[1:] {
		if e.Timestamp < first {
			first = e.Timestamp
		}
	}
	return time.UnixMilli(first).Add(Workday(s)), true
}

// Remaining describes how long until the exit time.
type Remaining struct {
	Expired bool
	Hours   int
	Minutes int
}

// String renders the remaining time as "7h 59min", or a prompt once expired.
func (r Remaining) String() string {
	if r.Expired {
		return "Time to clock out!"
	}
	return fmt.Sprintf("%dh %dmin", r.Hours, r.Minutes)
}

// TimeRemaining computes the time left between now and exit.
func TimeRemaining(exit, now time.Time) Remaining {
	diff := exit.Sub(now)
	if diff <= 0 {
		return Remaining{Expired: true}
	}
	return Remaining{
		Hours:   int(diff / time.Hour),
		Minutes: int((diff % time.Hour) / time.Minute),
	}
}

// MinutesUntil rounds the time between now and exit to whole minutes.
// Negative once exit has passed.
func MinutesUntil(exit, now time.Time) int {
	return int(math.Round(exit.Sub(now).Minutes()))
}

// Progress returns the elapsed share of the workday as a percentage in [0, 100].
func Progress(entries []schemas.Entry, s schemas.Settings, now time.Time) float64 {
	exit, ok := ExitTime(entries, s)
	if !ok {
		return 0
	}
	total := Workday(s)
	start := exit.Add(-total)
	pct := float64(now.Sub(start)) / float64(total) * 100
	return math.Min(100, math.Max(0, pct))
}

// FormatClock renders t as "HH:MM".
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}
