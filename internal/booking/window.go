package booking

import "time"

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// SlotWindow returns the fixed two-hour bucket that starts at the top of
// the hour of instant, as seen in loc.
func SlotWindow(instant time.Time, loc *time.Location) Window {
	local := instant.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	return Window{Start: start, End: start.Add(SlotDuration)}
}

// DayWindow returns the calendar day of instant in loc, from local
// midnight up to (not including) the next local midnight.
func DayWindow(instant time.Time, loc *time.Location) Window {
	local := instant.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}
