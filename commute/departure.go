package commute

import "time"

// NextMondayMorning returns the next Monday at 08:00 in now's location that is
// strictly after now. Transit schedules are queried for this departure so that
// durations reflect a typical weekday rush hour.
func NextMondayMorning(now time.Time) time.Time {
	days := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	t := time.Date(now.Year(), now.Month(), now.Day()+days, 8, 0, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 7)
	}
	return t
}
