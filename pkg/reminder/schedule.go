package reminder

import (
	"sort"
	"time"

	"github.com/example/medistore/pkg/models"
)

const minutesPerDay = 24 * 60

// Slots returns the minutes of the day at which r alerts, ascending. The
// first slot is r.Time; further slots are spread evenly over 24 hours.
func Slots(r models.Reminder) []int {
	base, err := time.Parse("15:04", r.Time)
	if err != nil {
		return nil
	}
	times := r.Frequency.TimesPerDay()
	if times == 0 {
		return nil
	}
	first := base.Hour()*60 + base.Minute()
	step := minutesPerDay / times

	slots := make([]int, 0, times)
	for k := 0; k < times; k++ {
		slots = append(slots, (first+k*step)%minutesPerDay)
	}
	sort.Ints(slots)
	return slots
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// window is the [start, end) span in which r is active, in loc.
func window(r models.Reminder, loc *time.Location) (time.Time, time.Time) {
	start := startOfDay(r.CreatedAt.In(loc))
	return start, start.AddDate(0, 0, r.DurationDays)
}

// IsDue reports whether r alerts during the minute containing now.
func IsDue(r models.Reminder, now time.Time) bool {
	if !r.IsActive {
		return false
	}
	start, end := window(r, now.Location())
	if now.Before(start) || !now.Before(end) {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	for _, s := range Slots(r) {
		if s == minute {
			return true
		}
	}
	return false
}

// NextAlert returns the first alert time at or after now, if any remains.
func NextAlert(r models.Reminder, now time.Time) (time.Time, bool) {
	if !r.IsActive {
		return time.Time{}, false
	}
	slots := Slots(r)
	if len(slots) == 0 {
		return time.Time{}, false
	}
	start, end := window(r, now.Location())
	day := startOfDay(now)
	if day.Before(start) {
		day = start
	}
	floor := now.Truncate(time.Minute)
	for ; day.Before(end); day = day.AddDate(0, 0, 1) {
		for _, s := range slots {
			at := day.Add(time.Duration(s) * time.Minute)
			if !at.Before(floor) {
				return at, true
			}
		}
	}
	return time.Time{}, false
}
