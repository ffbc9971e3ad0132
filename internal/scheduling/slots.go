package scheduling

import (
	"sort"
	"time"
)

// ComputeSlots derives the bookable slots of one calendar date from a clinician's
// recurring windows and the appointments already booked.
//
// Each active window matching date's weekday is walked from Start in granularity
// steps while the step start is before End, so a window ending on a slot boundary
// does not emit a slot at that boundary. Slots produced by overlapping windows are
// merged by time. Occupying appointments on the same date mark their slot
// unavailable; an appointment whose time matches no generated slot is ignored.
//
// The result is ordered by time. date's location is the clinic time zone.
func ComputeSlots(date time.Time, windows []Window, appointments []Appointment, granularity time.Duration) []Slot {
	step := int(granularity / time.Minute)
	if step <= 0 {
		return []Slot{}
	}

	weekday := date.Weekday()
	available := make(map[int]bool)
	professionals := make(map[string]struct{})
	for _, w := range windows {
		if !w.Active || w.DayOfWeek != weekday || !w.Valid() {
			continue
		}
		professionals[w.ProfessionalID] = struct{}{}
		for m := w.Start.Minutes(); m < w.End.Minutes(); m += step {
			available[m] = true
		}
	}
	if len(available) == 0 {
		return []Slot{}
	}

	y, mo, d := date.Date()
	for _, a := range appointments {
		if !a.Occupies() {
			continue
		}
		if _, ok := professionals[a.ProfessionalID]; !ok {
			continue
		}
		at := a.ScheduledAt.In(date.Location())
		ay, amo, ad := at.Date()
		if ay != y || amo != mo || ad != d {
			continue
		}
		key := ClockOf(at).Minutes()
		if _, ok := available[key]; ok {
			available[key] = false
		}
	}

	minutes := make([]int, 0, len(available))
	for m := range available {
		minutes = append(minutes, m)
	}
	sort.Ints(minutes)

	slots := make([]Slot, 0, len(minutes))
	for _, m := range minutes {
		slots = append(slots, Slot{Time: clockFromMinutes(m).String(), Available: available[m]})
	}
	return slots
}

// FindSlot returns the slot starting at c, if one was generated.
func FindSlot(slots []Slot, c ClockTime) (Slot, bool) {
	key := c.String()
	for _, s := range slots {
		if s.Time == key {
			return s, true
		}
	}
	return Slot{}, false
}
