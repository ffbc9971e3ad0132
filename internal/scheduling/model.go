package scheduling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultGranularity is the slot step used by the booking screens.
const DefaultGranularity = 30 * time.Minute

var ErrInvalidClockTime = errors.New("invalid time of day")

// ClockTime is a wall-clock time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime accepts "HH:MM" or "HH:MM:SS" (seconds are dropped).
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
		}
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) ClockTime {
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}
}

// Minutes returns the number of minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Before reports whether c is earlier in the day than o.
func (c ClockTime) Before(o ClockTime) bool {
	return c.Minutes() < o.Minutes()
}

// On returns the instant at time c on the calendar date of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func clockFromMinutes(total int) ClockTime {
	return ClockTime{Hour: total / 60, Minute: total % 60}
}

// Window is a recurring weekly interval during which a clinician accepts bookings.
type Window struct {
	ID             string
	ProfessionalID string
	DayOfWeek      time.Weekday
	Start          ClockTime
	End            ClockTime
	Active         bool
}

// Valid reports whether the window is well formed.
func (w Window) Valid() bool {
	return w.DayOfWeek >= time.Sunday && w.DayOfWeek <= time.Saturday && w.Start.Before(w.End)
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type AppointmentKind string

const (
	KindInPerson AppointmentKind = "in_person"
	KindRemote   AppointmentKind = "remote"
)

// Appointment is the booking view used by the slot reducer.
type Appointment struct {
	ID             string
	PatientID      string
	ProfessionalID string
	ScheduledAt    time.Time
	Kind           AppointmentKind
	Status         AppointmentStatus
	Reason         string
}

// Occupies reports whether the appointment blocks its slot.
func (a Appointment) Occupies() bool {
	return a.Status == StatusScheduled || a.Status == StatusConfirmed
}

// Slot is one bookable time unit on a concrete date.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an appointment may move from one status to another.
// Completed and cancelled are terminal.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
