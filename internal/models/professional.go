package models

import (
	"time"

	"medilink-server/internal/scheduling"
)

// Professional is the clinician profile attached to a user with the clinician role.
type Professional struct {
	BaseModel
	UserID       string `gorm:"size:36;uniqueIndex;not null" json:"userId"`
	Specialty    string `gorm:"size:100;index;not null" json:"specialty"`
	PracticeArea string `gorm:"size:150" json:"practiceArea,omitempty"`
	Registry     string `gorm:"size:50" json:"registry,omitempty"` // council registration, e.g. CRM
	Location     string `gorm:"size:255" json:"location,omitempty"`
	Experience   string `gorm:"type:text" json:"experience,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"user"`
}

// AvailabilityWindow is a recurring weekly interval in which a professional accepts bookings.
// Times are "HH:MM" in the clinic time zone.
type AvailabilityWindow struct {
	BaseModel
	ProfessionalID string `gorm:"size:36;index;not null" json:"professionalId"`
	DayOfWeek      int    `gorm:"not null" json:"dayOfWeek"` // 0 = Sunday
	StartTime      string `gorm:"size:8;not null" json:"startTime"`
	EndTime        string `gorm:"size:8;not null" json:"endTime"`
	Active         bool   `gorm:"default:true" json:"active"`
}

// ToWindow maps the row onto the scheduling boundary type.
func (w AvailabilityWindow) ToWindow() (scheduling.Window, error) {
	start, err := scheduling.ParseClockTime(w.StartTime)
	if err != nil {
		return scheduling.Window{}, err
	}
	end, err := scheduling.ParseClockTime(w.EndTime)
	if err != nil {
		return scheduling.Window{}, err
	}
	return scheduling.Window{
		ID:             w.ID,
		ProfessionalID: w.ProfessionalID,
		DayOfWeek:      time.Weekday(w.DayOfWeek),
		Start:          start,
		End:            end,
		Active:         w.Active,
	}, nil
}
