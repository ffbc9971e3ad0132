package models

import (
	"time"

	"medilink-server/internal/scheduling"
)

// Appointment represents a booked consultation
type Appointment struct {
	BaseModel
	PatientID       string                       `gorm:"size:36;index;not null" json:"patientId"`
	ProfessionalID  string                       `gorm:"size:36;index;not null" json:"professionalId"`
	ScheduledAt     time.Time                    `gorm:"index;not null" json:"scheduledAt"`
	DurationMinutes int                          `gorm:"default:30" json:"durationMinutes"`
	Kind            scheduling.AppointmentKind   `gorm:"size:20;not null" json:"kind"`
	Status          scheduling.AppointmentStatus `gorm:"size:20;default:'scheduled'" json:"status"`
	Reason          string                       `gorm:"type:text" json:"reason"`
	Notes           string                       `gorm:"type:text" json:"notes,omitempty"`
	VideoLink       string                       `gorm:"size:500" json:"videoLink,omitempty"`

	// Relations
	Patient      User         `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Professional Professional `gorm:"foreignKey:ProfessionalID" json:"professional,omitempty"`
}

// ToAppointment maps the row onto the scheduling boundary type.
func (a Appointment) ToAppointment() scheduling.Appointment {
	return scheduling.Appointment{
		ID:             a.ID,
		PatientID:      a.PatientID,
		ProfessionalID: a.ProfessionalID,
		ScheduledAt:    a.ScheduledAt,
		Kind:           a.Kind,
		Status:         a.Status,
		Reason:         a.Reason,
	}
}
