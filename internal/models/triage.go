package models

import (
	"time"
)

// UrgencyClass is the triage classification returned by the analysis endpoint.
type UrgencyClass string

const (
	UrgencyMild      UrgencyClass = "leve"
	UrgencyModerate  UrgencyClass = "moderado"
	UrgencySevere    UrgencyClass = "grave"
	UrgencyEmergency UrgencyClass = "emergencia"
)

// Triage is one symptom-intake record. Once a clinician is linked it also keys
// the patient/clinician conversation; ChatExpiresAt is set once and never changed.
type Triage struct {
	BaseModel
	PatientID            string       `gorm:"size:36;index;not null" json:"patientId"`
	Symptoms             string       `gorm:"type:text;not null" json:"symptoms"`
	UrgencyClass         UrgencyClass `gorm:"size:20" json:"urgencyClass"`
	Narrative            string       `gorm:"type:longtext" json:"narrative"`
	RecommendedSpecialty string       `gorm:"size:100" json:"recommendedSpecialty,omitempty"`
	LinkedProfessionalID *string      `gorm:"size:36;index" json:"linkedProfessionalId,omitempty"`
	ChatExpiresAt        *time.Time   `json:"chatExpiresAt,omitempty"`

	Patient            User          `gorm:"foreignKey:PatientID" json:"-"`
	LinkedProfessional *Professional `gorm:"foreignKey:LinkedProfessionalID" json:"linkedProfessional,omitempty"`
}

// ClinicianPatientLink records that a professional follows a patient.
type ClinicianPatientLink struct {
	BaseModel
	ProfessionalID string    `gorm:"size:36;index;not null" json:"professionalId"`
	PatientID      string    `gorm:"size:36;index;not null" json:"patientId"`
	TriageID       string    `gorm:"size:36;uniqueIndex;not null" json:"triageId"`
	Active         bool      `gorm:"default:true" json:"active"`
	LinkedAt       time.Time `json:"linkedAt"`
}
