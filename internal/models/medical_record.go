package models

import (
	"time"
)

// DocumentKind represents the type of an uploaded medical document
type DocumentKind string

const (
	DocumentExam         DocumentKind = "exam"
	DocumentPrescription DocumentKind = "prescription"
	DocumentReport       DocumentKind = "report"
	DocumentVaccination  DocumentKind = "vaccination"
	DocumentOther        DocumentKind = "other"
)

// MedicalRecord is the patient's running health summary (one per patient)
type MedicalRecord struct {
	BaseModel
	PatientID   string `gorm:"size:36;uniqueIndex;not null" json:"patientId"`
	Allergies   string `gorm:"type:text" json:"allergies"`
	History     string `gorm:"type:text" json:"history"`
	Medications string `gorm:"type:text" json:"medications"`
	Notes       string `gorm:"type:text" json:"notes"`
}

// MedicalDocument is a file uploaded for a patient (exam, prescription, report...)
type MedicalDocument struct {
	BaseModel
	PatientID    string       `gorm:"size:36;index;not null" json:"patientId"`
	UploadedByID string       `gorm:"size:36;not null" json:"uploadedById"`
	Kind         DocumentKind `gorm:"size:30;not null" json:"kind"`
	Title        string       `gorm:"size:255;not null" json:"title"`
	Description  string       `gorm:"type:text" json:"description,omitempty"`
	FileName     string       `gorm:"size:255;not null" json:"fileName"`
	ContentType  string       `gorm:"size:100" json:"contentType"`
	FileURL      string       `gorm:"size:500;not null" json:"fileUrl"`
	StorageKey   string       `gorm:"size:500" json:"-"`
	DocumentDate *time.Time   `json:"documentDate,omitempty"`
}

// Reminder is a personal reminder (medication, exam, appointment) owned by one user
type Reminder struct {
	BaseModel
	UserID      string    `gorm:"size:36;index;not null" json:"userId"`
	Kind        string    `gorm:"size:30;not null" json:"kind"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	DueAt       time.Time `gorm:"index;not null" json:"dueAt"`
	Recurrence  string    `gorm:"size:20" json:"recurrence,omitempty"` // e.g. 8h, 12h, daily
	Completed   bool      `gorm:"default:false" json:"completed"`
}
