package models

import (
	"time"
)

// ChatMessage is one message of a triage conversation
type ChatMessage struct {
	BaseModel
	TriageID       string    `gorm:"size:36;index;not null" json:"conversationId"`
	PatientID      string    `gorm:"size:36;index;not null" json:"patientId"`
	ProfessionalID string    `gorm:"size:36;index;not null" json:"professionalId"`
	SenderRole     string    `gorm:"size:20;not null" json:"senderRole"`
	Body           string    `gorm:"type:text" json:"body"`
	AttachmentURL  string    `gorm:"size:500" json:"attachmentUrl,omitempty"`
	Kind           string    `gorm:"size:20;default:'text'" json:"kind"`
	SentAt         time.Time `gorm:"index;not null" json:"sentAt"`
	ReadStatus     string    `gorm:"size:20;default:'sent'" json:"readStatus"`

	Patient User `gorm:"foreignKey:PatientID" json:"-"`
}
