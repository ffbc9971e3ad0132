package chat

import (
	"context"
	"errors"
	"time"

	"medilink-server/internal/models"
)

var (
	ErrConversationExpired  = errors.New("conversation has expired")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant of this conversation")
)

// Role is the side of the conversation that authored a message.
type Role string

const (
	RolePatient   Role = "patient"
	RoleClinician Role = "clinician"
)

// Other returns the opposite side of the conversation.
func (r Role) Other() Role {
	if r == RolePatient {
		return RoleClinician
	}
	return RolePatient
}

type MessageKind string

const (
	KindText       MessageKind = "text"
	KindAttachment MessageKind = "attachment"
)

type ReadStatus string

const (
	StatusSent ReadStatus = "sent"
	StatusRead ReadStatus = "read"
)

// Message is an immutable chat message; only ReadStatus moves, from sent to read.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderRole     Role        `json:"senderRole"`
	Body           string      `json:"body"`
	AttachmentURL  string      `json:"attachmentUrl,omitempty"`
	Kind           MessageKind `json:"kind"`
	SentAt         time.Time   `json:"sentAt"`
	ReadStatus     ReadStatus  `json:"readStatus"`
}

// Conversation is the chat opened from a triage once a clinician is linked.
type Conversation struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patientId"`
	ClinicianID string     `json:"clinicianId"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// Store is the persistence the feed reads from and writes read receipts to.
type Store interface {
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	MarkRead(ctx context.Context, conversationID string, reader Role) error
}

// Subscription is a live registration on the realtime feed.
type Subscription interface {
	Close() error
}

// Subscriber delivers messages inserted into one conversation, in commit order.
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID string, onMessage func(Message)) (Subscription, error)
}

// FromModel maps a stored row onto the chat boundary type.
func FromModel(m models.ChatMessage) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.TriageID,
		SenderRole:     Role(m.SenderRole),
		Body:           m.Body,
		AttachmentURL:  m.AttachmentURL,
		Kind:           MessageKind(m.Kind),
		SentAt:         m.SentAt,
		ReadStatus:     ReadStatus(m.ReadStatus),
	}
}

// ConversationFromTriage maps a linked triage onto a conversation.
func ConversationFromTriage(t models.Triage) (Conversation, error) {
	if t.LinkedProfessionalID == nil {
		return Conversation{}, ErrConversationNotFound
	}
	return Conversation{
		ID:          t.ID,
		PatientID:   t.PatientID,
		ClinicianID: *t.LinkedProfessionalID,
		ExpiresAt:   t.ChatExpiresAt,
	}, nil
}
