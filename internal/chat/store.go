package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"medilink-server/internal/models"
)

// GormStore reads and writes conversation messages in the chat_messages table.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var rows []models.ChatMessage
	if err := s.DB.WithContext(ctx).
		Where("triage_id = ?", conversationID).
		Order("sent_at asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromModel(r))
	}
	return out, nil
}

func (s *GormStore) MarkRead(ctx context.Context, conversationID string, reader Role) error {
	return s.DB.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("triage_id = ? AND sender_role = ? AND read_status = ?", conversationID, string(reader.Other()), string(StatusSent)).
		Update("read_status", string(StatusRead)).Error
}

// Conversation loads the conversation keyed by a triage id.
func (s *GormStore) Conversation(ctx context.Context, conversationID string) (Conversation, error) {
	var t models.Triage
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, err
	}
	return ConversationFromTriage(t)
}

// Append persists a new message sent by one side of the conversation.
func (s *GormStore) Append(ctx context.Context, conv Conversation, sender Role, kind MessageKind, body, attachmentURL string, now time.Time) (Message, error) {
	row := models.ChatMessage{
		TriageID:       conv.ID,
		PatientID:      conv.PatientID,
		ProfessionalID: conv.ClinicianID,
		SenderRole:     string(sender),
		Body:           body,
		AttachmentURL:  attachmentURL,
		Kind:           string(kind),
		SentAt:         now,
		ReadStatus:     string(StatusSent),
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return Message{}, err
	}
	return FromModel(row), nil
}
