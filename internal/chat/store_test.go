package chat

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestGormStore_ListMessages(t *testing.T) {
	db, mock := setupMockDB(t)
	rows := sqlmock.NewRows([]string{"id", "triage_id", "sender_role", "body", "kind", "sent_at", "read_status"}).
		AddRow("m1", "conv-1", "patient", "hello", "text", base, "read").
		AddRow("m2", "conv-1", "clinician", "hi", "text", base.Add(time.Minute), "sent")
	mock.ExpectQuery("SELECT \\* FROM `chat_messages` WHERE triage_id = \\? ORDER BY sent_at asc").
		WillReturnRows(rows)

	got, err := NewGormStore(db).ListMessages(context.Background(), "conv-1")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "conv-1", got[0].ConversationID)
	assert.Equal(t, RolePatient, got[0].SenderRole)
	assert.Equal(t, StatusRead, got[0].ReadStatus)
	assert.Equal(t, RoleClinician, got[1].SenderRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_MarkRead(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `chat_messages` SET `read_status`=.*WHERE triage_id = \\? AND sender_role = \\? AND read_status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := NewGormStore(db).MarkRead(context.Background(), "conv-1", RolePatient)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ConversationNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("SELECT \\* FROM `triages`").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewGormStore(db).Conversation(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestGormStore_ConversationUnlinkedTriage(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("SELECT \\* FROM `triages`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "linked_professional_id"}).AddRow("t1", "p1", nil))

	_, err := NewGormStore(db).Conversation(context.Background(), "t1")

	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestGormStore_Conversation(t *testing.T) {
	db, mock := setupMockDB(t)
	exp := base.Add(24 * time.Hour)
	mock.ExpectQuery("SELECT \\* FROM `triages`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "linked_professional_id", "chat_expires_at"}).
			AddRow("t1", "p1", "pro-1", exp))

	conv, err := NewGormStore(db).Conversation(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, "t1", conv.ID)
	assert.Equal(t, "p1", conv.PatientID)
	assert.Equal(t, "pro-1", conv.ClinicianID)
	require.NotNil(t, conv.ExpiresAt)
	assert.True(t, exp.Equal(*conv.ExpiresAt))
}
