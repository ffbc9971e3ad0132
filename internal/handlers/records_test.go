package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medilink-server/internal/models"
)

func recordRouter(h *MedicalRecordHandler, userID string, role models.Role) http.Handler {
	r := newTestRouter(userID, role)
	r.GET("/records/me", h.GetMine)
	r.PUT("/records/me", h.UpsertMine)
	r.GET("/records/:patientId", h.GetForPatient)
	return r
}

func TestGetMine_EmptyRecord(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewMedicalRecordHandler(db, nopLogger())

	mock.ExpectQuery("SELECT \\* FROM `medical_records` WHERE patient_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := doJSON(recordRouter(h, "patient-1", models.RolePatient), http.MethodGet, "/records/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.MedicalRecord](t, w).Data
	assert.Equal(t, "patient-1", got.PatientID)
	assert.Empty(t, got.ID)
}

func TestUpsertMine_CreatesThenUpdates(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewMedicalRecordHandler(db, nopLogger())
	r := recordRouter(h, "patient-1", models.RolePatient)
	body := map[string]any{"allergies": "dipirona", "medications": "losartana 50mg"}

	mock.ExpectQuery("SELECT \\* FROM `medical_records`").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `medical_records`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	w := doJSON(r, http.MethodPut, "/records/me", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[models.MedicalRecord](t, w).Data
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "dipirona", created.Allergies)

	mock.ExpectQuery("SELECT \\* FROM `medical_records`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "allergies", "created_at"}).
			AddRow("rec-1", "patient-1", "dipirona", monday))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `medical_records` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w = doJSON(r, http.MethodPut, "/records/me", map[string]any{"allergies": "nenhuma"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.MedicalRecord](t, w).Data
	assert.Equal(t, "rec-1", updated.ID)
	assert.Equal(t, "nenhuma", updated.Allergies)
	assert.Empty(t, updated.Medications)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForPatient_ClinicianWithoutLink(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewMedicalRecordHandler(db, nopLogger())

	mock.ExpectQuery("SELECT \\* FROM `professionals` WHERE user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow("pro-1", "doc-1"))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `clinician_patient_links`").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `appointments`").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))

	w := doJSON(recordRouter(h, "doc-1", models.RoleClinician), http.MethodGet, "/records/patient-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForPatient_Admin(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewMedicalRecordHandler(db, nopLogger())

	mock.ExpectQuery("SELECT \\* FROM `users` WHERE id = \\? AND role = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "email", "role", "password"}).
			AddRow("patient-1", "João Silva", "joao@example.com", "patient", "hash"))
	mock.ExpectQuery("SELECT \\* FROM `medical_records`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "allergies"}).AddRow("rec-1", "patient-1", "látex"))
	mock.ExpectQuery("SELECT \\* FROM `triages` WHERE patient_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "symptoms", "urgency_class"}).
			AddRow("t1", "patient-1", "febre", "leve"))
	mock.ExpectQuery("SELECT \\* FROM `medical_documents` WHERE patient_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := doJSON(recordRouter(h, "admin-1", models.RoleAdmin), http.MethodGet, "/records/patient-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	chart := decode[PatientChart](t, w).Data
	assert.Equal(t, "João Silva", chart.Patient.FullName)
	assert.Equal(t, "látex", chart.Record.Allergies)
	require.Len(t, chart.Triages, 1)
	assert.Equal(t, models.UrgencyMild, chart.Triages[0].UrgencyClass)
	assert.Empty(t, chart.Documents)
	assert.NotContains(t, w.Body.String(), "hash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func reminderRouter(h *ReminderHandler) http.Handler {
	r := newTestRouter("patient-1", models.RolePatient)
	r.POST("/reminders", h.Create)
	r.PATCH("/reminders/:id/complete", h.Complete)
	return r
}

func TestCreateReminder(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewReminderHandler(db, nopLogger())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `reminders`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	due := monday.Add(8 * time.Hour)
	w := doJSON(reminderRouter(h), http.MethodPost, "/reminders", map[string]any{
		"kind":       "medication",
		"title":      "Losartana",
		"dueAt":      due.Format(time.RFC3339),
		"recurrence": "12h",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got := decode[models.Reminder](t, w).Data
	assert.Equal(t, "patient-1", got.UserID)
	assert.Equal(t, "12h", got.Recurrence)
	assert.True(t, got.DueAt.Equal(due))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReminder_RejectsUnknownKind(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewReminderHandler(db, nopLogger())

	w := doJSON(reminderRouter(h), http.MethodPost, "/reminders", map[string]any{
		"kind":  "party",
		"title": "x",
		"dueAt": monday.Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteReminder_OtherUsersReminder(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewReminderHandler(db, nopLogger())

	mock.ExpectQuery("SELECT \\* FROM `reminders` WHERE id = \\? AND user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := doJSON(reminderRouter(h), http.MethodPatch, "/reminders/r9/complete", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
