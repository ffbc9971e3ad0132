package handlers

import (
	"context"
	"database/sql/driver"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medilink-server/internal/models"
	"medilink-server/internal/triage"
)

type fakeAnalyzer struct {
	result triage.Result
	err    error
	calls  int
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ string) (triage.Result, error) {
	a.calls++
	return a.result, a.err
}

func analyzeRouter(h *TriageHandler) http.Handler {
	r := newTestRouter("patient-1", models.RolePatient)
	r.POST("/triages", h.Analyze)
	return r
}

func TestAnalyze_StoresTriage(t *testing.T) {
	db, mock := setupMockDB(t)
	analyzer := &fakeAnalyzer{result: triage.Result{
		Urgency:              models.UrgencySevere,
		Narrative:            "Classificação: grave\nEspecialidade: Cardiologia",
		RecommendedSpecialty: "Cardiologia",
	}}
	h := NewTriageHandler(db, testConfig(), nopLogger(), analyzer)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `triages`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	w := doJSON(analyzeRouter(h), http.MethodPost, "/triages", map[string]any{"symptoms": "  dor no peito  "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got := decode[models.Triage](t, w).Data
	assert.Equal(t, "patient-1", got.PatientID)
	assert.Equal(t, "dor no peito", got.Symptoms)
	assert.Equal(t, models.UrgencySevere, got.UrgencyClass)
	assert.Equal(t, "Cardiologia", got.RecommendedSpecialty)
	assert.Nil(t, got.LinkedProfessionalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyze_GatewayErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{triage.ErrRateLimited, http.StatusTooManyRequests},
		{triage.ErrQuotaExceeded, http.StatusPaymentRequired},
		{triage.ErrNotConfigured, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		db, mock := setupMockDB(t)
		h := NewTriageHandler(db, testConfig(), nopLogger(), &fakeAnalyzer{err: tc.err})

		w := doJSON(analyzeRouter(h), http.MethodPost, "/triages", map[string]any{"symptoms": "febre"})
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestAnalyze_BlankSymptoms(t *testing.T) {
	db, _ := setupMockDB(t)
	analyzer := &fakeAnalyzer{}
	h := NewTriageHandler(db, testConfig(), nopLogger(), analyzer)

	w := doJSON(analyzeRouter(h), http.MethodPost, "/triages", map[string]any{"symptoms": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, analyzer.calls)
}

func linkRouter(h *TriageHandler, role models.Role) http.Handler {
	r := newTestRouter("patient-1", role)
	r.POST("/triages/:id/link", h.Link)
	return r
}

func TestLink_AlreadyLinkedKeepsExpiry(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewTriageHandler(db, testConfig(), nopLogger(), &fakeAnalyzer{})
	now := monday.Add(10 * time.Hour)
	h.Now = fixedNow(now)
	expires := monday.Add(20 * time.Hour)

	mock.ExpectQuery("SELECT \\* FROM `triages` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "symptoms", "linked_professional_id", "chat_expires_at"}).
			AddRow("t1", "patient-1", "febre", "pro-1", expires))
	mock.ExpectQuery("SELECT \\* FROM `professionals` WHERE `professionals`.`id` = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "specialty"}).AddRow("pro-1", "user-9", "Clínica Geral"))
	mock.ExpectQuery("SELECT \\* FROM `users` WHERE `users`.`id` = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "role"}).AddRow("user-9", "Dra. Ana", "clinician"))

	w := doJSON(linkRouter(h, models.RolePatient), http.MethodPost, "/triages/t1/link", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[TriageWithChat](t, w).Data
	require.NotNil(t, got.ChatExpiresAt)
	assert.True(t, got.ChatExpiresAt.Equal(expires))
	require.NotNil(t, got.Chat)
	assert.False(t, got.Chat.Expired)
	assert.Equal(t, 10, got.Chat.Remaining.Hours)
	assert.Equal(t, 0, got.Chat.Remaining.Minutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLink_ClinicianForbidden(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewTriageHandler(db, testConfig(), nopLogger(), &fakeAnalyzer{})

	mock.ExpectQuery("SELECT \\* FROM `triages` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "symptoms"}).AddRow("t1", "patient-2", "febre"))
	mock.ExpectQuery("SELECT \\* FROM `professionals` WHERE user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow("pro-1", "patient-1"))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `clinician_patient_links`").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))

	w := doJSON(linkRouter(h, models.RoleClinician), http.MethodPost, "/triages/t1/link", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// timeArg matches a time argument by instant.
type timeArg time.Time

func (a timeArg) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(time.Time(a))
}

func expectUnlinkedTriage(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT \\* FROM `triages` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "symptoms", "recommended_specialty"}).
			AddRow("t1", "patient-1", "dor no peito", "Cardiologia"))
	mock.ExpectQuery("FROM `professionals` JOIN users ON users.id = professionals.user_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "specialty"}).AddRow("pro-1", "user-9", "Cardiologia"))
}

func expectLinkedReload(mock sqlmock.Sqlmock, proID string, expires time.Time) {
	mock.ExpectQuery("SELECT \\* FROM `triages` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "symptoms", "linked_professional_id", "chat_expires_at"}).
			AddRow("t1", "patient-1", "dor no peito", proID, expires))
	mock.ExpectQuery("SELECT \\* FROM `professionals` WHERE `professionals`.`id` = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "specialty"}).AddRow(proID, "user-9", "Cardiologia"))
	mock.ExpectQuery("SELECT \\* FROM `users` WHERE `users`.`id` = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "role"}).AddRow("user-9", "Dr. Paulo", "clinician"))
}

func TestLink_OpensChatWindowOnce(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewTriageHandler(db, testConfig(), nopLogger(), &fakeAnalyzer{})
	now := monday.Add(10 * time.Hour)
	h.Now = fixedNow(now)
	expires := now.Add(24 * time.Hour)

	expectUnlinkedTriage(mock)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `triages` SET .*linked_professional_id IS NULL").
		WithArgs(timeArg(expires), "pro-1", sqlmock.AnyArg(), "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `clinician_patient_links`").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "pro-1", "patient-1", "t1", true, timeArg(now)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectLinkedReload(mock, "pro-1", expires)

	w := doJSON(linkRouter(h, models.RolePatient), http.MethodPost, "/triages/t1/link", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[TriageWithChat](t, w).Data
	require.NotNil(t, got.LinkedProfessionalID)
	assert.Equal(t, "pro-1", *got.LinkedProfessionalID)
	require.NotNil(t, got.ChatExpiresAt)
	assert.True(t, got.ChatExpiresAt.Equal(expires))
	require.NotNil(t, got.Chat)
	assert.Equal(t, 24, got.Chat.Remaining.Hours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLink_ConcurrentLinkKeepsFirst(t *testing.T) {
	db, mock := setupMockDB(t)
	h := NewTriageHandler(db, testConfig(), nopLogger(), &fakeAnalyzer{})
	now := monday.Add(10 * time.Hour)
	h.Now = fixedNow(now)
	firstExpiry := now.Add(23 * time.Hour)

	expectUnlinkedTriage(mock)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `triages` SET .*linked_professional_id IS NULL").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	expectLinkedReload(mock, "pro-2", firstExpiry)

	w := doJSON(linkRouter(h, models.RolePatient), http.MethodPost, "/triages/t1/link", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[TriageWithChat](t, w).Data
	require.NotNil(t, got.LinkedProfessionalID)
	assert.Equal(t, "pro-2", *got.LinkedProfessionalID)
	assert.True(t, got.ChatExpiresAt.Equal(firstExpiry))
	// No link row is written by the losing request.
	assert.NoError(t, mock.ExpectationsWereMet())
}
