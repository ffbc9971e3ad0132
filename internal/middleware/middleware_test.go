package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"medilink-server/internal/config"
	"medilink-server/internal/models"
	"medilink-server/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:                 "access-secret",
		JWTRefreshSecret:          "refresh-secret",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 24,
	}
}

func tokenFor(t *testing.T, cfg *config.Config, role models.Role) string {
	user := &models.User{Role: role}
	user.ID = "user-1"
	access, _, err := utils.GenerateTokens(user, cfg)
	require.NoError(t, err)
	return access
}

func newRouter(cfg *config.Config) *gin.Engine {
	return newRouterWithDB(cfg, nil)
}

func newRouterWithDB(cfg *config.Config, db *gorm.DB) *gin.Engine {
	r := gin.New()
	api := r.Group("/api", AuthMiddleware(cfg))
	api.GET("/me", func(c *gin.Context) {
		id, _ := GetUserIDFromContext(c)
		role, _ := GetUserRoleFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "role": role})
	})
	api.GET("/clinic", RoleAuthMiddleware(db, models.RoleClinician, models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	api.GET("/conversations/:id/stream", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	r := newRouter(cfg)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me", "garbage").Code)

	w := do(r, "/api/me", tokenFor(t, cfg, models.RolePatient))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"patient"`)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	r := newRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_StreamAcceptsQueryToken(t *testing.T) {
	cfg := testConfig()
	r := newRouter(cfg)
	token := tokenFor(t, cfg, models.RolePatient)

	assert.Equal(t, http.StatusNoContent, do(r, "/api/conversations/c1/stream?access_token="+token, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/me?access_token="+token, "").Code)
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func expectStoredRole(mock sqlmock.Sqlmock, role models.Role) {
	rows := sqlmock.NewRows([]string{"id", "role"})
	if role != "" {
		rows.AddRow("user-1", string(role))
	}
	mock.ExpectQuery("SELECT `id`,`role` FROM `users` WHERE id = \\?").WillReturnRows(rows)
}

func TestRoleAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	db, mock := setupMockDB(t)
	r := newRouterWithDB(cfg, db)

	expectStoredRole(mock, models.RolePatient)
	assert.Equal(t, http.StatusForbidden, do(r, "/api/clinic", tokenFor(t, cfg, models.RolePatient)).Code)
	expectStoredRole(mock, models.RoleClinician)
	assert.Equal(t, http.StatusNoContent, do(r, "/api/clinic", tokenFor(t, cfg, models.RoleClinician)).Code)
	expectStoredRole(mock, models.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, do(r, "/api/clinic", tokenFor(t, cfg, models.RoleAdmin)).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleAuthMiddleware_UsesStoredRoleOverToken(t *testing.T) {
	cfg := testConfig()
	db, mock := setupMockDB(t)
	r := gin.New()
	r.GET("/api/clinic", AuthMiddleware(cfg), RoleAuthMiddleware(db, models.RoleClinician), func(c *gin.Context) {
		role, _ := GetUserRoleFromContext(c)
		c.String(http.StatusOK, string(role))
	})

	// Demoted after the token was issued.
	expectStoredRole(mock, models.RolePatient)
	assert.Equal(t, http.StatusForbidden, do(r, "/api/clinic", tokenFor(t, cfg, models.RoleClinician)).Code)

	// Promoted after the token was issued.
	expectStoredRole(mock, models.RoleClinician)
	w := do(r, "/api/clinic", tokenFor(t, cfg, models.RolePatient))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "clinician", w.Body.String())

	// Deleted.
	expectStoredRole(mock, "")
	assert.Equal(t, http.StatusUnauthorized, do(r, "/api/clinic", tokenFor(t, cfg, models.RoleClinician)).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestIDAndLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestID(), RequestLogger(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-42", w.Body.String())

	w = do(r, "/missing", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.EqualValues(t, http.StatusNotFound, entries[1].ContextMap()["status"])
}
