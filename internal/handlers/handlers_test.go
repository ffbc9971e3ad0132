package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"medilink-server/internal/config"
	"medilink-server/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// monday is 2026-10-19, a Monday, at midnight UTC.
var monday = time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:               "development",
		JWTSecret:                 "test_access_secret",
		JWTRefreshSecret:          "test_refresh_secret",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 24,
		Scheduling:                config.SchedulingConfig{Timezone: "UTC", GranularityMinutes: 30},
		Chat:                      config.ChatConfig{Window: 24 * time.Hour, Tick: time.Minute},
	}
}

// as authenticates every request on r as userID with role.
func as(userID string, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set("userRole", role)
		c.Next()
	}
}

func newTestRouter(userID string, role models.Role) *gin.Engine {
	r := gin.New()
	r.Use(as(userID, role))
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope[T any] struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
