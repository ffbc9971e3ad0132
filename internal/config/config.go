package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // clinic time zones must resolve on minimal images
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	JWTSecret                 string
	JWTRefreshSecret          string
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	Database                  DatabaseConfig
	Redis                     RedisConfig
	Triage                    TriageConfig
	Storage                   StorageConfig
	Scheduling                SchedulingConfig
	Chat                      ChatConfig
	Log                       LogConfig
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// RedisConfig holds the realtime feed and booking lock connection details
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	LockTTL  time.Duration
}

// TriageConfig holds the language-model gateway settings used for symptom triage
type TriageConfig struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// StorageConfig holds attachment storage settings
type StorageConfig struct {
	UploadDir     string
	PublicBaseURL string
	MaxUploadMB   int
}

// SchedulingConfig holds slot generation settings
type SchedulingConfig struct {
	Timezone           string
	GranularityMinutes int
}

// ChatConfig holds the conversation window settings
type ChatConfig struct {
	Window time.Duration
	Tick   time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "medilink"),
	}

	// Build DSN (Data Source Name) for MySQL connection
	dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)

	jwtExpMinutes, err := getInt("JWT_EXPIRATION_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	jwtRefreshExpHours, err := getInt("JWT_REFRESH_EXPIRATION_HOURS", 168) // 7 days
	if err != nil {
		return nil, err
	}
	lockTTLSeconds, err := getInt("LOCK_TTL_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	triageTimeout, err := getInt("TRIAGE_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	maxUploadMB, err := getInt("MAX_UPLOAD_MB", 20)
	if err != nil {
		return nil, err
	}
	granularity, err := getInt("SLOT_GRANULARITY_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	if granularity <= 0 {
		return nil, fmt.Errorf("invalid SLOT_GRANULARITY_MINUTES: must be positive, got %d", granularity)
	}
	chatWindowHours, err := getInt("CHAT_WINDOW_HOURS", 24)
	if err != nil {
		return nil, err
	}
	chatTickSeconds, err := getInt("CHAT_TICK_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	if chatTickSeconds <= 0 {
		return nil, fmt.Errorf("invalid CHAT_TICK_SECONDS: must be positive, got %d", chatTickSeconds)
	}

	tz := getEnv("CLINIC_TIMEZONE", "America/Sao_Paulo")
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid CLINIC_TIMEZONE: %w", err)
	}

	return &Config{
		Port:                      getEnv("PORT", "3001"),
		Origin:                    getEnv("ORIGIN", "http://localhost:5173"),
		Environment:               getEnv("APP_ENV", "development"),
		JWTSecret:                 getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret:          getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		Database:                  dbConfig,
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			LockTTL:  time.Duration(lockTTLSeconds) * time.Second,
		},
		Triage: TriageConfig{
			APIURL:  getEnv("TRIAGE_API_URL", "https://ai.gateway.lovable.dev/v1/chat/completions"),
			APIKey:  getEnv("TRIAGE_API_KEY", ""),
			Model:   getEnv("TRIAGE_MODEL", "google/gemini-2.5-flash"),
			Timeout: time.Duration(triageTimeout) * time.Second,
		},
		Storage: StorageConfig{
			UploadDir:     getEnv("UPLOAD_DIR", "./uploads"),
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:3001/files"),
			MaxUploadMB:   maxUploadMB,
		},
		Scheduling: SchedulingConfig{
			Timezone:           tz,
			GranularityMinutes: granularity,
		},
		Chat: ChatConfig{
			Window: time.Duration(chatWindowHours) * time.Hour,
			Tick:   time.Duration(chatTickSeconds) * time.Second,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

// Location returns the clinic time zone used for calendar dates and slot times.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduling.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Granularity returns the slot step as a duration.
func (c *Config) Granularity() time.Duration {
	return time.Duration(c.Scheduling.GranularityMinutes) * time.Minute
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, strconv.Itoa(defaultValue))
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
