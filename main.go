package main

import (
	"fmt"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"medilink-server/internal/config"
	"medilink-server/internal/logger"
	"medilink-server/internal/middleware"
	"medilink-server/internal/models"
	"medilink-server/internal/realtime"
	"medilink-server/internal/redisclient"
	"medilink-server/internal/routes"
	"medilink-server/internal/storage"
	"medilink-server/internal/triage"
)

func main() {
	// A missing .env is fine when the environment is set by the host
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "medilink-server")
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	if envErr != nil {
		zlog.Warn("no .env file loaded", zap.Error(envErr))
	}

	db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
	if err != nil {
		zlog.Fatal("connect database", zap.Error(err))
	}

	rdb, err := redisclient.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password)
	if err != nil {
		zlog.Fatal("connect redis", zap.Error(err))
	}
	defer rdb.Close()

	files, err := storage.NewLocalStorage(cfg.Storage.UploadDir, cfg.Storage.PublicBaseURL, cfg.Storage.MaxUploadMB)
	if err != nil {
		zlog.Fatal("prepare upload directory", zap.Error(err))
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = files.MaxBytes()
	router.Use(middleware.RequestID(), middleware.RequestLogger(zlog), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, routes.Deps{
		DB:       db,
		Cfg:      cfg,
		Log:      zlog,
		Redis:    rdb,
		Broker:   realtime.NewBroker(rdb, zlog),
		Locker:   redisclient.NewRedisSlotLocker(rdb, cfg.Redis.LockTTL),
		Analyzer: triage.NewClient(cfg.Triage.APIURL, cfg.Triage.APIKey, cfg.Triage.Model, cfg.Triage.Timeout, zlog),
		Files:    files,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	zlog.Info("server starting",
		zap.String("addr", serverAddr),
		zap.String("env", cfg.Environment),
		zap.String("timezone", cfg.Scheduling.Timezone))
	if err := router.Run(serverAddr); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
