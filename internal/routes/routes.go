package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medilink-server/internal/config"
	"medilink-server/internal/handlers"
	"medilink-server/internal/middleware"
	"medilink-server/internal/models"
	"medilink-server/internal/realtime"
	"medilink-server/internal/redisclient"
	"medilink-server/internal/storage"
	"medilink-server/internal/triage"
)

// Deps are the shared services the handlers are built from.
type Deps struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Log      *zap.Logger
	Redis    *redis.Client
	Broker   *realtime.Broker
	Locker   redisclient.Locker
	Analyzer triage.Analyzer
	Files    storage.Storage
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, d Deps) {
	db, cfg, log := d.DB, d.Cfg, d.Log

	authHandler := handlers.NewAuthHandler(db, cfg, log)
	userHandler := handlers.NewUserHandler(db, log)
	availabilityHandler := handlers.NewAvailabilityHandler(db, cfg, log)
	appointmentHandler := handlers.NewAppointmentHandler(db, cfg, log, d.Locker)
	triageHandler := handlers.NewTriageHandler(db, cfg, log, d.Analyzer)
	chatHandler := handlers.NewChatHandler(db, cfg, log, d.Broker, d.Broker, d.Files)
	documentHandler := handlers.NewDocumentHandler(db, log, d.Files)
	medicalRecordHandler := handlers.NewMedicalRecordHandler(db, log)
	reminderHandler := handlers.NewReminderHandler(db, log)

	clinicianOnly := middleware.RoleAuthMiddleware(db, models.RoleClinician)
	patientOnly := middleware.RoleAuthMiddleware(db, models.RolePatient)
	staffOnly := middleware.RoleAuthMiddleware(db, models.RoleClinician, models.RoleAdmin)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	// Every authenticated request carries the stored role, not the token's
	private.Use(middleware.AuthMiddleware(cfg), middleware.RoleAuthMiddleware(db, models.RoleAdmin, models.RoleClinician, models.RolePatient))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		userRoutes := private.Group("/users")
		{
			// Patients a clinician follows; admins see all
			userRoutes.GET("/patients", staffOnly, userHandler.GetPatients)

			adminRoutes := userRoutes.Group("")
			adminRoutes.Use(middleware.RoleAuthMiddleware(db, models.RoleAdmin))
			{
				adminRoutes.POST("", userHandler.CreateUser)
				adminRoutes.GET("", userHandler.GetUsers)
				adminRoutes.GET("/:id", userHandler.GetUserByID)
				adminRoutes.PUT("/:id", userHandler.UpdateUser)
				adminRoutes.DELETE("/:id", userHandler.DeleteUser)
			}
		}

		professionalRoutes := private.Group("/professionals")
		{
			professionalRoutes.GET("", userHandler.GetProfessionals)

			me := professionalRoutes.Group("/me")
			me.Use(clinicianOnly)
			{
				me.GET("", userHandler.GetMyProfessional)
				me.PUT("", userHandler.UpdateMyProfessional)
				me.GET("/availability", availabilityHandler.ListMine)
				me.POST("/availability", availabilityHandler.Create)
				me.PATCH("/availability/:id", availabilityHandler.Update)
				me.DELETE("/availability/:id", availabilityHandler.Delete)
			}

			professionalRoutes.GET("/:id", userHandler.GetProfessional)
			professionalRoutes.GET("/:id/slots", availabilityHandler.GetSlots)
		}

		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.POST("", patientOnly, appointmentHandler.CreateAppointment)
			appointmentRoutes.GET("", appointmentHandler.GetAppointmentsForUser)               // Filtered by role in handler
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)               // Auth in handler
			appointmentRoutes.PATCH("/:id/status", appointmentHandler.UpdateAppointmentStatus) // Patients may only cancel
			appointmentRoutes.PATCH("/:id/reschedule", appointmentHandler.RescheduleAppointment)
		}

		triageRoutes := private.Group("/triages")
		{
			triageRoutes.POST("", patientOnly, triageHandler.Analyze)
			triageRoutes.GET("", triageHandler.List)
			triageRoutes.GET("/:id", triageHandler.Get)
			triageRoutes.POST("/:id/link", triageHandler.Link)
		}

		chatRoutes := private.Group("/chat/conversations")
		{
			chatRoutes.GET("", chatHandler.ListConversations)
			chatRoutes.GET("/:id", chatHandler.GetConversation)
			chatRoutes.GET("/:id/messages", chatHandler.GetMessages)
			chatRoutes.POST("/:id/messages", chatHandler.SendMessage)
			chatRoutes.POST("/:id/attachments", chatHandler.UploadAttachment)
			chatRoutes.POST("/:id/read", chatHandler.MarkRead)
			chatRoutes.GET("/:id/stream", chatHandler.Stream) // Also accepts ?access_token=
		}

		documentRoutes := private.Group("/documents")
		{
			documentRoutes.POST("", documentHandler.Upload)
			documentRoutes.GET("", documentHandler.List)
			documentRoutes.DELETE("/:id", documentHandler.Delete)
		}

		recordRoutes := private.Group("/records")
		{
			recordRoutes.GET("/me", patientOnly, medicalRecordHandler.GetMine)
			recordRoutes.PUT("/me", patientOnly, medicalRecordHandler.UpsertMine)
			recordRoutes.GET("/:patientId", staffOnly, medicalRecordHandler.GetForPatient)
		}

		reminderRoutes := private.Group("/reminders")
		{
			reminderRoutes.GET("", reminderHandler.List)
			reminderRoutes.POST("", reminderHandler.Create)
			reminderRoutes.PUT("/:id", reminderHandler.Update)
			reminderRoutes.PATCH("/:id/complete", reminderHandler.Complete)
			reminderRoutes.DELETE("/:id", reminderHandler.Delete)
		}
	}

	// Uploaded files
	router.Static("/files", cfg.Storage.UploadDir)

	router.GET("/health", health(db, d.Redis))
}

// health reports UP when the database and Redis answer within two seconds.
func health(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"database": "UP", "redis": "UP"}
		status := http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["database"] = "DOWN"
			status = http.StatusServiceUnavailable
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "DOWN"
				status = http.StatusServiceUnavailable
			}
		}
		overall := "UP"
		if status != http.StatusOK {
			overall = "DOWN"
		}
		c.JSON(status, gin.H{"status": overall, "checks": checks})
	}
}
