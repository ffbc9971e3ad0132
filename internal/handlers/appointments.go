package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medilink-server/internal/config"
	"medilink-server/internal/models"
	"medilink-server/internal/redisclient"
	"medilink-server/internal/scheduling"
	"medilink-server/internal/utils"
)

var (
	errSlotNotOffered = errors.New("the requested time is not offered by this professional")
	errSlotTaken      = errors.New("the requested time is no longer available")
	errSlotInPast     = errors.New("the requested time is in the past")
)

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Log    *zap.Logger
	Locker redisclient.Locker
	Now    func() time.Time
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(db *gorm.DB, cfg *config.Config, log *zap.Logger, locker redisclient.Locker) *AppointmentHandler {
	return &AppointmentHandler{DB: db, Cfg: cfg, Log: log, Locker: locker, Now: time.Now}
}

// CreateAppointmentRequest represents the request body for booking an appointment.
type CreateAppointmentRequest struct {
	ProfessionalID string                     `json:"professionalId" binding:"required"`
	Date           string                     `json:"date" binding:"required"` // YYYY-MM-DD, clinic time zone
	Time           string                     `json:"time" binding:"required"` // HH:MM
	Kind           scheduling.AppointmentKind `json:"kind" binding:"required,oneof=in_person remote"`
	Reason         string                     `json:"reason" binding:"required"`
	Notes          string                     `json:"notes"`
}

// CreateAppointment books a slot for the calling patient. The slot list is
// re-derived under a per-slot lock, so two patients cannot take the same time.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	day, err := parseDay(req.Date, h.Cfg.Location())
	if err != nil {
		utils.BadRequest(c, "date must be YYYY-MM-DD")
		return
	}
	clock, err := scheduling.ParseClockTime(req.Time)
	if err != nil {
		utils.BadRequest(c, "time must be HH:MM")
		return
	}

	patientID, _, ok := caller(c)
	if !ok {
		return
	}

	var pro models.Professional
	if err := h.DB.First(&pro, "id = ?", req.ProfessionalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Professional not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	appointment := models.Appointment{
		PatientID:       patientID,
		ProfessionalID:  pro.ID,
		ScheduledAt:     clock.On(day).UTC(),
		DurationMinutes: h.Cfg.Scheduling.GranularityMinutes,
		Kind:            req.Kind,
		Status:          scheduling.StatusScheduled,
		Reason:          req.Reason,
		Notes:           req.Notes,
	}

	err = h.reserve(c.Request.Context(), pro.ID, "", day, clock, func(ctx context.Context) error {
		return h.DB.WithContext(ctx).Omit("Patient", "Professional").Create(&appointment).Error
	})
	if err != nil {
		h.respondReserveErr(c, err)
		return
	}

	h.Log.Info("appointment booked",
		zap.String("appointment_id", appointment.ID),
		zap.String("professional_id", pro.ID),
		zap.Time("scheduled_at", appointment.ScheduledAt))
	utils.Created(c, "Appointment created successfully", appointment)
}

// reserve runs fn while holding the lock on (professional, instant), after
// checking that the instant is an offered and still available slot. A
// reschedule passes its own id as movingID so it never blocks itself.
func (h *AppointmentHandler) reserve(ctx context.Context, professionalID, movingID string, day time.Time, clock scheduling.ClockTime, fn func(ctx context.Context) error) error {
	at := clock.On(day)
	if !at.After(h.Now()) {
		return errSlotInPast
	}
	return h.Locker.WithSlotLock(ctx, professionalID, at, func(lockCtx context.Context) error {
		slots, err := loadSlots(lockCtx, h.DB, professionalID, day, h.Cfg.Granularity(), movingID)
		if err != nil {
			return fmt.Errorf("load slots: %w", err)
		}
		slot, found := scheduling.FindSlot(slots, clock)
		if !found {
			return errSlotNotOffered
		}
		if !slot.Available {
			return errSlotTaken
		}
		return fn(lockCtx)
	})
}

func (h *AppointmentHandler) respondReserveErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errSlotInPast), errors.Is(err, errSlotNotOffered):
		utils.BadRequest(c, err.Error())
	case errors.Is(err, errSlotTaken):
		utils.Conflict(c, err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		utils.Conflict(c, "This time is being booked by someone else, try again")
	default:
		h.Log.Error("reserve slot", zap.Error(err))
		utils.InternalServerError(c, "Failed to book appointment: "+err.Error())
	}
}

// GetAppointmentsForUser lists the caller's appointments: patients see their
// own, clinicians their agenda, admins everything. Optional ?status= and
// ?date=YYYY-MM-DD filters.
func (h *AppointmentHandler) GetAppointmentsForUser(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}

	query := h.DB.Preload("Patient").Preload("Professional.User").Order("scheduled_at asc")
	switch role {
	case models.RolePatient:
		query = query.Where("patient_id = ?", userID)
	case models.RoleClinician:
		pro, err := professionalForUser(c.Request.Context(), h.DB, userID)
		if err != nil {
			respondProfessionalErr(c, err)
			return
		}
		query = query.Where("professional_id = ?", pro.ID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if date := c.Query("date"); date != "" {
		day, err := parseDay(date, h.Cfg.Location())
		if err != nil {
			utils.BadRequest(c, "date must be YYYY-MM-DD")
			return
		}
		query = query.Where("scheduled_at >= ? AND scheduled_at < ?", day.UTC(), day.AddDate(0, 0, 1).UTC())
	}

	var appointments []models.Appointment
	if err := query.Find(&appointments).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch appointments: "+err.Error())
		return
	}

	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetAppointmentByID handles fetching a single appointment by its ID.
// Accessible by involved patient, clinician, or an admin.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	appointment, ok := h.accessibleAppointment(c, h.DB.Preload("Patient").Preload("Professional.User"))
	if !ok {
		return
	}
	utils.Success(c, "Appointment fetched successfully", appointment)
}

// UpdateAppointmentStatusRequest represents the request body for updating an appointment's status.
type UpdateAppointmentStatusRequest struct {
	Status scheduling.AppointmentStatus `json:"status" binding:"required,oneof=scheduled confirmed completed cancelled"`
	Notes  string                       `json:"notes"`
}

// UpdateAppointmentStatus moves an appointment along its status machine.
// Clinicians drive every transition on their agenda; patients may only cancel.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	var req UpdateAppointmentStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appointment, ok := h.accessibleAppointment(c, h.DB)
	if !ok {
		return
	}

	_, role, _ := caller(c)
	if role == models.RolePatient && req.Status != scheduling.StatusCancelled {
		utils.Forbidden(c, "Patients can only cancel appointments.")
		return
	}
	if !scheduling.CanTransition(appointment.Status, req.Status) {
		utils.Conflict(c, fmt.Sprintf("Cannot change appointment status from %s to %s", appointment.Status, req.Status))
		return
	}

	updates := map[string]any{"status": req.Status}
	if req.Notes != "" {
		updates["notes"] = req.Notes
	}
	if err := h.DB.Model(&appointment).Updates(updates).Error; err != nil {
		utils.InternalServerError(c, "Failed to update appointment status: "+err.Error())
		return
	}
	appointment.Status = req.Status
	if req.Notes != "" {
		appointment.Notes = req.Notes
	}

	h.Log.Info("appointment status changed",
		zap.String("appointment_id", appointment.ID),
		zap.String("status", string(req.Status)))
	utils.Success(c, "Appointment status updated successfully", appointment)
}

// RescheduleAppointmentRequest represents the request body for rescheduling an appointment.
type RescheduleAppointmentRequest struct {
	Date  string `json:"date" binding:"required"`
	Time  string `json:"time" binding:"required"`
	Notes string `json:"notes"`
}

// RescheduleAppointment moves a scheduled or confirmed appointment to another
// free slot of the same professional. The appointment returns to scheduled.
func (h *AppointmentHandler) RescheduleAppointment(c *gin.Context) {
	var req RescheduleAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	day, err := parseDay(req.Date, h.Cfg.Location())
	if err != nil {
		utils.BadRequest(c, "date must be YYYY-MM-DD")
		return
	}
	clock, err := scheduling.ParseClockTime(req.Time)
	if err != nil {
		utils.BadRequest(c, "time must be HH:MM")
		return
	}

	appointment, ok := h.accessibleAppointment(c, h.DB)
	if !ok {
		return
	}
	if !appointment.ToAppointment().Occupies() {
		utils.Conflict(c, "Only scheduled or confirmed appointments can be rescheduled")
		return
	}

	newAt := clock.On(day).UTC()
	err = h.reserve(c.Request.Context(), appointment.ProfessionalID, appointment.ID, day, clock, func(ctx context.Context) error {
		updates := map[string]any{"scheduled_at": newAt, "status": scheduling.StatusScheduled}
		if req.Notes != "" {
			updates["notes"] = req.Notes
		}
		return h.DB.WithContext(ctx).Model(&appointment).Updates(updates).Error
	})
	if err != nil {
		h.respondReserveErr(c, err)
		return
	}
	appointment.ScheduledAt = newAt
	appointment.Status = scheduling.StatusScheduled
	if req.Notes != "" {
		appointment.Notes = req.Notes
	}

	utils.Success(c, "Appointment rescheduled successfully", appointment)
}

// accessibleAppointment loads :id and checks the caller takes part in it.
func (h *AppointmentHandler) accessibleAppointment(c *gin.Context, db *gorm.DB) (models.Appointment, bool) {
	var appointment models.Appointment
	userID, role, ok := caller(c)
	if !ok {
		return appointment, false
	}

	if err := db.First(&appointment, "appointments.id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Appointment not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return appointment, false
	}

	switch role {
	case models.RoleAdmin:
		return appointment, true
	case models.RolePatient:
		if appointment.PatientID == userID {
			return appointment, true
		}
	case models.RoleClinician:
		pro, err := professionalForUser(c.Request.Context(), h.DB, userID)
		if err != nil {
			respondProfessionalErr(c, err)
			return appointment, false
		}
		if appointment.ProfessionalID == pro.ID {
			return appointment, true
		}
	}
	utils.Forbidden(c, "You are not authorized to access this appointment")
	return appointment, false
}
