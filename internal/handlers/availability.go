package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medilink-server/internal/config"
	"medilink-server/internal/models"
	"medilink-server/internal/scheduling"
	"medilink-server/internal/utils"
)

// AvailabilityHandler manages clinicians' weekly windows and the derived slots.
type AvailabilityHandler struct {
	DB  *gorm.DB
	Cfg *config.Config
	Log *zap.Logger
}

// NewAvailabilityHandler creates a new AvailabilityHandler.
func NewAvailabilityHandler(db *gorm.DB, cfg *config.Config, log *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{DB: db, Cfg: cfg, Log: log}
}

// AvailabilityRequest represents one weekly window.
type AvailabilityRequest struct {
	DayOfWeek *int   `json:"dayOfWeek" binding:"required,min=0,max=6"`
	StartTime string `json:"startTime" binding:"required"`
	EndTime   string `json:"endTime" binding:"required"`
	Active    *bool  `json:"active"`
}

func (r AvailabilityRequest) window() (models.AvailabilityWindow, error) {
	start, err := scheduling.ParseClockTime(r.StartTime)
	if err != nil {
		return models.AvailabilityWindow{}, err
	}
	end, err := scheduling.ParseClockTime(r.EndTime)
	if err != nil {
		return models.AvailabilityWindow{}, err
	}
	if !start.Before(end) {
		return models.AvailabilityWindow{}, errors.New("startTime must be before endTime")
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return models.AvailabilityWindow{
		DayOfWeek: *r.DayOfWeek,
		StartTime: start.String(),
		EndTime:   end.String(),
		Active:    active,
	}, nil
}

// ListMine returns the caller's windows ordered by weekday and start.
func (h *AvailabilityHandler) ListMine(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	pro, err := professionalForUser(c.Request.Context(), h.DB, userID)
	if err != nil {
		respondProfessionalErr(c, err)
		return
	}

	var windows []models.AvailabilityWindow
	if err := h.DB.Where("professional_id = ?", pro.ID).
		Order("day_of_week asc, start_time asc").
		Find(&windows).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch availability: "+err.Error())
		return
	}
	utils.Success(c, "Availability fetched successfully", windows)
}

// Create adds a weekly window for the caller.
func (h *AvailabilityHandler) Create(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	var req AvailabilityRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	window, err := req.window()
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	pro, err := professionalForUser(c.Request.Context(), h.DB, userID)
	if err != nil {
		respondProfessionalErr(c, err)
		return
	}
	window.ProfessionalID = pro.ID

	if err := h.DB.Create(&window).Error; err != nil {
		utils.InternalServerError(c, "Failed to create availability: "+err.Error())
		return
	}
	h.Log.Info("availability window created",
		zap.String("professional_id", pro.ID),
		zap.Int("day_of_week", window.DayOfWeek),
		zap.String("start", window.StartTime),
		zap.String("end", window.EndTime))
	utils.Created(c, "Availability created successfully", window)
}

// UpdateAvailabilityRequest edits or toggles a window. Nil fields are unchanged.
type UpdateAvailabilityRequest struct {
	DayOfWeek *int    `json:"dayOfWeek" binding:"omitempty,min=0,max=6"`
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
	Active    *bool   `json:"active"`
}

// Update edits one of the caller's windows.
func (h *AvailabilityHandler) Update(c *gin.Context) {
	window, ok := h.ownedWindow(c)
	if !ok {
		return
	}

	var req UpdateAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+utils.FormatValidationError(err))
		return
	}

	merged := AvailabilityRequest{
		DayOfWeek: &window.DayOfWeek,
		StartTime: window.StartTime,
		EndTime:   window.EndTime,
		Active:    &window.Active,
	}
	if req.DayOfWeek != nil {
		merged.DayOfWeek = req.DayOfWeek
	}
	if req.StartTime != nil {
		merged.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		merged.EndTime = *req.EndTime
	}
	if req.Active != nil {
		merged.Active = req.Active
	}
	updated, err := merged.window()
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	window.DayOfWeek = updated.DayOfWeek
	window.StartTime = updated.StartTime
	window.EndTime = updated.EndTime
	window.Active = updated.Active
	if err := h.DB.Save(&window).Error; err != nil {
		utils.InternalServerError(c, "Failed to update availability: "+err.Error())
		return
	}
	utils.Success(c, "Availability updated successfully", window)
}

// Delete removes one of the caller's windows. Existing appointments are kept.
func (h *AvailabilityHandler) Delete(c *gin.Context) {
	window, ok := h.ownedWindow(c)
	if !ok {
		return
	}
	if err := h.DB.Delete(&window).Error; err != nil {
		utils.InternalServerError(c, "Failed to delete availability: "+err.Error())
		return
	}
	utils.Success(c, "Availability deleted successfully", nil)
}

func (h *AvailabilityHandler) ownedWindow(c *gin.Context) (models.AvailabilityWindow, bool) {
	var window models.AvailabilityWindow
	userID, _, ok := caller(c)
	if !ok {
		return window, false
	}
	pro, err := professionalForUser(c.Request.Context(), h.DB, userID)
	if err != nil {
		respondProfessionalErr(c, err)
		return window, false
	}
	if err := h.DB.Where("id = ? AND professional_id = ?", c.Param("id"), pro.ID).First(&window).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Availability window not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return window, false
	}
	return window, true
}

// SlotsResponse is the slot list of one professional on one date.
type SlotsResponse struct {
	ProfessionalID string            `json:"professionalId"`
	Date           string            `json:"date"`
	Slots          []scheduling.Slot `json:"slots"`
}

// GetSlots lists the bookable slots of a professional on ?date=YYYY-MM-DD.
func (h *AvailabilityHandler) GetSlots(c *gin.Context) {
	professionalID := c.Param("id")
	day, err := parseDay(c.Query("date"), h.Cfg.Location())
	if err != nil {
		utils.BadRequest(c, "date query parameter must be YYYY-MM-DD")
		return
	}

	var n int64
	if err := h.DB.Model(&models.Professional{}).Where("id = ?", professionalID).Count(&n).Error; err != nil {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}
	if n == 0 {
		utils.NotFound(c, "Professional not found")
		return
	}

	slots, err := loadSlots(c.Request.Context(), h.DB, professionalID, day, h.Cfg.Granularity(), "")
	if err != nil {
		h.Log.Error("load slots", zap.String("professional_id", professionalID), zap.Error(err))
		utils.InternalServerError(c, "Failed to load slots: "+err.Error())
		return
	}
	utils.Success(c, "Slots fetched successfully", SlotsResponse{
		ProfessionalID: professionalID,
		Date:           day.Format(dateLayout),
		Slots:          slots,
	})
}
