package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medilink-server/internal/models"
	"medilink-server/internal/utils"
)

// ReminderHandler manages the caller's personal reminders.
type ReminderHandler struct {
	DB  *gorm.DB
	Log *zap.Logger
}

// NewReminderHandler creates a new ReminderHandler.
func NewReminderHandler(db *gorm.DB, log *zap.Logger) *ReminderHandler {
	return &ReminderHandler{DB: db, Log: log}
}

// ReminderRequest represents a reminder create or replace.
type ReminderRequest struct {
	Kind        string    `json:"kind" binding:"required,oneof=medication appointment exam other"`
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	DueAt       time.Time `json:"dueAt" binding:"required"`
	Recurrence  string    `json:"recurrence"`
}

// List returns the caller's reminders, soonest first. ?pending=true hides completed ones.
func (h *ReminderHandler) List(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	query := h.DB.Where("user_id = ?", userID).Order("due_at asc")
	if c.Query("pending") == "true" {
		query = query.Where("completed = ?", false)
	}
	var reminders []models.Reminder
	if err := query.Find(&reminders).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch reminders: "+err.Error())
		return
	}
	utils.Success(c, "Reminders fetched successfully", reminders)
}

// Create adds a reminder for the caller.
func (h *ReminderHandler) Create(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	var req ReminderRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	reminder := models.Reminder{
		UserID:      userID,
		Kind:        req.Kind,
		Title:       req.Title,
		Description: req.Description,
		DueAt:       req.DueAt.UTC(),
		Recurrence:  req.Recurrence,
	}
	if err := h.DB.Create(&reminder).Error; err != nil {
		utils.InternalServerError(c, "Failed to create reminder: "+err.Error())
		return
	}
	utils.Created(c, "Reminder created successfully", reminder)
}

// Update replaces one of the caller's reminders.
func (h *ReminderHandler) Update(c *gin.Context) {
	var req ReminderRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	reminder, ok := h.owned(c)
	if !ok {
		return
	}
	reminder.Kind = req.Kind
	reminder.Title = req.Title
	reminder.Description = req.Description
	reminder.DueAt = req.DueAt.UTC()
	reminder.Recurrence = req.Recurrence
	if err := h.DB.Save(&reminder).Error; err != nil {
		utils.InternalServerError(c, "Failed to update reminder: "+err.Error())
		return
	}
	utils.Success(c, "Reminder updated successfully", reminder)
}

// Complete marks one of the caller's reminders done.
func (h *ReminderHandler) Complete(c *gin.Context) {
	reminder, ok := h.owned(c)
	if !ok {
		return
	}
	if err := h.DB.Model(&reminder).Update("completed", true).Error; err != nil {
		utils.InternalServerError(c, "Failed to complete reminder: "+err.Error())
		return
	}
	reminder.Completed = true
	utils.Success(c, "Reminder completed", reminder)
}

// Delete removes one of the caller's reminders.
func (h *ReminderHandler) Delete(c *gin.Context) {
	reminder, ok := h.owned(c)
	if !ok {
		return
	}
	if err := h.DB.Delete(&reminder).Error; err != nil {
		utils.InternalServerError(c, "Failed to delete reminder: "+err.Error())
		return
	}
	h.Log.Debug("reminder deleted", zap.String("reminder_id", reminder.ID))
	utils.Success(c, "Reminder deleted successfully", nil)
}

func (h *ReminderHandler) owned(c *gin.Context) (models.Reminder, bool) {
	var reminder models.Reminder
	userID, _, ok := caller(c)
	if !ok {
		return reminder, false
	}
	if err := h.DB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&reminder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Reminder not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return reminder, false
	}
	return reminder, true
}
