package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medilink-server/internal/chat"
	"medilink-server/internal/config"
	"medilink-server/internal/models"
	"medilink-server/internal/triage"
	"medilink-server/internal/utils"
)

// TriageHandler runs symptom analysis and links triages to clinicians.
type TriageHandler struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Log      *zap.Logger
	Analyzer triage.Analyzer
	Now      func() time.Time
}

// NewTriageHandler creates a new TriageHandler.
func NewTriageHandler(db *gorm.DB, cfg *config.Config, log *zap.Logger, analyzer triage.Analyzer) *TriageHandler {
	return &TriageHandler{DB: db, Cfg: cfg, Log: log, Analyzer: analyzer, Now: time.Now}
}

// AnalyzeRequest carries the patient's free-text symptoms.
type AnalyzeRequest struct {
	Symptoms string `json:"symptoms" binding:"required"`
}

// Analyze classifies the caller's symptoms and stores the triage.
func (h *TriageHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	symptoms := strings.TrimSpace(req.Symptoms)
	if symptoms == "" {
		utils.BadRequest(c, "Symptoms were not provided")
		return
	}
	patientID, _, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.Analyzer.Analyze(c.Request.Context(), symptoms)
	if err != nil {
		switch {
		case errors.Is(err, triage.ErrEmptySymptoms):
			utils.BadRequest(c, "Symptoms were not provided")
		case errors.Is(err, triage.ErrRateLimited):
			utils.TooManyRequests(c, "Request limit exceeded. Please try again in a few moments.")
		case errors.Is(err, triage.ErrQuotaExceeded):
			utils.PaymentRequired(c, "Triage service temporarily unavailable. Please contact support.")
		case errors.Is(err, triage.ErrNotConfigured):
			utils.Error(c, http.StatusServiceUnavailable, "Triage service is not configured")
		default:
			h.Log.Error("triage analysis failed", zap.String("patient_id", patientID), zap.Error(err))
			utils.InternalServerError(c, "Failed to process triage")
		}
		return
	}

	record := models.Triage{
		PatientID:            patientID,
		Symptoms:             symptoms,
		UrgencyClass:         result.Urgency,
		Narrative:            result.Narrative,
		RecommendedSpecialty: result.RecommendedSpecialty,
	}
	if err := h.DB.Omit("Patient", "LinkedProfessional").Create(&record).Error; err != nil {
		utils.InternalServerError(c, "Failed to store triage: "+err.Error())
		return
	}

	h.Log.Info("triage stored",
		zap.String("triage_id", record.ID),
		zap.String("urgency", string(record.UrgencyClass)))
	utils.Created(c, "Triage completed successfully", record)
}

// List returns the caller's triage history, newest first.
func (h *TriageHandler) List(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}

	query := h.DB.Preload("LinkedProfessional.User").Order("created_at desc")
	switch role {
	case models.RolePatient:
		query = query.Where("patient_id = ?", userID)
	case models.RoleClinician:
		pro, err := professionalForUser(c.Request.Context(), h.DB, userID)
		if err != nil {
			respondProfessionalErr(c, err)
			return
		}
		query = query.Where("linked_professional_id = ?", pro.ID)
	}

	var triages []models.Triage
	if err := query.Find(&triages).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch triages: "+err.Error())
		return
	}
	utils.Success(c, "Triages fetched successfully", triages)
}

// Get returns one triage the caller may see.
func (h *TriageHandler) Get(c *gin.Context) {
	record, ok := h.accessibleTriage(c)
	if !ok {
		return
	}
	utils.Success(c, "Triage fetched successfully", h.withChat(record))
}

// LinkRequest optionally names the clinician the patient prefers.
type LinkRequest struct {
	ProfessionalID string `json:"professionalId"`
}

// TriageWithChat is a triage plus the expiry state of its conversation.
type TriageWithChat struct {
	models.Triage
	Chat *chat.State `json:"chat,omitempty"`
}

// Link attaches a clinician to the triage and opens its conversation for the
// configured chat window. Linking twice returns the existing link; the expiry
// instant is never moved.
func (h *TriageHandler) Link(c *gin.Context) {
	var req LinkRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequest(c, "Invalid request payload: "+err.Error())
			return
		}
	}

	record, ok := h.accessibleTriage(c)
	if !ok {
		return
	}
	if _, role, _ := caller(c); role == models.RoleClinician {
		utils.Forbidden(c, "Only the patient can open a conversation from a triage")
		return
	}
	if record.LinkedProfessionalID != nil {
		utils.Success(c, "Triage already linked", h.withChat(record))
		return
	}

	pro, err := h.pickProfessional(record, req.ProfessionalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "No clinician available for this triage")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	now := h.Now().UTC()
	expiresAt := now.Add(h.Cfg.Chat.Window)
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Triage{}).
			Where("id = ? AND linked_professional_id IS NULL", record.ID).
			Updates(map[string]any{"linked_professional_id": pro.ID, "chat_expires_at": expiresAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Linked concurrently; keep the first link.
			return nil
		}
		link := models.ClinicianPatientLink{
			ProfessionalID: pro.ID,
			PatientID:      record.PatientID,
			TriageID:       record.ID,
			Active:         true,
			LinkedAt:       now,
		}
		return tx.Create(&link).Error
	})
	if err != nil {
		h.Log.Error("link triage", zap.String("triage_id", record.ID), zap.Error(err))
		utils.InternalServerError(c, "Failed to link triage: "+err.Error())
		return
	}

	if err := h.DB.Preload("LinkedProfessional.User").First(&record, "id = ?", record.ID).Error; err != nil {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}
	h.Log.Info("triage linked",
		zap.String("triage_id", record.ID),
		zap.Stringp("professional_id", record.LinkedProfessionalID),
		zap.Timep("chat_expires_at", record.ChatExpiresAt))
	utils.Success(c, "Triage linked successfully", h.withChat(record))
}

// pickProfessional returns the preferred clinician if given, else one whose
// specialty matches the recommendation, else any active clinician.
func (h *TriageHandler) pickProfessional(record models.Triage, preferredID string) (models.Professional, error) {
	var pro models.Professional
	activePros := func() *gorm.DB {
		return h.DB.Joins("JOIN users ON users.id = professionals.user_id AND users.active = ?", true)
	}

	if preferredID != "" {
		err := activePros().First(&pro, "professionals.id = ?", preferredID).Error
		return pro, err
	}
	if specialty := strings.TrimSpace(record.RecommendedSpecialty); specialty != "" {
		err := activePros().
			Where("LOWER(professionals.specialty) = LOWER(?)", specialty).
			Order("professionals.created_at asc").
			First(&pro).Error
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pro, err
		}
	}
	err := activePros().Order("professionals.created_at asc").First(&pro).Error
	return pro, err
}

func (h *TriageHandler) withChat(record models.Triage) TriageWithChat {
	out := TriageWithChat{Triage: record}
	if record.LinkedProfessionalID != nil {
		state := chat.ExpiryState(h.Now(), record.ChatExpiresAt)
		out.Chat = &state
	}
	return out
}

func (h *TriageHandler) accessibleTriage(c *gin.Context) (models.Triage, bool) {
	var record models.Triage
	userID, role, ok := caller(c)
	if !ok {
		return record, false
	}
	if err := h.DB.Preload("LinkedProfessional.User").First(&record, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Triage not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return record, false
	}
	if err := authorizePatientAccess(c.Request.Context(), h.DB, userID, role, record.PatientID); err != nil {
		if errors.Is(err, errNoAccess) || errors.Is(err, errNoProfessional) {
			utils.Forbidden(c, "You are not authorized to access this triage")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return record, false
	}
	return record, true
}
