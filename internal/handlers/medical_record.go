package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medilink-server/internal/models"
	"medilink-server/internal/utils"
)

// MedicalRecordHandler handles the patient's medical record.
type MedicalRecordHandler struct {
	DB  *gorm.DB
	Log *zap.Logger
}

// NewMedicalRecordHandler creates a new MedicalRecordHandler.
func NewMedicalRecordHandler(db *gorm.DB, log *zap.Logger) *MedicalRecordHandler {
	return &MedicalRecordHandler{DB: db, Log: log}
}

// GetMine returns the caller's record. A patient without one gets an empty record.
func (h *MedicalRecordHandler) GetMine(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	record, err := h.find(userID)
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch medical record: "+err.Error())
		return
	}
	utils.Success(c, "Medical record fetched successfully", record)
}

// UpsertMedicalRecordRequest represents the editable record fields.
type UpsertMedicalRecordRequest struct {
	Allergies   string `json:"allergies"`
	History     string `json:"history"`
	Medications string `json:"medications"`
	Notes       string `json:"notes"`
}

// UpsertMine creates or replaces the caller's record.
func (h *MedicalRecordHandler) UpsertMine(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	var req UpsertMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	record, err := h.find(userID)
	if err != nil {
		utils.InternalServerError(c, "Failed to fetch medical record: "+err.Error())
		return
	}
	record.Allergies = req.Allergies
	record.History = req.History
	record.Medications = req.Medications
	record.Notes = req.Notes

	if record.ID == "" {
		err = h.DB.Create(&record).Error
	} else {
		err = h.DB.Save(&record).Error
	}
	if err != nil {
		utils.InternalServerError(c, "Failed to save medical record: "+err.Error())
		return
	}

	h.Log.Info("medical record saved", zap.String("patient_id", userID))
	utils.Success(c, "Medical record saved successfully", record)
}

// PatientChart is what a clinician sees of a followed patient.
type PatientChart struct {
	Patient   models.UserSanitized     `json:"patient"`
	Record    models.MedicalRecord     `json:"record"`
	Triages   []models.Triage          `json:"triages"`
	Documents []models.MedicalDocument `json:"documents"`
}

// GetForPatient returns a patient's profile, record, triage history and documents.
func (h *MedicalRecordHandler) GetForPatient(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}
	patientID := c.Param("patientId")

	if err := authorizePatientAccess(c.Request.Context(), h.DB, userID, role, patientID); err != nil {
		if errors.Is(err, errNoAccess) || errors.Is(err, errNoProfessional) {
			utils.Forbidden(c, "You are not authorized to view this patient's record")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	var patient models.User
	if err := h.DB.First(&patient, "id = ? AND role = ?", patientID, models.RolePatient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Patient not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	chart := PatientChart{Patient: patient.Sanitize()}
	var err error
	if chart.Record, err = h.find(patientID); err != nil {
		utils.InternalServerError(c, "Failed to fetch medical record: "+err.Error())
		return
	}
	if err := h.DB.Where("patient_id = ?", patientID).Order("created_at desc").Find(&chart.Triages).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch triages: "+err.Error())
		return
	}
	if err := h.DB.Where("patient_id = ?", patientID).Order("created_at desc").Find(&chart.Documents).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch documents: "+err.Error())
		return
	}

	utils.Success(c, "Patient record fetched successfully", chart)
}

func (h *MedicalRecordHandler) find(patientID string) (models.MedicalRecord, error) {
	var record models.MedicalRecord
	err := h.DB.Where("patient_id = ?", patientID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.MedicalRecord{PatientID: patientID}, nil
	}
	return record, err
}
