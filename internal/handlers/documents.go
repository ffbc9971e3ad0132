package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medilink-server/internal/models"
	"medilink-server/internal/storage"
	"medilink-server/internal/utils"
)

// DocumentHandler handles uploaded medical documents.
type DocumentHandler struct {
	DB      *gorm.DB
	Log     *zap.Logger
	Storage storage.Storage
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(db *gorm.DB, log *zap.Logger, files storage.Storage) *DocumentHandler {
	return &DocumentHandler{DB: db, Log: log, Storage: files}
}

// UploadDocumentForm is the multipart form of a document upload.
type UploadDocumentForm struct {
	Title        string `form:"title" binding:"required"`
	Kind         string `form:"kind" binding:"required,oneof=exam prescription report vaccination other"`
	Description  string `form:"description"`
	DocumentDate string `form:"documentDate"`
	PatientID    string `form:"patientId"`
}

// Upload stores a document for the calling patient, or for patientId when a
// clinician uploads on a followed patient's behalf.
func (h *DocumentHandler) Upload(c *gin.Context) {
	var form UploadDocumentForm
	if err := c.ShouldBind(&form); err != nil {
		utils.BadRequest(c, "Invalid form: "+utils.FormatValidationError(err))
		return
	}
	var docDate *time.Time
	if form.DocumentDate != "" {
		d, err := time.Parse(dateLayout, form.DocumentDate)
		if err != nil {
			utils.BadRequest(c, "documentDate must be YYYY-MM-DD")
			return
		}
		docDate = &d
	}

	userID, role, ok := caller(c)
	if !ok {
		return
	}
	patientID := userID
	if role != models.RolePatient {
		if form.PatientID == "" {
			utils.BadRequest(c, "patientId is required")
			return
		}
		patientID = form.PatientID
	}
	if !h.authorize(c, userID, role, patientID) {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.BadRequest(c, "A file is required: "+err.Error())
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequest(c, "Unable to read uploaded file: "+err.Error())
		return
	}
	defer file.Close()

	obj, err := h.Storage.Save(c.Request.Context(), "documents/"+patientID, fileHeader.Filename, file)
	if err != nil {
		respondStorageErr(c, h.Log, err)
		return
	}

	doc := models.MedicalDocument{
		PatientID:    patientID,
		UploadedByID: userID,
		Kind:         models.DocumentKind(form.Kind),
		Title:        form.Title,
		Description:  form.Description,
		FileName:     fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		FileURL:      obj.URL,
		StorageKey:   obj.Key,
		DocumentDate: docDate,
	}
	if err := h.DB.Create(&doc).Error; err != nil {
		if delErr := h.Storage.Delete(c.Request.Context(), obj.Key); delErr != nil {
			h.Log.Warn("remove orphaned upload", zap.String("key", obj.Key), zap.Error(delErr))
		}
		utils.InternalServerError(c, "Failed to store document: "+err.Error())
		return
	}

	h.Log.Info("document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("patient_id", patientID),
		zap.Int64("size", obj.Size))
	utils.Created(c, "Document uploaded successfully", doc)
}

// List returns the caller's documents, or ?patientId= for clinicians and admins.
func (h *DocumentHandler) List(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}
	patientID := userID
	if role != models.RolePatient {
		patientID = c.Query("patientId")
		if patientID == "" {
			utils.BadRequest(c, "patientId query parameter is required")
			return
		}
	}
	if !h.authorize(c, userID, role, patientID) {
		return
	}

	query := h.DB.Where("patient_id = ?", patientID).Order("created_at desc")
	if kind := c.Query("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var docs []models.MedicalDocument
	if err := query.Find(&docs).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch documents: "+err.Error())
		return
	}
	utils.Success(c, "Documents fetched successfully", docs)
}

// Delete removes a document. The owning patient and the uploader may delete it.
func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}

	var doc models.MedicalDocument
	if err := h.DB.First(&doc, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Document not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}
	if role != models.RoleAdmin && doc.PatientID != userID && doc.UploadedByID != userID {
		utils.Forbidden(c, "You are not authorized to delete this document")
		return
	}

	if err := h.DB.Delete(&doc).Error; err != nil {
		utils.InternalServerError(c, "Failed to delete document: "+err.Error())
		return
	}
	if doc.StorageKey != "" {
		if err := h.Storage.Delete(c.Request.Context(), doc.StorageKey); err != nil {
			h.Log.Warn("remove document file", zap.String("key", doc.StorageKey), zap.Error(err))
		}
	}
	utils.Success(c, "Document deleted successfully", nil)
}

func (h *DocumentHandler) authorize(c *gin.Context, userID string, role models.Role, patientID string) bool {
	err := authorizePatientAccess(c.Request.Context(), h.DB, userID, role, patientID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errNoAccess), errors.Is(err, errNoProfessional):
		utils.Forbidden(c, "You are not authorized to access this patient's documents")
	default:
		utils.InternalServerError(c, "Database error: "+err.Error())
	}
	return false
}
