package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medilink-server/internal/models"
	"medilink-server/internal/utils"
)

// UserHandler handles user administration and the clinician directory.
type UserHandler struct {
	DB  *gorm.DB
	Log *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB, log *zap.Logger) *UserHandler {
	return &UserHandler{DB: db, Log: log}
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	FullName  string `json:"fullName" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	Role      string `json:"role" binding:"required,oneof=patient clinician admin"`
	Specialty string `json:"specialty"`
}

// CreateUser handles creating a new user (admin).
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	if models.Role(req.Role) == models.RoleClinician && strings.TrimSpace(req.Specialty) == "" {
		utils.BadRequest(c, "Specialty is required for clinicians")
		return
	}

	var existingUser models.User
	if err := h.DB.Where("email = ?", strings.ToLower(req.Email)).First(&existingUser).Error; err == nil {
		utils.Conflict(c, "User with this email already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}

	user := models.User{
		FullName: req.FullName,
		Email:    strings.ToLower(req.Email),
		Role:     models.Role(req.Role),
		Active:   true,
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password: "+err.Error())
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if user.Role == models.RoleClinician {
			return tx.Create(&models.Professional{UserID: user.ID, Specialty: strings.TrimSpace(req.Specialty)}).Error
		}
		return nil
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to create user: "+err.Error())
		return
	}

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUsers handles fetching all users (admin). Optional ?role= filter.
func (h *UserHandler) GetUsers(c *gin.Context) {
	query := h.DB.Order("full_name asc")
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch users: "+err.Error())
		return
	}

	sanitizedUsers := make([]models.UserSanitized, len(users))
	for i, u := range users {
		sanitizedUsers[i] = u.Sanitize()
	}

	utils.Success(c, "Users fetched successfully", sanitizedUsers)
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	userID := c.Param("id")

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating a user by an admin.
type UpdateUserRequest struct {
	FullName  string `json:"fullName"`
	Email     string `json:"email" binding:"omitempty,email"`
	Role      string `json:"role" binding:"omitempty,oneof=patient clinician admin"`
	Active    *bool  `json:"active"`
	Specialty string `json:"specialty"`
}

// UpdateUser handles updating a user by ID (admin).
func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID := c.Param("id")

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+utils.FormatValidationError(err))
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		utils.NotFound(c, "User not found")
		return
	}

	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Email != "" && !strings.EqualFold(req.Email, user.Email) {
		var existingUser models.User
		if err := h.DB.Where("email = ? AND id != ?", strings.ToLower(req.Email), user.ID).First(&existingUser).Error; err == nil {
			utils.Conflict(c, "New email is already in use")
			return
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.InternalServerError(c, "Database error checking email: "+err.Error())
			return
		}
		user.Email = strings.ToLower(req.Email)
	}
	// A clinician must own a professional profile to be bookable
	var newProfessional *models.Professional
	if models.Role(req.Role) == models.RoleClinician && user.Role != models.RoleClinician {
		var count int64
		if err := h.DB.Model(&models.Professional{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
			utils.InternalServerError(c, "Database error: "+err.Error())
			return
		}
		if count == 0 {
			specialty := strings.TrimSpace(req.Specialty)
			if specialty == "" {
				utils.BadRequest(c, "Specialty is required for clinicians")
				return
			}
			newProfessional = &models.Professional{UserID: user.ID, Specialty: specialty}
		}
	}
	if req.Role != "" {
		user.Role = models.Role(req.Role)
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&user).Error; err != nil {
			return err
		}
		if newProfessional != nil {
			return tx.Create(newProfessional).Error
		}
		return nil
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to update user: "+err.Error())
		return
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser handles deleting a user by ID (admin).
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID := c.Param("id")

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Professional{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete user: "+err.Error())
		return
	}

	h.Log.Info("user deleted", zap.String("user_id", userID))
	utils.Success(c, "User deleted successfully", nil)
}

// GetProfessionals lists clinicians for booking. Optional ?specialty= filter.
func (h *UserHandler) GetProfessionals(c *gin.Context) {
	query := h.DB.Preload("User").
		Joins("JOIN users ON users.id = professionals.user_id AND users.active = ?", true).
		Order("professionals.specialty asc")
	if specialty := strings.TrimSpace(c.Query("specialty")); specialty != "" {
		query = query.Where("professionals.specialty = ?", specialty)
	}

	var professionals []models.Professional
	if err := query.Find(&professionals).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch professionals: "+err.Error())
		return
	}

	utils.Success(c, "Professionals fetched successfully", sanitizeProfessionals(professionals))
}

// GetProfessional returns one clinician's public profile.
func (h *UserHandler) GetProfessional(c *gin.Context) {
	var pro models.Professional
	if err := h.DB.Preload("User").First(&pro, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Professional not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}
	utils.Success(c, "Professional fetched successfully", sanitizeProfessional(pro))
}

// GetMyProfessional returns the caller's clinician profile.
func (h *UserHandler) GetMyProfessional(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	pro, err := professionalForUser(c.Request.Context(), h.DB, userID)
	if err != nil {
		respondProfessionalErr(c, err)
		return
	}
	utils.Success(c, "Professional profile fetched successfully", pro)
}

// UpdateProfessionalRequest represents the editable clinician profile fields.
type UpdateProfessionalRequest struct {
	Specialty    *string `json:"specialty"`
	PracticeArea *string `json:"practiceArea"`
	Registry     *string `json:"registry"`
	Location     *string `json:"location"`
	Experience   *string `json:"experience"`
}

// UpdateMyProfessional updates the caller's clinician profile.
func (h *UserHandler) UpdateMyProfessional(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}

	var req UpdateProfessionalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	pro, err := professionalForUser(c.Request.Context(), h.DB, userID)
	if err != nil {
		respondProfessionalErr(c, err)
		return
	}

	if req.Specialty != nil {
		if strings.TrimSpace(*req.Specialty) == "" {
			utils.BadRequest(c, "Specialty cannot be empty")
			return
		}
		pro.Specialty = strings.TrimSpace(*req.Specialty)
	}
	if req.PracticeArea != nil {
		pro.PracticeArea = *req.PracticeArea
	}
	if req.Registry != nil {
		pro.Registry = *req.Registry
	}
	if req.Location != nil {
		pro.Location = *req.Location
	}
	if req.Experience != nil {
		pro.Experience = *req.Experience
	}

	if err := h.DB.Omit("User").Save(&pro).Error; err != nil {
		utils.InternalServerError(c, "Failed to update professional profile: "+err.Error())
		return
	}
	utils.Success(c, "Professional profile updated successfully", pro)
}

// GetPatients lists patients: every patient for admins, followed patients for clinicians.
func (h *UserHandler) GetPatients(c *gin.Context) {
	userID, role, ok := caller(c)
	if !ok {
		return
	}

	var patients []models.User
	switch role {
	case models.RoleAdmin:
		if err := h.DB.Where("role = ?", models.RolePatient).Order("full_name asc").Find(&patients).Error; err != nil {
			utils.InternalServerError(c, "Failed to fetch patients: "+err.Error())
			return
		}
	case models.RoleClinician:
		pro, err := professionalForUser(c.Request.Context(), h.DB, userID)
		if err != nil {
			respondProfessionalErr(c, err)
			return
		}
		linked := h.DB.Model(&models.ClinicianPatientLink{}).Select("patient_id").Where("professional_id = ?", pro.ID)
		booked := h.DB.Model(&models.Appointment{}).Select("patient_id").Where("professional_id = ?", pro.ID)
		if err := h.DB.Where("role = ?", models.RolePatient).
			Where("id IN (?) OR id IN (?)", linked, booked).
			Order("full_name asc").
			Find(&patients).Error; err != nil {
			utils.InternalServerError(c, "Failed to fetch patients: "+err.Error())
			return
		}
	default:
		utils.Forbidden(c, "Only clinicians and admins can view patient lists")
		return
	}

	sanitizedPatients := make([]models.UserSanitized, len(patients))
	for i, patient := range patients {
		sanitizedPatients[i] = patient.Sanitize()
	}

	utils.Success(c, "Patients fetched successfully", sanitizedPatients)
}

// ProfessionalResponse is the directory view of a clinician.
type ProfessionalResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	FullName     string `json:"fullName"`
	PhotoURL     string `json:"photoUrl,omitempty"`
	Specialty    string `json:"specialty"`
	PracticeArea string `json:"practiceArea,omitempty"`
	Registry     string `json:"registry,omitempty"`
	Location     string `json:"location,omitempty"`
	Experience   string `json:"experience,omitempty"`
}

func sanitizeProfessional(p models.Professional) ProfessionalResponse {
	return ProfessionalResponse{
		ID:           p.ID,
		UserID:       p.UserID,
		FullName:     p.User.FullName,
		PhotoURL:     p.User.PhotoURL,
		Specialty:    p.Specialty,
		PracticeArea: p.PracticeArea,
		Registry:     p.Registry,
		Location:     p.Location,
		Experience:   p.Experience,
	}
}

func sanitizeProfessionals(ps []models.Professional) []ProfessionalResponse {
	out := make([]ProfessionalResponse, len(ps))
	for i, p := range ps {
		out[i] = sanitizeProfessional(p)
	}
	return out
}

func respondProfessionalErr(c *gin.Context, err error) {
	if errors.Is(err, errNoProfessional) {
		utils.Forbidden(c, "Clinician profile not found for this user")
		return
	}
	utils.InternalServerError(c, "Database error: "+err.Error())
}
