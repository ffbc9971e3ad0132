package models

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Role enum
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleClinician Role = "clinician"
	RolePatient   Role = "patient"
)

// User represents an account on the portal together with its profile.
type User struct {
	BaseModel
	Email                 string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password              string     `gorm:"size:255;not null" json:"-"` // Never send password in JSON
	FullName              string     `gorm:"size:200;not null" json:"fullName"`
	Role                  Role       `gorm:"size:20;default:'patient'" json:"role"`
	PhoneNumber           string     `gorm:"size:30" json:"phoneNumber,omitempty"`
	DateOfBirth           *time.Time `json:"dateOfBirth,omitempty"`
	Sex                   string     `gorm:"size:20" json:"sex,omitempty"`
	BloodType             string     `gorm:"size:5" json:"bloodType,omitempty"`
	Address               string     `gorm:"size:255" json:"address,omitempty"`
	City                  string     `gorm:"size:100" json:"city,omitempty"`
	State                 string     `gorm:"size:50" json:"state,omitempty"`
	Allergies             string     `gorm:"type:text" json:"allergies,omitempty"`
	PreExistingConditions string     `gorm:"type:text" json:"preExistingConditions,omitempty"`
	ContinuousMedications string     `gorm:"type:text" json:"continuousMedications,omitempty"`
	PhotoURL              string     `gorm:"size:500" json:"photoUrl,omitempty"`
	Active                bool       `gorm:"default:true" json:"active"`

	// Relations (not always preloaded)
	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID" json:"-"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	FullName              string     `json:"fullName"`
	Role                  Role       `json:"role"`
	PhoneNumber           string     `json:"phoneNumber,omitempty"`
	DateOfBirth           *time.Time `json:"dateOfBirth,omitempty"`
	Sex                   string     `json:"sex,omitempty"`
	BloodType             string     `json:"bloodType,omitempty"`
	Address               string     `json:"address,omitempty"`
	City                  string     `json:"city,omitempty"`
	State                 string     `json:"state,omitempty"`
	Allergies             string     `json:"allergies,omitempty"`
	PreExistingConditions string     `json:"preExistingConditions,omitempty"`
	ContinuousMedications string     `json:"continuousMedications,omitempty"`
	PhotoURL              string     `json:"photoUrl,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:                    u.ID,
		Email:                 u.Email,
		FullName:              u.FullName,
		Role:                  u.Role,
		PhoneNumber:           u.PhoneNumber,
		DateOfBirth:           u.DateOfBirth,
		Sex:                   u.Sex,
		BloodType:             u.BloodType,
		Address:               u.Address,
		City:                  u.City,
		State:                 u.State,
		Allergies:             u.Allergies,
		PreExistingConditions: u.PreExistingConditions,
		ContinuousMedications: u.ContinuousMedications,
		PhotoURL:              u.PhotoURL,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

// HasRole reports whether the user holds the given role. A missing user holds no role.
func HasRole(db *gorm.DB, role Role, userID string) (bool, error) {
	_, ok, err := HasAnyRole(db, userID, role)
	return ok, err
}

// HasAnyRole reads the user's stored role and reports whether it is one of roles.
// A missing user holds no role and yields an empty Role.
func HasAnyRole(db *gorm.DB, userID string, roles ...Role) (Role, bool, error) {
	var user User
	err := db.Select("id", "role").First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	for _, r := range roles {
		if user.Role == r {
			return user.Role, true, nil
		}
	}
	return user.Role, false, nil
}
