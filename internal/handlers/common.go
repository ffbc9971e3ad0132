package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"medilink-server/internal/middleware"
	"medilink-server/internal/models"
	"medilink-server/internal/scheduling"
	"medilink-server/internal/utils"
)

var (
	errNoProfessional = errors.New("clinician profile not found")
	errNoAccess       = errors.New("no access to this patient")
)

const dateLayout = "2006-01-02"

// caller returns the authenticated user id and role, answering 401 if either is missing.
func caller(c *gin.Context) (string, models.Role, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok || userID == "" {
		utils.Unauthorized(c, "User not authenticated")
		return "", "", false
	}
	role, ok := middleware.GetUserRoleFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User role not found")
		return "", "", false
	}
	return userID, role, true
}

// professionalForUser loads the clinician profile owned by userID.
func professionalForUser(ctx context.Context, db *gorm.DB, userID string) (models.Professional, error) {
	var p models.Professional
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, errNoProfessional
	}
	return p, err
}

// canAccessPatient reports whether a clinician follows the patient, either
// through a triage link or an appointment.
func canAccessPatient(ctx context.Context, db *gorm.DB, professionalID, patientID string) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&models.ClinicianPatientLink{}).
		Where("professional_id = ? AND patient_id = ?", professionalID, patientID).
		Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if err := db.WithContext(ctx).Model(&models.Appointment{}).
		Where("professional_id = ? AND patient_id = ?", professionalID, patientID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// authorizePatientAccess resolves whether the caller may read patientID's data.
func authorizePatientAccess(ctx context.Context, db *gorm.DB, userID string, role models.Role, patientID string) error {
	switch role {
	case models.RoleAdmin:
		return nil
	case models.RolePatient:
		if userID == patientID {
			return nil
		}
		return errNoAccess
	case models.RoleClinician:
		pro, err := professionalForUser(ctx, db, userID)
		if err != nil {
			return err
		}
		ok, err := canAccessPatient(ctx, db, pro.ID, patientID)
		if err != nil {
			return err
		}
		if !ok {
			return errNoAccess
		}
		return nil
	}
	return errNoAccess
}

// parseDay parses a YYYY-MM-DD calendar date at midnight in loc.
func parseDay(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, loc)
}

// loadSlots reads the professional's active windows for the day's weekday and
// the day's appointments, then derives the slot list. Nothing is cached.
// The appointment named by excludeID, if any, does not occupy its slot.
func loadSlots(ctx context.Context, db *gorm.DB, professionalID string, day time.Time, granularity time.Duration, excludeID string) ([]scheduling.Slot, error) {
	var rows []models.AvailabilityWindow
	if err := db.WithContext(ctx).
		Where("professional_id = ? AND day_of_week = ? AND active = ?", professionalID, int(day.Weekday()), true).
		Order("start_time asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	windows := make([]scheduling.Window, 0, len(rows))
	for _, r := range rows {
		w, err := r.ToWindow()
		if err != nil {
			// Rows are validated on write; a malformed legacy row offers no slots.
			continue
		}
		windows = append(windows, w)
	}
	if len(windows) == 0 {
		return []scheduling.Slot{}, nil
	}

	start := day
	end := day.AddDate(0, 0, 1)
	var booked []models.Appointment
	if err := db.WithContext(ctx).
		Where("professional_id = ? AND scheduled_at >= ? AND scheduled_at < ? AND status IN ?",
			professionalID, start.UTC(), end.UTC(),
			[]scheduling.AppointmentStatus{scheduling.StatusScheduled, scheduling.StatusConfirmed}).
		Find(&booked).Error; err != nil {
		return nil, err
	}

	appointments := make([]scheduling.Appointment, 0, len(booked))
	for _, a := range booked {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		appointments = append(appointments, a.ToAppointment())
	}
	return scheduling.ComputeSlots(day, windows, appointments, granularity), nil
}
