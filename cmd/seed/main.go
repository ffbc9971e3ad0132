package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medilink-server/internal/config"
	"medilink-server/internal/logger"
	"medilink-server/internal/models"
)

// Every seeded account shares this password.
const seedPassword = "medilink123"

var specialties = []string{
	"Clínica Geral",
	"Cardiologia",
	"Dermatologia",
	"Pediatria",
	"Ortopedia",
	"Neurologia",
	"Psiquiatria",
	"Ginecologia",
	"Endocrinologia",
	"Oftalmologia",
}

// shifts are the weekday windows a seeded clinician may work.
var shifts = [][2]string{
	{"08:00", "12:00"},
	{"13:00", "17:00"},
	{"09:00", "15:00"},
	{"14:00", "20:00"},
}

func main() {
	clinicians := flag.Int("clinicians", 20, "number of clinicians to create")
	patients := flag.Int("patients", 200, "number of patients to create")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	zlog, err := logger.NewLogger(cfg.Log.Level, "console", "medilink-seed")
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
	if err != nil {
		zlog.Fatal("connect database", zap.Error(err))
	}

	gofakeit.Seed(0) // 0 picks a random seed

	if err := seedClinicians(db, *clinicians); err != nil {
		zlog.Fatal("seed clinicians", zap.Error(err))
	}
	zlog.Info("clinicians seeded", zap.Int("count", *clinicians))

	if err := seedPatients(db, *patients); err != nil {
		zlog.Fatal("seed patients", zap.Error(err))
	}
	zlog.Info("patients seeded", zap.Int("count", *patients))
}

func newUser(role models.Role) (models.User, error) {
	first, last := gofakeit.FirstName(), gofakeit.LastName()
	u := models.User{
		FullName:    first + " " + last,
		Email:       strings.ToLower(fmt.Sprintf("%s.%s.%s@medilink.test", first, last, gofakeit.LetterN(4))),
		Role:        role,
		PhoneNumber: gofakeit.Phone(),
		City:        gofakeit.City(),
		Active:      true,
	}
	return u, u.SetPassword(seedPassword)
}

func seedClinicians(db *gorm.DB, count int) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < count; i++ {
			user, err := newUser(models.RoleClinician)
			if err != nil {
				return err
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}

			pro := models.Professional{
				UserID:     user.ID,
				Specialty:  specialties[gofakeit.Number(0, len(specialties)-1)],
				Registry:   fmt.Sprintf("CRM-%s %d", gofakeit.StateAbr(), gofakeit.Number(10000, 99999)),
				Location:   gofakeit.Street() + ", " + user.City,
				Experience: fmt.Sprintf("%d anos de experiência", gofakeit.Number(1, 30)),
			}
			if err := tx.Omit("User").Create(&pro).Error; err != nil {
				return err
			}

			shift := shifts[gofakeit.Number(0, len(shifts)-1)]
			for day := time.Monday; day <= time.Friday; day++ {
				if gofakeit.Number(1, 10) <= 2 {
					continue // day off
				}
				w := models.AvailabilityWindow{
					ProfessionalID: pro.ID,
					DayOfWeek:      int(day),
					StartTime:      shift[0],
					EndTime:        shift[1],
					Active:         true,
				}
				if err := tx.Create(&w).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func seedPatients(db *gorm.DB, count int) error {
	const batchSize = 100

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)
		batch := make([]models.User, 0, end-offset)
		for i := offset; i < end; i++ {
			user, err := newUser(models.RolePatient)
			if err != nil {
				return err
			}
			dob := gofakeit.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-1, 0, 0))
			user.DateOfBirth = &dob
			user.BloodType = gofakeit.RandomString([]string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"})
			batch = append(batch, user)
		}
		if err := db.Create(&batch).Error; err != nil {
			return err
		}
	}
	return nil
}
