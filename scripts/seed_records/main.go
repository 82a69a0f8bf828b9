// Seeds a handful of sample detainee records for local development so the
// search UI has something to show. Safe to run repeatedly: existing rows with
// the same name and date are left alone.
package main

import (
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"qayd/models"
	"qayd/pkg/arabic"
)

type sample struct {
	name, location, facility, status, gender string
	date                                     string
	age                                      int
}

var samples = []sample{
	{"أحمد الخطيب", "دمشق", "صيدنايا", models.StatusDetained, models.GenderMale, "2013-05-21", 34},
	{"ليلى حداد", "حلب", "", models.StatusMissing, models.GenderFemale, "2014-02-10", 27},
	{"Samir Qasim", "Homs", "Adra", models.StatusReleased, models.GenderMale, "2012-11-02", 41},
	{"محمد الحلبي", "إدلب", "", models.StatusUnknown, models.GenderMale, "2015-07-19", 19},
}

func main() {
	dsn := os.Getenv("DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DB_DSN not set in environment")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	for _, s := range samples {
		date, _ := time.Parse("2006-01-02", s.date)
		norm := arabic.Normalize(s.name)

		var cnt int64
		db.Model(&models.Detainee{}).
			Where("normalized_name = ? AND date_of_detention = ?", norm, date).
			Count(&cnt)
		if cnt > 0 {
			continue
		}
		age := s.age
		d := models.Detainee{
			FullName:           s.name,
			NormalizedName:     norm,
			DateOfDetention:    date,
			LastSeenLocation:   s.location,
			NormalizedLocation: arabic.Normalize(s.location),
			DetentionFacility:  s.facility,
			AgeAtDetention:     &age,
			Gender:             s.gender,
			Status:             s.status,
			Organization:       "seed",
			SourceFile:         "seed_records",
			UpdateHistory:      models.UpdateHistory{},
		}
		if err := db.Create(&d).Error; err != nil {
			log.Printf("warning: could not seed %s: %v", s.name, err)
			continue
		}
		log.Printf("seeded %s (id=%d)", s.name, d.ID)
	}
}
