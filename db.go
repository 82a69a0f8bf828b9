package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"qayd/models"
	"qayd/pkg/storage"
)

var db *gorm.DB
var rdb *redis.Client
var docStore storage.ObjectStore

func initDB() {
	var err error
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		zlog.Fatal().Msg("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN.")
	}
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect postgres database")
	}
	// Control schema migrations with env DB_AUTO_MIGRATE (default true). Any permission errors will be logged and ignored.
	shouldMigrate := true
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			shouldMigrate = false
		}
	}
	if shouldMigrate {
		// Migrate models individually so a failure on one doesn't block others
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			zlog.Warn().Err(err).Msg("migration warning (roles)")
		}
		if err := db.AutoMigrate(&models.User{}); err != nil {
			zlog.Warn().Err(err).Msg("migration warning (users)")
		}
		if err := db.AutoMigrate(&models.RefreshToken{}); err != nil {
			zlog.Warn().Err(err).Msg("migration warning (refresh_tokens)")
		}
		if err := db.AutoMigrate(&models.Detainee{}); err != nil {
			zlog.Warn().Err(err).Msg("migration warning (detainees)")
		}
		if err := db.AutoMigrate(&models.UploadSession{}); err != nil {
			zlog.Warn().Err(err).Msg("migration warning (upload_sessions)")
		}
		if err := db.AutoMigrate(&models.Document{}); err != nil {
			zlog.Warn().Err(err).Msg("migration warning (documents)")
		}
		if err := ensureSearchIndexes(); err != nil {
			zlog.Warn().Err(err).Msg("warning: ensuring search indexes failed")
		}
	}
	seedDB()
}

// ensureSearchIndexes sets up the trigram machinery the duplicate detector
// and public search rely on: the pg_trgm extension, gin indexes over the
// normalized columns, and the search materialized view that record
// corrections refresh best-effort.
func ensureSearchIndexes() error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_detainees_normalized_name_trgm
		ON detainees USING gin (normalized_name gin_trgm_ops)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_detainees_normalized_location_trgm
		ON detainees USING gin (normalized_location gin_trgm_ops)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE MATERIALIZED VIEW IF NOT EXISTS detainees_search AS
		SELECT id, normalized_name, normalized_location, status, date_of_detention
		FROM detainees`).Error; err != nil {
		return err
	}
	// CONCURRENTLY refresh needs a unique index on the view
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_detainees_search_id
		ON detainees_search (id)`).Error
}

func seedDB() {
	// Ensure master roles exist
	roles := []models.Role{{Name: "administrator", Description: "full access"}, {Name: "organization", Description: "partner organization account"}}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}

	// Check if admin user exists
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", "administrator").First(&role).Error; err != nil {
			zlog.Warn().Err(err).Msg("failed to find administrator role")
		}
		password := os.Getenv("ADMIN_PASSWORD")
		if password == "" {
			password = "admin123" // development fallback
		}
		rid := role.ID
		admin := models.User{Username: "admin", RoleID: &rid}
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		admin.HashedPassword = hashedPassword
		db.Create(&admin)
		zlog.Info().Msg("seeded admin user")
	}
}

// initRedis connects the rate-limiting cache. Optional: without REDIS_ADDR
// the public search endpoint simply runs unthrottled.
func initRedis() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		zlog.Warn().Err(err).Msg("redis unreachable, search rate limiting disabled")
		return
	}
	rdb = client
}

// initObjectStore connects MinIO for attachment documents. Optional: without
// MINIO_ENDPOINT the attachment endpoints return 503.
func initObjectStore() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := storage.NewFromEnv(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("object storage unavailable, attachment uploads disabled")
		return
	}
	docStore = store
}
