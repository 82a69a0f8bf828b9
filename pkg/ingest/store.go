package ingest

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"qayd/models"
	"qayd/pkg/arabic"
)

// Store is everything the orchestrator needs from persistence. The gorm
// implementation is used in production; tests substitute an in-memory fake.
type Store interface {
	// FindDuplicates returns existing records considered the same person as
	// the candidate. Any non-empty result causes the row to be skipped.
	FindDuplicates(ctx context.Context, fullName string, date time.Time, location string) ([]models.Detainee, error)
	InsertDetainee(ctx context.Context, d *models.Detainee) error
	CreateSession(ctx context.Context, s *models.UploadSession) error
	SaveSession(ctx context.Context, s *models.UploadSession) error
	GetSession(ctx context.Context, id string) (*models.UploadSession, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore wraps a gorm connection in the Store interface.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Similarity cutoffs for the duplicate heuristic. The ranking itself runs in
// Postgres (pg_trgm). Thresholds are loose: skipping a possible duplicate is
// preferred over inserting one twice.
const (
	nameSimilarity     = 0.6
	locationSimilarity = 0.4
)

func (s *gormStore) FindDuplicates(ctx context.Context, fullName string, date time.Time, location string) ([]models.Detainee, error) {
	name := arabic.Normalize(fullName)
	loc := arabic.Normalize(location)

	q := s.db.WithContext(ctx).
		Where("date_of_detention = ?", date).
		Where("(normalized_name = ? OR similarity(normalized_name, ?) > ?)", name, name, nameSimilarity)
	if loc != "" {
		q = q.Where("(normalized_location = '' OR normalized_location = ? OR similarity(normalized_location, ?) > ?)",
			loc, loc, locationSimilarity)
	}

	var matches []models.Detainee
	if err := q.Limit(5).Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *gormStore) InsertDetainee(ctx context.Context, d *models.Detainee) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *gormStore) CreateSession(ctx context.Context, sess *models.UploadSession) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *gormStore) SaveSession(ctx context.Context, sess *models.UploadSession) error {
	return s.db.WithContext(ctx).Save(sess).Error
}

func (s *gormStore) GetSession(ctx context.Context, id string) (*models.UploadSession, error) {
	var sess models.UploadSession
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &sess, nil
}
