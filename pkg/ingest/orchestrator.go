package ingest

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"qayd/models"
	"qayd/pkg/arabic"
)

// Orchestrator drives one bulk upload: validate each row, skip likely
// duplicates, insert the rest, and persist counters after every row so a
// concurrent poller sees live progress. The goroutine running a session is
// that session's only writer.
type Orchestrator struct {
	store Store
	log   zerolog.Logger
}

func NewOrchestrator(store Store) *Orchestrator {
	return &Orchestrator{store: store, log: log.Logger}
}

// Begin creates the session row for a parsed batch and returns it in
// processing state. The caller then runs Process, usually in a goroutine.
func (o *Orchestrator) Begin(ctx context.Context, fileName string, total int, userID *uint) (*models.UploadSession, error) {
	sess := &models.UploadSession{
		ID:           uuid.NewString(),
		FileName:     fileName,
		Status:       models.SessionProcessing,
		TotalRecords: total,
		Errors:       models.RecordErrors{},
		UserID:       userID,
	}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Process runs the row loop to a terminal state. Rows are handled strictly
// one at a time: processed_records stays a monotonic progress signal and a
// row's duplicate check may depend on rows committed earlier in the same
// batch. Row-level findings are recorded and skipped; only store failures
// fail the whole session, and rows already inserted stay committed.
func (o *Orchestrator) Process(ctx context.Context, sess *models.UploadSession, records []Record) {
	logger := o.log.With().Str("session_id", sess.ID).Str("file", sess.FileName).Logger()
	logger.Info().Int("total", sess.TotalRecords).Msg("bulk ingestion started")

	for i, rec := range records {
		sess.ProcessingDetails = &models.ProcessingDetails{
			CurrentRecord: rec.Label(),
			CurrentIndex:  i + 1,
			Total:         sess.TotalRecords,
		}

		if errs := Validate(rec); len(errs) > 0 {
			sess.Errors = append(sess.Errors, errorGroup(rec.Label(), errs))
			sess.InvalidRecords++
			sess.ProcessedRecords++
			if err := o.store.SaveSession(ctx, sess); err != nil {
				o.fail(ctx, sess, logger, err)
				return
			}
			continue
		}

		// Validated above, cannot fail here.
		date, _ := time.Parse(DateLayout, rec.DateOfDetention)

		matches, err := o.store.FindDuplicates(ctx, rec.FullName, date, rec.LastSeenLocation)
		if err != nil {
			o.fail(ctx, sess, logger, err)
			return
		}
		if len(matches) > 0 {
			dup := FieldError{
				Type:    ErrorDuplicate,
				Message: "matches existing record id " + strconv.FormatUint(uint64(matches[0].ID), 10),
			}
			sess.Errors = append(sess.Errors, errorGroup(rec.Label(), []FieldError{dup}))
			sess.DuplicateRecords++
			sess.SkippedDuplicates++
			sess.ProcessedRecords++
			if err := o.store.SaveSession(ctx, sess); err != nil {
				o.fail(ctx, sess, logger, err)
				return
			}
			continue
		}

		detainee := toDetainee(rec, date, sess.FileName)
		if err := o.store.InsertDetainee(ctx, detainee); err != nil {
			o.fail(ctx, sess, logger, err)
			return
		}
		sess.ValidRecords++
		sess.ProcessedRecords++
		if err := o.store.SaveSession(ctx, sess); err != nil {
			o.fail(ctx, sess, logger, err)
			return
		}
	}

	sess.Status = models.SessionCompleted
	sess.ProcessingDetails = nil
	if err := o.store.SaveSession(ctx, sess); err != nil {
		o.fail(ctx, sess, logger, err)
		return
	}
	logger.Info().
		Int("valid", sess.ValidRecords).
		Int("invalid", sess.InvalidRecords).
		Int("duplicates", sess.DuplicateRecords).
		Msg("bulk ingestion completed")
}

// fail freezes the session in failed state. Best effort: if even that write
// fails there is nothing left to persist to.
func (o *Orchestrator) fail(ctx context.Context, sess *models.UploadSession, logger zerolog.Logger, cause error) {
	logger.Error().Err(cause).Int("processed", sess.ProcessedRecords).Msg("bulk ingestion failed")
	sess.Status = models.SessionFailed
	sess.ErrorMessage = cause.Error()
	if err := o.store.SaveSession(ctx, sess); err != nil {
		logger.Error().Err(err).Msg("could not persist failed session state")
	}
}

func errorGroup(label string, errs []FieldError) models.RecordErrorGroup {
	group := models.RecordErrorGroup{Record: label}
	for _, e := range errs {
		group.Errors = append(group.Errors, models.RowError{
			Field:     e.Field,
			Type:      string(e.Type),
			Message:   e.Message,
			Localized: e.Localize(),
		})
	}
	return group
}

func toDetainee(rec Record, date time.Time, sourceFile string) *models.Detainee {
	gender := strings.ToLower(rec.Gender)
	if gender == "" {
		gender = models.GenderUnspecified
	}
	status := strings.ToLower(rec.Status)
	if status == "" {
		status = models.StatusUnknown
	}
	var age *int
	if rec.AgeAtDetention != "" {
		if v, err := strconv.Atoi(rec.AgeAtDetention); err == nil {
			age = &v
		}
	}
	return &models.Detainee{
		FullName:            rec.FullName,
		NormalizedName:      arabic.Normalize(rec.FullName),
		DateOfDetention:     date,
		LastSeenLocation:    rec.LastSeenLocation,
		NormalizedLocation:  arabic.Normalize(rec.LastSeenLocation),
		ContactInfo:         rec.ContactInfo,
		DetentionFacility:   rec.DetentionFacility,
		PhysicalDescription: rec.PhysicalDescription,
		AgeAtDetention:      age,
		Gender:              gender,
		Status:              status,
		AdditionalNotes:     rec.AdditionalNotes,
		Organization:        rec.Organization,
		SourceFile:          sourceFile,
		UpdateHistory:       models.UpdateHistory{},
	}
}
