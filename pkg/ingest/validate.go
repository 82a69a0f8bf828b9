package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the only accepted date format in uploads.
const DateLayout = "2006-01-02"

var genderValues = map[string]bool{
	"male":        true,
	"female":      true,
	"unspecified": true,
}

var statusValues = map[string]bool{
	"detained": true,
	"missing":  true,
	"released": true,
	"deceased": true,
	"unknown":  true,
}

// Validate checks one row against all rules and returns every finding in
// rule order. It deliberately does not short-circuit: the uploader gets the
// full list for a row in one pass. A nil result means the row is valid.
// Validate is pure; it never touches the store.
func Validate(rec Record) []FieldError {
	var errs []FieldError

	if rec.FullName == "" {
		errs = append(errs, FieldError{
			Field:   "full_name",
			Type:    ErrorMissingRequired,
			Message: "full_name is required",
		})
	}
	if rec.DateOfDetention == "" {
		errs = append(errs, FieldError{
			Field:   "date_of_detention",
			Type:    ErrorMissingRequired,
			Message: "date_of_detention is required",
		})
	} else if _, err := time.Parse(DateLayout, rec.DateOfDetention); err != nil {
		errs = append(errs, FieldError{
			Field:   "date_of_detention",
			Type:    ErrorInvalidDate,
			Message: fmt.Sprintf("date %q is not in YYYY-MM-DD format", rec.DateOfDetention),
		})
	}

	if rec.AgeAtDetention != "" {
		age, err := strconv.Atoi(rec.AgeAtDetention)
		if err != nil || age < 0 || age > 120 {
			errs = append(errs, FieldError{
				Field:   "age_at_detention",
				Type:    ErrorInvalidAge,
				Message: fmt.Sprintf("age %q must be an integer between 0 and 120", rec.AgeAtDetention),
			})
		}
	}

	if g := strings.ToLower(rec.Gender); g != "" && !genderValues[g] {
		errs = append(errs, FieldError{
			Field:   "gender",
			Type:    ErrorInvalidGender,
			Message: fmt.Sprintf("gender %q must be one of male, female, unspecified", rec.Gender),
		})
	}

	if s := strings.ToLower(rec.Status); s != "" && !statusValues[s] {
		errs = append(errs, FieldError{
			Field:   "status",
			Type:    ErrorInvalidStatus,
			Message: fmt.Sprintf("status %q must be one of detained, missing, released, deceased, unknown", rec.Status),
		})
	}

	for _, msg := range rec.Structural {
		errs = append(errs, FieldError{
			Type:    ErrorInvalidData,
			Message: msg,
		})
	}

	return errs
}
