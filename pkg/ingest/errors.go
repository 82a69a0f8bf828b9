package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFileFormat = errors.New("invalid file format")
	ErrEmptyFile         = errors.New("file contains no data rows")
	ErrSessionNotFound   = errors.New("upload session not found")
)

// ErrorType is the stable machine-readable key of a row-level finding. The
// client localizes on Type (plus Field for missing_required); Message is
// diagnostic detail only.
type ErrorType string

const (
	ErrorDuplicate       ErrorType = "duplicate"
	ErrorInvalidDate     ErrorType = "invalid_date"
	ErrorMissingRequired ErrorType = "missing_required"
	ErrorInvalidAge      ErrorType = "invalid_age"
	ErrorInvalidGender   ErrorType = "invalid_gender"
	ErrorInvalidStatus   ErrorType = "invalid_status"
	ErrorInvalidData     ErrorType = "invalid_data"
)

// FieldError is one validation finding for one row. Field carries the column
// identifier so display code never has to substring-match Message.
type FieldError struct {
	Field   string
	Type    ErrorType
	Message string
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Type, e.Field, e.Message)
}

// Arabic display text, keyed on error type. missing_required is further
// keyed by field.
var localizedByType = map[ErrorType]string{
	ErrorDuplicate:     "سجل مكرر، تم تخطيه",
	ErrorInvalidDate:   "صيغة التاريخ غير صحيحة، الصيغة المطلوبة: YYYY-MM-DD",
	ErrorInvalidAge:    "العمر يجب أن يكون رقماً بين 0 و 120",
	ErrorInvalidGender: "قيمة الجنس غير صحيحة",
	ErrorInvalidStatus: "قيمة الحالة غير صحيحة",
	ErrorInvalidData:   "بيانات غير صالحة في السجل",
}

var localizedMissing = map[string]string{
	"full_name":         "الاسم الكامل مطلوب",
	"date_of_detention": "تاريخ الاعتقال مطلوب",
}

// Localize returns the Arabic user-facing text for the finding. Falls back
// to the raw message for unknown combinations.
func (e FieldError) Localize() string {
	if e.Type == ErrorMissingRequired {
		if msg, ok := localizedMissing[e.Field]; ok {
			return msg
		}
		return "حقل مطلوب: " + e.Field
	}
	if msg, ok := localizedByType[e.Type]; ok {
		return msg
	}
	return e.Message
}
