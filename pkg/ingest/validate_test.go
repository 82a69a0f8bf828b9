package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() Record {
	return Record{
		FullName:        "Ahmad Al-Khatib",
		DateOfDetention: "2013-05-21",
		Gender:          "male",
		Status:          "detained",
		AgeAtDetention:  "34",
		Line:            2,
	}
}

func TestValidateAcceptsCompleteRecord(t *testing.T) {
	assert.Nil(t, Validate(validRecord()))
}

func TestValidateMissingRequiredFields(t *testing.T) {
	rec := validRecord()
	rec.FullName = ""
	rec.DateOfDetention = ""

	errs := Validate(rec)
	require.Len(t, errs, 2)
	assert.Equal(t, "full_name", errs[0].Field)
	assert.Equal(t, ErrorMissingRequired, errs[0].Type)
	assert.Equal(t, "date_of_detention", errs[1].Field)
	assert.Equal(t, ErrorMissingRequired, errs[1].Type)
}

func TestValidateDateFormat(t *testing.T) {
	for _, bad := range []string{"21/05/2013", "2013-5-21", "May 21 2013", "2013-13-40"} {
		rec := validRecord()
		rec.DateOfDetention = bad
		errs := Validate(rec)
		require.Len(t, errs, 1, "date %q", bad)
		assert.Equal(t, ErrorInvalidDate, errs[0].Type)
	}
}

func TestValidateAgeBounds(t *testing.T) {
	for _, ok := range []string{"0", "120", ""} {
		rec := validRecord()
		rec.AgeAtDetention = ok
		assert.Nil(t, Validate(rec), "age %q should be valid", ok)
	}
	for _, bad := range []string{"-1", "121", "abc", "30.5"} {
		rec := validRecord()
		rec.AgeAtDetention = bad
		errs := Validate(rec)
		require.Len(t, errs, 1, "age %q", bad)
		assert.Equal(t, ErrorInvalidAge, errs[0].Type)
	}
}

func TestValidateEnums(t *testing.T) {
	rec := validRecord()
	rec.Gender = "other"
	rec.Status = "arrested"

	errs := Validate(rec)
	require.Len(t, errs, 2)
	assert.Equal(t, ErrorInvalidGender, errs[0].Type)
	assert.Equal(t, ErrorInvalidStatus, errs[1].Type)

	// empty enum values are allowed and default later
	rec = validRecord()
	rec.Gender = ""
	rec.Status = ""
	assert.Nil(t, Validate(rec))

	// case-insensitive membership
	rec = validRecord()
	rec.Gender = "Female"
	rec.Status = "MISSING"
	assert.Nil(t, Validate(rec))
}

func TestValidateCollectsAllErrorsInOnePass(t *testing.T) {
	rec := Record{
		DateOfDetention: "not-a-date",
		AgeAtDetention:  "999",
		Gender:          "x",
		Status:          "y",
		Line:            7,
	}

	errs := Validate(rec)
	require.Len(t, errs, 5)
	var types []ErrorType
	for _, e := range errs {
		types = append(types, e.Type)
	}
	assert.Equal(t, []ErrorType{
		ErrorMissingRequired,
		ErrorInvalidDate,
		ErrorInvalidAge,
		ErrorInvalidGender,
		ErrorInvalidStatus,
	}, types)
}

func TestValidateStructuralIssuesPassThroughVerbatim(t *testing.T) {
	rec := validRecord()
	rec.Structural = []string{"row has 12 fields, header has 10"}

	errs := Validate(rec)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrorInvalidData, errs[0].Type)
	assert.Equal(t, "row has 12 fields, header has 10", errs[0].Message)
}

func TestLocalize(t *testing.T) {
	e := FieldError{Field: "full_name", Type: ErrorMissingRequired, Message: "full_name is required"}
	assert.Equal(t, "الاسم الكامل مطلوب", e.Localize())

	e = FieldError{Field: "date_of_detention", Type: ErrorMissingRequired}
	assert.Equal(t, "تاريخ الاعتقال مطلوب", e.Localize())

	e = FieldError{Type: ErrorInvalidData, Message: "weird row"}
	assert.NotEmpty(t, e.Localize())
}
