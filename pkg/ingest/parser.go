// Package ingest implements the bulk upload pipeline: parsing uploaded
// CSV/XLSX files into rows, validating each row, skipping likely duplicates
// and inserting the rest, while persisting live progress on the upload
// session for pollers.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// TemplateHeader is the canonical column order of the downloadable CSV
// template. Uploads may reorder columns; lookup is by header name.
const TemplateHeader = "full_name,last_seen_location,contact_info,date_of_detention,detention_facility,physical_description,age_at_detention,gender,status,additional_notes"

// Record is one raw uploaded row before validation. All values are kept as
// strings; the validator decides what parses and what does not.
type Record struct {
	FullName            string
	LastSeenLocation    string
	ContactInfo         string
	DateOfDetention     string
	DetentionFacility   string
	PhysicalDescription string
	AgeAtDetention      string
	Gender              string
	Status              string
	AdditionalNotes     string
	Organization        string

	// Line is the 1-based source row number (header counts as line 1).
	Line int
	// Structural carries parser-level problems with this row (surfaced as
	// invalid_data by the validator, message verbatim).
	Structural []string
}

// Parse dispatches on the file extension. CSV is the template format; XLSX
// is accepted because several partner organizations keep their lists in
// Excel.
func Parse(fileName string, r io.Reader) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		return ParseXLSX(data)
	default:
		return nil, ErrInvalidFileFormat
	}
}

// ParseCSV reads the upload as UTF-8 CSV. A leading byte-order mark is
// tolerated (the template is served with one for Excel), column order is
// resolved from the header row, and fully empty rows are skipped.
func ParseCSV(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
	}
	return fromRows(rows)
}

// ParseXLSX reads the first worksheet of an Excel upload with the same
// header-mapped layout as the CSV template.
func ParseXLSX(data []byte) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrInvalidFileFormat
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFileFormat, err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]Record, error) {
	if len(rows) < 2 {
		return nil, ErrEmptyFile
	}

	columns := map[string]int{}
	for i, name := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"full_name", "date_of_detention"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidFileFormat, required)
		}
	}

	var records []Record
	for i, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		cell := func(name string) string {
			if idx, ok := columns[name]; ok && idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}
		rec := Record{
			FullName:            cell("full_name"),
			LastSeenLocation:    cell("last_seen_location"),
			ContactInfo:         cell("contact_info"),
			DateOfDetention:     cell("date_of_detention"),
			DetentionFacility:   cell("detention_facility"),
			PhysicalDescription: cell("physical_description"),
			AgeAtDetention:      cell("age_at_detention"),
			Gender:              cell("gender"),
			Status:              cell("status"),
			AdditionalNotes:     cell("additional_notes"),
			Organization:        cell("organization"),
			Line:                i + 2,
		}
		if len(row) > len(rows[0]) {
			rec.Structural = append(rec.Structural,
				fmt.Sprintf("row has %d fields, header has %d", len(row), len(rows[0])))
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	return records, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Label identifies the row in error lists and progress details: the name
// when present, the source line otherwise.
func (r Record) Label() string {
	if r.FullName != "" {
		return r.FullName
	}
	return fmt.Sprintf("row %d", r.Line)
}
