// Package ingest turns uploaded spreadsheet exports into ordered row records
// for the upload pipeline. It handles xlsx and CSV payloads and the loose
// value formats seen in real exports, like Excel serial dates and
// spreadsheet-style booleans.
package ingest

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/dealsight/backend/pkg/errors"
)

// Row is one spreadsheet row keyed by header column name. Every header
// column is present, with "" for blank cells.
type Row map[string]string

var xlsxMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// ParseRows extracts the data rows of an uploaded file. The first row is the
// header; header names and cell values are trimmed. xlsx is detected by the
// zip magic or the filename extension, everything else parses as CSV.
func ParseRows(filename string, data []byte) ([]Row, error) {
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("uploaded file is empty")
	}
	if bytes.HasPrefix(data, xlsxMagic) || strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return parseXLSX(data)
	}
	return parseCSV(data)
}

func parseXLSX(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewValidationError("could not read xlsx file: " + err.Error())
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, apperrors.NewValidationError("xlsx file has no sheets")
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.NewInternalError("could not read xlsx rows", err)
	}
	return recordsToRows(records), nil
}

func parseCSV(data []byte) ([]Row, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewValidationError("could not parse csv file: " + err.Error())
		}
		records = append(records, record)
	}
	return recordsToRows(records), nil
}

func recordsToRows(records [][]string) []Row {
	if len(records) < 2 {
		return nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(header))
		empty := true
		for i, col := range header {
			if col == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			if value != "" {
				empty = false
			}
			row[col] = value
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows
}

// Columns reports whether the row carries every required column, and names
// the missing ones.
func (r Row) Columns(required []string) (missing []string) {
	for _, col := range required {
		if _, ok := r[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

var excelEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2/1/2006",
	"1/2/06",
}

// ParseMeetingDate accepts the date formats spreadsheet exports produce:
// common date layouts, or a numeric Excel serial (days since the 1900
// epoch, with the off-by-two adjustment Excel's leap-year bug requires).
// Unparseable input yields the zero time.
func ParseMeetingDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 0 {
		days := int(serial) - 2
		return excelEpoch.AddDate(0, 0, days)
	}
	return time.Time{}
}

// ParseClosed interprets the closure label column: TRUE (any case) and the
// usual truthy spreadsheet spellings count as closed, blank and FALSE do not.
func ParseClosed(value string) bool {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "TRUE", "1", "YES", "SI", "SÍ", "VERDADERO":
		return true
	default:
		return false
	}
}
