// Package bankcsv parses bank statement exports of the form
//
//	date;amount;counterparty;referenceText
//
// with a header row and comma decimal amounts. Rows that cannot be parsed are
// reported and skipped; they never abort the statement.
package bankcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MinColumns is the number of columns a data row needs.
const MinColumns = 4

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
}

var (
	ErrMissingColumns = errors.New("row has fewer than 4 columns")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidAmount  = errors.New("invalid amount")
)

// Row is one parsed statement line.
type Row struct {
	Line          int
	Date          time.Time
	Amount        decimal.Decimal
	Counterparty  string
	ReferenceText string
}

// RowError describes a dropped row.
type RowError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s %q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Parse reads every row of r. The returned error is non-nil only when r
// itself cannot be read.
func Parse(r io.Reader) ([]Row, []RowError, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var (
		rows   []Row
		errs   []RowError
		header = true
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			errs = append(errs, RowError{Line: parseErr.Line, Field: "row", Err: parseErr.Err})
			header = false
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read csv: %w", err)
		}

		if header {
			header = false
			continue
		}

		line, _ := reader.FieldPos(0)
		row, rowErr := parseRecord(line, record)
		if rowErr != nil {
			errs = append(errs, *rowErr)
			continue
		}
		rows = append(rows, row)
	}

	return rows, errs, nil
}

func parseRecord(line int, record []string) (Row, *RowError) {
	if len(record) < MinColumns {
		return Row{}, &RowError{Line: line, Field: "row", Value: strings.Join(record, ";"), Err: ErrMissingColumns}
	}

	date, err := ParseDate(record[0])
	if err != nil {
		return Row{}, &RowError{Line: line, Field: "date", Value: record[0], Err: err}
	}

	amount, err := ParseAmount(record[1])
	if err != nil {
		return Row{}, &RowError{Line: line, Field: "amount", Value: record[1], Err: err}
	}

	return Row{
		Line:         line,
		Date:         date,
		Amount:       amount,
		Counterparty: strings.TrimSpace(record[2]),
		// Unquoted semicolons in the free text split it; glue it back together.
		ReferenceText: strings.TrimSpace(strings.Join(record[3:], ";")),
	}, nil
}

// ParseDate accepts ISO dates and the day-first formats Belgian banks export.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// ParseAmount parses "1.234,56", "-25,00", "+100" or "12.50". When a comma is
// present it is the decimal separator and dots are thousands separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer(" ", "", "\u00a0", "", "€", "", "EUR", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	s = strings.TrimPrefix(s, "+")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return d, nil
}
