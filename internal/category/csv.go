package category

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/cleared-dev/pennywise/internal/merchant"
	"github.com/cleared-dev/pennywise/internal/model"
)

const (
	numFields     = 5
	colPattern    = 0
	colMCC        = 1
	colKind       = 2
	colCategory   = 3
	colDifficulty = 4
)

// ReadEntries reads a category-map CSV.
func ReadEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading category map CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteEntries writes a category-map CSV.
func WriteEntries(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"merchant_pattern", "mcc", "kind", "category", "cancellation_difficulty"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colPattern] = e.Pattern
	row[colMCC] = e.MCC
	row[colKind] = string(e.Kind)
	row[colCategory] = e.Category
	row[colDifficulty] = string(e.Difficulty)
	return row
}

// UnmarshalEntry converts a CSV row to an Entry. Patterns are normalized the
// same way merchant keys are, so map authors can paste raw statement text.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	e := Entry{
		Pattern:    merchant.Normalize(record[colPattern]),
		MCC:        record[colMCC],
		Kind:       model.Kind(record[colKind]),
		Category:   record[colCategory],
		Difficulty: model.Difficulty(record[colDifficulty]),
	}
	if e.Pattern == "" && e.MCC == "" {
		return Entry{}, fmt.Errorf("entry needs a merchant pattern or an mcc")
	}
	switch e.Kind {
	case model.KindBill, model.KindSubscription:
	default:
		return Entry{}, fmt.Errorf("unknown kind %q", record[colKind])
	}
	if e.Category == "" {
		return Entry{}, fmt.Errorf("missing category")
	}
	switch e.Difficulty {
	case "":
		e.Difficulty = model.DifficultyEasy
	case model.DifficultyEasy, model.DifficultyModerate, model.DifficultyHard:
	default:
		return Entry{}, fmt.Errorf("unknown cancellation difficulty %q", record[colDifficulty])
	}
	return e, nil
}
