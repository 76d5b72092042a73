package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/pennywise/internal/id"
	"github.com/cleared-dev/pennywise/internal/model"
)

// ChaseParser parses Chase bank checking CSV exports.
type ChaseParser struct{}

const (
	chaseDateFormat = "01/02/2006"
	chaseNumFields  = 7
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV into transactions owned by userID. Rows that
// cannot be parsed are reported and skipped; a file that is not CSV with
// the expected columns fails as a whole.
func (p *ChaseParser) Parse(r io.Reader, userID string) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = chaseNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("reading chase CSV: %w", err)
	}

	var res Result
	if len(records) <= 1 {
		return res, nil
	}

	// Identical rows on the same day are distinct charges.
	seen := make(map[string]int)
	for i, rec := range records[1:] {
		row := i + 2
		date, desc, amount, err := parseChaseRow(rec)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Err: err})
			continue
		}

		day := date.Format("2006-01-02")
		key := day + "|" + desc + "|" + amount.String()
		seq := seen[key]
		seen[key]++

		res.Transactions = append(res.Transactions, model.Transaction{
			ID:        id.TransactionID(p.Format(), userID, day, desc, amount.String(), seq),
			UserID:    userID,
			Timestamp: date,
			Amount:    amount,
			Merchant:  desc,
		})
	}
	return res, nil
}

func parseChaseRow(rec []string) (time.Time, string, decimal.Decimal, error) {
	date, err := time.Parse(chaseDateFormat, strings.TrimSpace(rec[chaseColDate]))
	if err != nil {
		return time.Time{}, "", decimal.Zero, fmt.Errorf("parsing date %q: %w", rec[chaseColDate], err)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(rec[chaseColAmount]))
	if err != nil {
		return time.Time{}, "", decimal.Zero, fmt.Errorf("parsing amount %q: %w", rec[chaseColAmount], err)
	}
	if amount.IsZero() {
		return time.Time{}, "", decimal.Zero, errors.New("zero amount")
	}

	desc := strings.TrimSpace(rec[chaseColDesc])
	if desc == "" {
		return time.Time{}, "", decimal.Zero, errors.New("missing description")
	}
	return date, desc, amount, nil
}
