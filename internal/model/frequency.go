package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency is the canonical recurrence period of a series, in days.
// It replaces the old pair of label and day-count fields.
type Frequency int

const (
	FrequencyNone Frequency = 0
	Weekly        Frequency = 7
	Biweekly      Frequency = 14
	Monthly       Frequency = 30
	Quarterly     Frequency = 90
	Annual        Frequency = 365
)

// CanonicalFrequencies lists the buckets intervals are snapped to, shortest first.
var CanonicalFrequencies = []Frequency{Weekly, Biweekly, Monthly, Quarterly, Annual}

// Days returns the period length in days.
func (f Frequency) Days() int { return int(f) }

// Period returns the period as a duration.
func (f Frequency) Period() time.Duration {
	return time.Duration(f) * 24 * time.Hour
}

func (f Frequency) String() string {
	switch f {
	case Weekly:
		return "weekly"
	case Biweekly:
		return "biweekly"
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case Annual:
		return "annual"
	case FrequencyNone:
		return "none"
	default:
		return fmt.Sprintf("every %d days", int(f))
	}
}

// ParseFrequency accepts either a label ("monthly") or a day count ("30").
// Legacy rows stored one or the other.
func ParseFrequency(s string) (Frequency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "weekly":
		return Weekly, nil
	case "biweekly", "fortnightly":
		return Biweekly, nil
	case "monthly":
		return Monthly, nil
	case "quarterly":
		return Quarterly, nil
	case "annual", "annually", "yearly":
		return Annual, nil
	case "", "none":
		return FrequencyNone, nil
	}
	days, err := strconv.Atoi(s)
	if err != nil || days < 0 {
		return FrequencyNone, fmt.Errorf("unsupported frequency %q", s)
	}
	return Frequency(days), nil
}
