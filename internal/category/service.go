package category

import (
	"fmt"
	"os"

	"github.com/cleared-dev/pennywise/internal/merchant"
)

// Service classifies merchants against a category map. Merchant patterns
// take precedence over merchant category codes.
type Service struct {
	entries   []Entry
	byPattern []Entry
	byMCC     map[string]Entry
}

// NewService creates a Service from a slice of entries. Earlier entries win.
func NewService(entries []Entry) *Service {
	s := &Service{entries: entries, byMCC: make(map[string]Entry)}
	for _, e := range entries {
		if e.Pattern != "" {
			s.byPattern = append(s.byPattern, e)
			continue
		}
		if _, dup := s.byMCC[e.MCC]; !dup {
			s.byMCC[e.MCC] = e
		}
	}
	return s
}

// Load reads a category-map CSV from path, or returns the built-in map
// when path is empty.
func Load(path string) (*Service, error) {
	if path == "" {
		return NewService(DefaultMap()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening category map: %w", err)
	}
	defer f.Close()

	entries, err := ReadEntries(f)
	if err != nil {
		return nil, fmt.Errorf("reading category map: %w", err)
	}
	return NewService(entries), nil
}

// All returns every entry.
func (s *Service) All() []Entry {
	return s.entries
}

// Classify returns the classification for a merchant key and optional MCC.
// ok is false when the fallback was used.
func (s *Service) Classify(merchantKey, mcc string) (Classification, bool) {
	for _, e := range s.byPattern {
		if e.MCC != "" && e.MCC != mcc {
			continue
		}
		if merchant.Matches(e.Pattern, merchantKey) {
			return e.classification(), true
		}
	}
	if e, ok := s.byMCC[mcc]; ok && mcc != "" {
		return e.classification(), true
	}
	return Fallback, false
}

func (e Entry) classification() Classification {
	return Classification{Kind: e.Kind, Category: e.Category, Difficulty: e.Difficulty}
}
