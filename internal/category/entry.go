package category

import "github.com/cleared-dev/pennywise/internal/model"

// Entry is one row of the merchant category map. A row matches on a
// normalized merchant pattern, a merchant category code, or both.
type Entry struct {
	Pattern    string // normalized merchant key pattern, may be empty
	MCC        string // merchant category code, may be empty
	Kind       model.Kind
	Category   string
	Difficulty model.Difficulty
}

// Classification is what the registry receives for a candidate series.
type Classification struct {
	Kind       model.Kind
	Category   string
	Difficulty model.Difficulty
}

// Fallback is returned for merchants the map does not know.
var Fallback = Classification{
	Kind:       model.KindBill,
	Category:   "uncategorized",
	Difficulty: model.DifficultyEasy,
}
