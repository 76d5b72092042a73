package category

import "github.com/cleared-dev/pennywise/internal/model"

// DefaultMap returns the built-in category map used when no CSV is configured.
func DefaultMap() []Entry {
	return []Entry{
		// Subscriptions: discretionary recurring services.
		{Pattern: "netflix", Kind: model.KindSubscription, Category: "streaming", Difficulty: model.DifficultyEasy},
		{Pattern: "spotify", Kind: model.KindSubscription, Category: "streaming", Difficulty: model.DifficultyEasy},
		{Pattern: "hulu", Kind: model.KindSubscription, Category: "streaming", Difficulty: model.DifficultyEasy},
		{Pattern: "disney plus", Kind: model.KindSubscription, Category: "streaming", Difficulty: model.DifficultyEasy},
		{Pattern: "youtube premium", Kind: model.KindSubscription, Category: "streaming", Difficulty: model.DifficultyEasy},
		{Pattern: "github", Kind: model.KindSubscription, Category: "software", Difficulty: model.DifficultyEasy},
		{Pattern: "adobe", Kind: model.KindSubscription, Category: "software", Difficulty: model.DifficultyHard},
		{Pattern: "dropbox", Kind: model.KindSubscription, Category: "software", Difficulty: model.DifficultyEasy},
		{Pattern: "planet fitness", Kind: model.KindSubscription, Category: "fitness", Difficulty: model.DifficultyHard},
		{Pattern: "peloton", Kind: model.KindSubscription, Category: "fitness", Difficulty: model.DifficultyModerate},
		{Pattern: "nytimes", Kind: model.KindSubscription, Category: "news", Difficulty: model.DifficultyModerate},
		{MCC: "4899", Kind: model.KindSubscription, Category: "streaming", Difficulty: model.DifficultyEasy},
		{MCC: "5815", Kind: model.KindSubscription, Category: "digital-media", Difficulty: model.DifficultyEasy},
		{MCC: "5968", Kind: model.KindSubscription, Category: "subscription-merchant", Difficulty: model.DifficultyModerate},
		{MCC: "7997", Kind: model.KindSubscription, Category: "fitness", Difficulty: model.DifficultyHard},

		// Bills: obligatory, utility-like.
		{Pattern: "comcast", Kind: model.KindBill, Category: "internet"},
		{Pattern: "verizon", Kind: model.KindBill, Category: "phone"},
		{Pattern: "geico", Kind: model.KindBill, Category: "insurance"},
		{Pattern: "state farm", Kind: model.KindBill, Category: "insurance"},
		{Pattern: "rent", Kind: model.KindBill, Category: "housing"},
		{MCC: "4900", Kind: model.KindBill, Category: "utilities"},
		{MCC: "4814", Kind: model.KindBill, Category: "phone"},
		{MCC: "6300", Kind: model.KindBill, Category: "insurance"},
		{MCC: "6513", Kind: model.KindBill, Category: "housing"},
	}
}
