// Package merchant turns raw aggregator merchant strings into stable keys.
package merchant

import (
	"slices"
	"strings"
	"unicode"
)

// minMergeLen keeps very short keys from swallowing unrelated merchants
// through substring matches.
const minMergeLen = 4

// noise are tokens aggregators prepend or append that carry no identity.
var noise = map[string]bool{
	"pos":       true,
	"debit":     true,
	"purchase":  true,
	"recurring": true,
	"payment":   true,
	"ach":       true,
	"autopay":   true,
	"card":      true,
	"sq":        true,
	"tst":       true,
	"paypal":    true,
	"www":       true,
	"com":       true,
	"inc":       true,
	"llc":       true,
}

// Normalize lower-cases a merchant name, strips punctuation, store numbers
// and processor noise, and collapses whitespace.
func Normalize(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if noise[f] || isNumberish(f) {
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		// Everything was noise; fall back to the raw letters so the
		// transaction still lands in some partition.
		return strings.Join(fields, " ")
	}
	return strings.Join(kept, " ")
}

// isNumberish reports tokens made mostly of digits (store ids, dates, refs).
func isNumberish(tok string) bool {
	digits := 0
	for _, r := range tok {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits > 0 && digits*2 >= len(tok)
}

// Collapse maps each normalized key to a canonical key, merging spellings
// where one key is a prefix or substring of another. The shortest key of a
// group wins. Output does not depend on input order.
func Collapse(keys []string) map[string]string {
	uniq := slices.Clone(keys)
	slices.SortFunc(uniq, func(a, b string) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		return strings.Compare(a, b)
	})
	uniq = slices.Compact(uniq)

	canonical := make(map[string]string, len(uniq))
	var roots []string
	for _, k := range uniq {
		root := k
		for _, r := range roots {
			if Matches(r, k) {
				root = r
				break
			}
		}
		if root == k {
			roots = append(roots, k)
		}
		canonical[k] = root
	}
	return canonical
}

// Matches reports whether two normalized keys name the same merchant.
func Matches(a, b string) bool {
	if a == b {
		return a != ""
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) < minMergeLen {
		return false
	}
	if strings.HasPrefix(long, short) {
		return true
	}
	// Substring matches must align on a word boundary so "ups" does not
	// match "groups".
	return containsWord(long, short)
}

func containsWord(s, sub string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], sub)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(sub)
		if (start == 0 || s[start-1] == ' ') && (end == len(s) || s[end] == ' ') {
			return true
		}
		i = start + 1
	}
}
