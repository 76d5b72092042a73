package id

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// namespace scopes name-based transaction ids.
var namespace = uuid.MustParse("6f1c8a2e-3b0d-4c55-9a57-0d2f7b1e4c90")

// New returns a random record id.
func New() string {
	return uuid.NewString()
}

// TransactionID derives a stable id for an imported row so re-importing the
// same file does not create duplicates. seq disambiguates identical rows.
func TransactionID(source, userID, date, description, amount string, seq int) string {
	name := strings.Join([]string{source, userID, date, description, amount, fmt.Sprint(seq)}, "|")
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// BatchKey returns the idempotency key for a set of round-up ids.
// The key does not depend on the order ids are given in.
func BatchKey(roundUpIDs []string) string {
	sorted := slices.Clone(roundUpIDs)
	slices.Sort(sorted)
	h := sha256.New()
	for _, rid := range sorted {
		h.Write([]byte(rid))
		h.Write([]byte{0})
	}
	return "batch_" + hex.EncodeToString(h.Sum(nil))[:32]
}

// IsBatchKey reports whether s looks like a key produced by BatchKey.
func IsBatchKey(s string) bool {
	rest, ok := strings.CutPrefix(s, "batch_")
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}
