package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizePhone canonicalizes a raw phone number to E.164.
//
// Rule (documented here because the provider leaves it open): anything from
// the first extension marker on ("x", "ext", ",") is cut, every non-digit is
// stripped, a single leading trunk "0" is dropped, and a 10-digit national
// number gets defaultCountry prefixed. Numbers that already carry 11 or more
// digits are taken as fully qualified. Returns "" when fewer than 7 digits
// survive.
func NormalizePhone(raw, defaultCountry string) string {
	if raw == "" {
		return ""
	}
	if defaultCountry == "" {
		defaultCountry = "1"
	}

	lower := strings.ToLower(raw)
	for _, marker := range []string{"ext", "x", ","} {
		if idx := strings.Index(lower, marker); idx > 0 {
			lower = lower[:idx]
		}
	}

	var digits strings.Builder
	for _, r := range lower {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	num := digits.String()

	if strings.HasPrefix(num, "0") && len(num) > 1 {
		num = num[1:]
	}
	if len(num) < 7 {
		return ""
	}
	if len(num) == 10 {
		num = defaultCountry + num
	}
	return "+" + num
}

// CallerKey derives the stable caller identity hash from a normalized phone
// number, falling back to the lowercased email when no phone is present.
// Returns "" when neither is usable.
func CallerKey(normalizedPhone, email string) string {
	var seed string
	switch {
	case normalizedPhone != "":
		seed = "tel:" + normalizedPhone
	case strings.TrimSpace(email) != "":
		seed = "mailto:" + strings.ToLower(strings.TrimSpace(email))
	default:
		return ""
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
