// Package phone provides phone number canonicalization utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	countryCode    = "55"
	mobileDigit    = "9"
	fallbackRegion = "BR"
)

// Flag classifies how confident canonicalization is about its result.
type Flag string

const (
	// FlagOK means the input matched one of the known shapes.
	FlagOK Flag = "ok"
	// FlagAmbiguous means the input has no area code and one could not be
	// inferred; the returned key is best-effort.
	FlagAmbiguous Flag = "ambiguous_length"
	// FlagUnexpected means the input length matched no known shape; the
	// returned key is best-effort.
	FlagUnexpected Flag = "unexpected_length"
)

// Canonical returns the canonical join key for a raw phone string.
// It is the single source of truth for join-key equality across the
// pipeline; two callers computing it on the same input always agree.
func Canonical(raw string) string {
	key, _ := CanonicalWithFlag(raw)
	return key
}

// CanonicalWithFlag canonicalizes a raw phone string and reports whether
// the input matched a known shape. It never fails: unknown shapes yield a
// best-effort key plus a non-ok flag for observability.
//
// Target shape: +55 <2-digit area> 9 <8 digits>.
func CanonicalWithFlag(raw string) (string, Flag) {
	// Transport suffixes (e.g. messaging-network addresses like
	// "5531...@s.whatsapp.net") must go before digit stripping because the
	// suffix itself may contain digits.
	trimmed := strings.TrimSpace(raw)
	if at := strings.IndexByte(trimmed, '@'); at >= 0 {
		trimmed = trimmed[:at]
	}

	digits := stripNonDigits(trimmed)
	digits = strings.TrimLeft(digits, "0")

	switch {
	case len(digits) == 10:
		// Area code present, mobile-prefix digit missing.
		return "+" + countryCode + digits[:2] + mobileDigit + digits[2:], FlagOK
	case len(digits) == 11:
		// Area code and mobile-prefix digit present.
		return "+" + countryCode + digits, FlagOK
	case len(digits) == 12 && strings.HasPrefix(digits, countryCode):
		// Country code present, mobile-prefix digit missing.
		return "+" + digits[:4] + mobileDigit + digits[4:], FlagOK
	case len(digits) == 13 && strings.HasPrefix(digits, countryCode):
		return "+" + digits, FlagOK
	case len(digits) == 8 || len(digits) == 9:
		// No area code and no way to infer one.
		return bestEffort(trimmed, digits), FlagAmbiguous
	default:
		return bestEffort(trimmed, digits), FlagUnexpected
	}
}

// bestEffort asks the phonenumbers library for a parse before giving up on
// shaping the number ourselves. The result is still deterministic.
func bestEffort(trimmed, digits string) string {
	if parsed, err := phonenumbers.Parse(trimmed, fallbackRegion); err == nil {
		if phonenumbers.IsValidNumber(parsed) {
			return phonenumbers.Format(parsed, phonenumbers.E164)
		}
	}
	if digits == "" {
		return ""
	}
	if len(digits) > 11 && strings.HasPrefix(digits, countryCode) {
		return "+" + digits
	}
	return "+" + countryCode + digits
}

func stripNonDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
