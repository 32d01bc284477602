package dispatch

import (
	"fmt"
	"strings"
)

// userSuffix is the platform domain appended to individual recipient
// addresses on the wire.
const userSuffix = "@c.us"

// digitsOf strips every non-digit character from raw.
func digitsOf(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize converts a raw user-supplied phone number into the wire
// address consumed by the messaging client: digits only, platform suffix
// appended. Normalization is idempotent; a number with no digits at all
// is rejected.
func Normalize(raw string) (string, error) {
	digits := digitsOf(raw)
	if digits == "" {
		return "", fmt.Errorf("%w: number %q has no digits", ErrInvalidRequest, raw)
	}
	return digits + userSuffix, nil
}
