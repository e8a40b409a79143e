// Package msisdn normalizes Ghanaian phone numbers to the international
// 233-prefixed form used on the gateway wire and in stored records.
package msisdn

import (
	"errors"
	"strings"
)

const countryPrefix = "233"

var ErrInvalid = errors.New("msisdn: not a valid Ghanaian number")

// Normalize converts a local (0XXXXXXXXX) or international (233XXXXXXXXX)
// number to 233XXXXXXXXX. Spaces, dashes and a leading + are tolerated.
func Normalize(raw string) (string, error) {
	var b strings.Builder

	for _, r := range strings.TrimPrefix(strings.TrimSpace(raw), "+") {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			// separators are dropped
		default:
			return "", ErrInvalid
		}
	}

	digits := b.String()

	switch {
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		return countryPrefix + digits[1:], nil
	case len(digits) == 12 && strings.HasPrefix(digits, countryPrefix):
		return digits, nil
	case len(digits) == 9:
		return countryPrefix + digits, nil
	}

	return "", ErrInvalid
}

// Valid reports whether raw normalizes cleanly.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}
