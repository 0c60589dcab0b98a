package mpesa

import (
	"errors"
	"regexp"
	"strings"
)

var kenyanPhone = regexp.MustCompile(`^254[17]\d{8}$`)

var ErrInvalidPhone = errors.New("invalid phone number, use 0712345678 or 254712345678")

// NormalizePhone rewrites a Kenyan mobile number to the 254XXXXXXXXX form
// Daraja requires. National format (07.../01...) gets its leading zero
// replaced with the country code; a bare subscriber number gets the
// country code prepended. Anything that does not end up as a valid
// Safaricom-style MSISDN is rejected before a gateway call is made.
func NormalizePhone(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	normalized := digits.String()
	switch {
	case strings.HasPrefix(normalized, "0"):
		normalized = "254" + normalized[1:]
	case !strings.HasPrefix(normalized, "254"):
		normalized = "254" + normalized
	}

	if !kenyanPhone.MatchString(normalized) {
		return "", ErrInvalidPhone
	}

	return normalized, nil
}
