package phone

import (
	"errors"
	"fmt"
	"strings"
)

// E.164 allows between 8 and 15 digits including the country code.
const (
	minDigits = 8
	maxDigits = 15
)

// ErrInvalidPhoneNumber indicates input that cannot be a dialable number.
var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// Normalizer canonicalizes phone numbers to E.164 using a configured
// default calling code for numbers given in national format.
type Normalizer struct {
	callingCode string
}

// NewNormalizer creates a normalizer. callingCode is the country calling
// code assumed for numbers that arrive without one (e.g. "1").
func NewNormalizer(callingCode string) *Normalizer {
	return &Normalizer{callingCode: callingCode}
}

// Normalize canonicalizes raw to E.164 form using the configured calling code.
func (n *Normalizer) Normalize(raw string) (string, error) {
	return Normalize(raw, n.callingCode)
}

// Normalize strips formatting from raw and returns the canonical +<digits>
// representation. Numbers without a leading + are assumed to belong to the
// given calling code unless they already start with it. The function is
// idempotent: normalizing an already normalized number is a no-op.
func Normalize(raw, callingCode string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	hasPlus := strings.HasPrefix(trimmed, "+")

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	number := digits.String()
	if number == "" {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidPhoneNumber, raw)
	}

	if !hasPlus && !strings.HasPrefix(number, callingCode) {
		number = callingCode + number
	}

	if len(number) < minDigits || len(number) > maxDigits {
		return "", fmt.Errorf("%w: %q has %d digits, expected %d-%d", ErrInvalidPhoneNumber, raw, len(number), minDigits, maxDigits)
	}

	return "+" + number, nil
}
