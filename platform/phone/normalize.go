// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a caller does not supply one.
const DefaultRegion = "US"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the input unchanged.
func NormalizeE164(input, region string) string {
	return format(input, region, phonenumbers.E164)
}

// FormatNational formats a phone number the way it is dialled inside its own country.
// If parsing fails, it returns the input unchanged.
func FormatNational(input, region string) string {
	return format(input, region, phonenumbers.NATIONAL)
}

func format(input, region string, style phonenumbers.PhoneNumberFormat) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return input
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return input
	}

	if !phonenumbers.IsValidNumber(number) {
		return input
	}

	return phonenumbers.Format(number, style)
}
