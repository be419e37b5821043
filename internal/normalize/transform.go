// Package normalize turns raw lead form answers into a contact payload.
// Everything here is pure: no I/O, no shared mutable state.
package normalize

import (
	"strings"

	"whitelabel_crm_backend/platform/phone"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Transform identifies a value normalization applied to a mapped field.
type Transform string

const (
	TransformIdentity       Transform = ""
	TransformPhoneE164      Transform = "phone_e164"
	TransformPhoneNational  Transform = "phone_national"
	TransformLowercase      Transform = "lowercase"
	TransformUppercase      Transform = "uppercase"
	TransformTrim           Transform = "trim"
	TransformNameCapitalize Transform = "name_capitalize"
)

var knownTransforms = map[Transform]struct{}{
	TransformIdentity:       {},
	TransformPhoneE164:      {},
	TransformPhoneNational:  {},
	TransformLowercase:      {},
	TransformUppercase:      {},
	TransformTrim:           {},
	TransformNameCapitalize: {},
}

// IsKnownTransform reports whether value names a supported transform.
func IsKnownTransform(value string) bool {
	_, ok := knownTransforms[Transform(value)]
	return ok
}

// Engine applies transforms. The zero value parses national phone numbers as US numbers.
type Engine struct {
	phoneRegion string
}

// NewEngine returns an engine that parses phone numbers without a country code in region.
func NewEngine(phoneRegion string) Engine {
	return Engine{phoneRegion: strings.ToUpper(strings.TrimSpace(phoneRegion))}
}

// Apply returns value normalized by transform. It never fails: input a transform
// cannot handle, and unknown transforms, come back unchanged.
func (e Engine) Apply(transform Transform, value string) string {
	switch transform {
	case TransformPhoneE164:
		return phone.NormalizeE164(value, e.phoneRegion)
	case TransformPhoneNational:
		return phone.FormatNational(value, e.phoneRegion)
	case TransformLowercase:
		return strings.ToLower(value)
	case TransformUppercase:
		return strings.ToUpper(value)
	case TransformTrim:
		return strings.TrimSpace(value)
	case TransformNameCapitalize:
		return capitalizeName(value)
	default:
		return value
	}
}

// capitalizeName title-cases each whitespace separated token. A Caser is stateful,
// so one is built per call.
func capitalizeName(value string) string {
	return cases.Title(language.Und).String(value)
}
