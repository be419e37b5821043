package metaleads

import (
	"strings"

	"whitelabel_crm_backend/internal/normalize"
	"whitelabel_crm_backend/platform/sanitize"
)

// multiValueSeparator joins answers of multiple-choice questions.
const multiValueSeparator = ", "

// ToRawFields flattens Graph field data into inbox raw fields, keeping the form order.
// Questions without a name are dropped and answers are stripped of markup.
func ToRawFields(data []FieldDatum) []normalize.RawField {
	fields := make([]normalize.RawField, 0, len(data))
	for _, datum := range data {
		key := strings.TrimSpace(datum.Name)
		if key == "" {
			continue
		}
		values := make([]string, 0, len(datum.Values))
		for _, value := range datum.Values {
			if cleaned := sanitize.Text(value); cleaned != "" {
				values = append(values, cleaned)
			}
		}
		fields = append(fields, normalize.RawField{Key: key, Value: strings.Join(values, multiValueSeparator)})
	}
	return fields
}
