package normalize

import (
	"strings"
)

// ContactPayload holds normalized values keyed by contact field.
type ContactPayload map[ContactField]string

// Get returns the value for field, or "" when it was not mapped.
func (p ContactPayload) Get(field ContactField) string {
	return p[field]
}

// Normalizer applies field mappings and transforms to raw form answers.
type Normalizer struct {
	engine Engine
}

// NewNormalizer creates a normalizer that uses engine for every mapped value.
func NewNormalizer(engine Engine) *Normalizer {
	return &Normalizer{engine: engine}
}

// Normalize maps raw into a contact payload. Raw fields are processed in order, so when
// two keys map to the same contact field the later one wins. Fields with no mapping,
// or with a mapping that has no target, come back as "key: value" lines in the notes.
func (n *Normalizer) Normalize(raw []RawField, mappings []Mapping) (ContactPayload, string) {
	byKey := make(map[string]Mapping, len(mappings))
	for _, m := range mappings {
		byKey[m.SourceFieldKey] = m
	}

	payload := make(ContactPayload)
	var notes []string

	for _, field := range raw {
		mapping, ok := byKey[field.Key]
		if !ok || mapping.TargetField == "" {
			notes = append(notes, field.Key+": "+field.Value)
			continue
		}
		payload[mapping.TargetField] = n.engine.Apply(mapping.Transform, field.Value)
	}

	return payload, strings.Join(notes, "\n")
}

// ContactNotes combines a mapped notes value with the unmapped field lines.
func ContactNotes(payload ContactPayload, unmappedNotes string) string {
	mapped := strings.TrimSpace(payload.Get(FieldNotes))
	switch {
	case mapped == "":
		return unmappedNotes
	case unmappedNotes == "":
		return mapped
	default:
		return mapped + "\n\n" + unmappedNotes
	}
}
