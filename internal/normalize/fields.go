package normalize

// ContactField is one of the fixed internal contact attributes a form field can map to.
type ContactField string

const (
	FieldFirstName ContactField = "first_name"
	FieldLastName  ContactField = "last_name"
	FieldFullName  ContactField = "full_name"
	FieldEmail     ContactField = "email"
	FieldPhone     ContactField = "phone"
	FieldCompany   ContactField = "company"
	FieldJobTitle  ContactField = "job_title"
	FieldStreet    ContactField = "street"
	FieldCity      ContactField = "city"
	FieldZipCode   ContactField = "zip_code"
	FieldState     ContactField = "state"
	FieldCountry   ContactField = "country"
	FieldWebsite   ContactField = "website"
	FieldNotes     ContactField = "notes"
)

var contactFields = map[ContactField]struct{}{
	FieldFirstName: {},
	FieldLastName:  {},
	FieldFullName:  {},
	FieldEmail:     {},
	FieldPhone:     {},
	FieldCompany:   {},
	FieldJobTitle:  {},
	FieldStreet:    {},
	FieldCity:      {},
	FieldZipCode:   {},
	FieldState:     {},
	FieldCountry:   {},
	FieldWebsite:   {},
	FieldNotes:     {},
}

// IsContactField reports whether value is one of the internal contact fields.
func IsContactField(value string) bool {
	_, ok := contactFields[ContactField(value)]
	return ok
}

// RawField is one answer from a platform lead form, kept in submission order.
type RawField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Mapping routes one form field key to a contact field. An empty TargetField leaves
// the field unmapped so it ends up in the notes.
type Mapping struct {
	SourceFieldKey string
	TargetField    ContactField
	Transform      Transform
}
