package metaleads

import "testing"

func TestToRawFieldsKeepsOrderAndJoinsMultipleValues(t *testing.T) {
	fields := ToRawFields([]FieldDatum{
		{Name: "full_name", Values: []string{"<b>jane</b> doe"}},
		{Name: "services", Values: []string{"roofing", " ", "solar "}},
		{Name: "", Values: []string{"dropped"}},
		{Name: " email ", Values: []string{"jane@example.com"}},
		{Name: "comments", Values: nil},
	})

	want := []struct{ key, value string }{
		{"full_name", "jane doe"},
		{"services", "roofing, solar"},
		{"email", "jane@example.com"},
		{"comments", ""},
	}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(fields))
	}
	for i, w := range want {
		if fields[i].Key != w.key || fields[i].Value != w.value {
			t.Fatalf("field %d: expected %s=%q, got %s=%q", i, w.key, w.value, fields[i].Key, fields[i].Value)
		}
	}
}
