package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		input  string
		region string
		want   string
	}{
		{input: "(201) 555-0123", region: "", want: "+12015550123"},
		{input: "06 12345678", region: "nl", want: "+31612345678"},
		{input: "+44 121 234 5678", region: "US", want: "+441212345678"},
		{input: "not a number", region: "US", want: "not a number"},
		{input: "  ", region: "US", want: "  "},
	}

	for _, tc := range cases {
		if got := NormalizeE164(tc.input, tc.region); got != tc.want {
			t.Fatalf("NormalizeE164(%q, %q) = %q, want %q", tc.input, tc.region, got, tc.want)
		}
	}
}

func TestFormatNational(t *testing.T) {
	if got := FormatNational("+12015550123", "US"); got != "(201) 555-0123" {
		t.Fatalf("unexpected national format %q", got)
	}
}
