package locale

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want Locale
	}{
		{"", Chinese},
		{"zh-CN", Chinese},
		{"zh", Chinese},
		{"en-US", English},
		{"en-GB", English},
		{"en-US,en;q=0.9", English},
		{"not a tag!!", Chinese},
	}
	for _, tc := range tests {
		if got := Parse(tc.raw); got != tc.want {
			t.Fatalf("Parse(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestStringIsCanonical(t *testing.T) {
	if got := English.String(); got != "en-US" {
		t.Fatalf("expected en-US, got %q", got)
	}
	if got := Locale(9).String(); got != Chinese.String() {
		t.Fatalf("expected out-of-range to fall back to chinese, got %q", got)
	}
}
