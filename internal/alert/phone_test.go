package alert

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+15550001111", "+15550001111", false},
		{"+1 (555) 000-1111", "+15550001111", false},
		{"0049 30 1234567", "+49301234567", false},
		{"+49.30.123.4567", "+49301234567", false},
		{"5550001111", "", true},     // no country prefix
		{"+1555", "", true},          // too short
		{"+1234567890123456", "", true}, // too long
		{"call-me-maybe", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := NormalizePhone(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("NormalizePhone(%q) = %q, want error", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizePhone(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
