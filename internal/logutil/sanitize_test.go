package logutil

import "testing"

func TestSanitizeForLog(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"deploy@build01", "deploy@build01"},
		{"evil\ninjected line", "evil injected line"},
		{"cr\rlf\ntab\t", "cr lf tab "},
		{"bell\x07null\x00", "bellnull"},
		{"", ""},
	}
	for _, c := range cases {
		if got := SanitizeForLog(c.in); got != c.want {
			t.Errorf("SanitizeForLog(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
