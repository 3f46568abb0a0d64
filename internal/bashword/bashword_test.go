package bashword

import "testing"

func TestIsLiteralBashString(t *testing.T) {
	cases := []struct {
		s    string
		want bool
	}{
		{"", true},
		{"bash", true},
		{"/bin/bash", true},
		{"foo bar", false},
		{"foo$bar", false},
		{"foo\\bar", false},
		{"-x", false},
		{"#comment", false},
		{"~expand", false},
		{"FOO=~bar", false},
		{"PATH:~other", false},
		{"FOO=bar", true},
	}
	for _, c := range cases {
		if got := IsLiteralBashString(c.s); got != c.want {
			t.Errorf("IsLiteralBashString(%q) = %v, want %v", c.s, got, c.want)
		}
	}
}

func TestQuote(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"simple", "'simple'"},
		{"", "''"},
		{"it's", `'it'\''s'`},
		{"a'b'c", `'a'\''b'\''c'`},
	}
	for _, c := range cases {
		if got := Quote(c.in); got != c.want {
			t.Errorf("Quote(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
