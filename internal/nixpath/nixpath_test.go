package nixpath

import (
	"reflect"
	"testing"
)

func TestParseNixPathSplitsOnPlainColons(t *testing.T) {
	got := ParseNixPath("/a/b:/c/d:nixpkgs=/e/f")
	want := []string{"/a/b", "/c/d", "nixpkgs=/e/f"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseNixPathKeepsURIColonIntact(t *testing.T) {
	got := ParseNixPath("nixpkgs=https://example.com/foo:bar")
	want := []string{"nixpkgs=https://example.com/foo", "bar"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseNixPathMixed(t *testing.T) {
	got := ParseNixPath("/a/b:nixpkgs=https://example.com/foo:bar:/c/d")
	want := []string{"/a/b", "nixpkgs=https://example.com/foo", "bar", "/c/d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseNixPathMatchesReferenceVectors(t *testing.T) {
	cases := []struct {
		input string
		want  []string
	}{
		{"foo:bar:baz", []string{"foo", "bar", "baz"}},
		{"foo:bar=something:baz", []string{"foo", "bar=something", "baz"}},
		{"foo:bar=https://something:baz", []string{"foo", "bar=https://something", "baz"}},
	}
	for _, c := range cases {
		if got := ParseNixPath(c.input); !reflect.DeepEqual(got, c.want) {
			t.Errorf("ParseNixPath(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestIsRelative(t *testing.T) {
	cases := []struct {
		entry string
		want  bool
	}{
		{"/abs/path", false},
		{"relative/path", true},
		{"nixpkgs=/abs/path", false},
		{"nixpkgs=relative/path", true},
		{"nixpkgs=https://example.com/foo", false},
		{"channel:nixpkgs-unstable", false},
		{"", true},
	}
	for _, c := range cases {
		if got := IsRelative(c.entry); got != c.want {
			t.Errorf("IsRelative(%q) = %v, want %v", c.entry, got, c.want)
		}
	}
}

func TestContainsRelativePaths(t *testing.T) {
	if !ContainsRelativePaths("relative/path", nil) {
		t.Error("expected relative NIX_PATH entry to be detected")
	}
	if ContainsRelativePaths("/abs/path", nil) {
		t.Error("did not expect absolute NIX_PATH entry to be flagged")
	}
	if !ContainsRelativePaths("", []string{"relative/path"}) {
		t.Error("expected relative -I argument to be detected")
	}
	if ContainsRelativePaths("", []string{"/abs/path"}) {
		t.Error("did not expect absolute -I argument to be flagged")
	}
}
