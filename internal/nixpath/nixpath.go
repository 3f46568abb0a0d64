// Package nixpath replicates the handful of NIX_PATH-related rules that
// nix-shell itself uses when deciding how to interpret a relative search
// path entry, so that the invocation driver can detect when it's unsafe to
// canonicalize the working directory for a cache-hit replay.
package nixpath

import "strings"

// uriSchemes are the prefixes that Nix recognizes as identifying a NIX_PATH
// entry's value as a URI rather than a filesystem path, exempting it from
// relative-path rewriting. Mirrors Nix's own download.cc prefix list.
var uriSchemes = []string{
	"channel:",
	"http://",
	"https://",
	"file://",
	"channel://",
	"git://",
	"s3://",
	"ssh://",
}

// IsURI reports whether s begins with one of the schemes Nix treats as a
// remote/URI-style path specification.
func IsURI(s string) bool {
	for _, scheme := range uriSchemes {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

// ParseNixPath splits a NIX_PATH-style colon-separated list into its
// individual entries. A plain strings.Split(s, ":") would be wrong here: in
// an entry like "nixpkgs=https://example.com" the colon after "https" is
// part of a URI value, not a list separator. This walks the string the same
// way Nix's own evaluator does: track the position just after the last '='
// seen in the current entry, and when a colon is reached, check whether the
// text from there onward looks like a URI; if so, treat that first colon as
// part of the scheme and keep scanning for the real separator, which is the
// next colon. So "nixpkgs=https://example.com/foo:bar" yields the two
// entries "nixpkgs=https://example.com/foo" and "bar".
func ParseNixPath(s string) []string {
	var result []string
	n := len(s)
	p := 0
	for p < n {
		start := p
		start2 := p
		for p < n && s[p] != ':' {
			if s[p] == '=' {
				start2 = p + 1
			}
			p++
		}
		if p == n {
			if p != start {
				result = append(result, s[start:p])
			}
			break
		}
		// s[p] == ':'
		if IsURI(s[start2:]) {
			p++
			for p < n && s[p] != ':' {
				p++
			}
		}
		result = append(result, s[start:p])
		if p == n {
			break
		}
		p++
	}
	return result
}

// IsRelative reports whether a NIX_PATH entry's value (either the whole
// entry, for an unnamed entry, or the part after "name=") is a relative
// filesystem path: it doesn't start with "/" and isn't a URI.
func IsRelative(entry string) bool {
	value := entry
	if eq := strings.IndexByte(entry, '='); eq >= 0 {
		value = entry[eq+1:]
	}
	if strings.HasPrefix(value, "/") {
		return false
	}
	return !IsURI(value)
}

// ContainsRelativePaths reports whether the given NIX_PATH environment
// value or any "-I" command-line argument contains a relative filesystem
// path entry. When true, the invocation driver must not rewrite the
// effective working directory for this invocation, since doing so would
// change what the relative entries resolve to.
func ContainsRelativePaths(nixPathEnv string, iArgs []string) bool {
	for _, entry := range ParseNixPath(nixPathEnv) {
		if IsRelative(entry) {
			return true
		}
	}
	for _, arg := range iArgs {
		if IsRelative(arg) {
			return true
		}
	}
	return false
}
