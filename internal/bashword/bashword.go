// Package bashword implements the small amount of bash-quoting logic
// cached-nix-shell needs: detecting when a string can be handed to bash
// verbatim (no quoting metacharacters, no expansions) and quoting arbitrary
// strings for safe inclusion in a constructed shell command line.
package bashword

import "strings"

// specialBytes are characters that, if present anywhere in a candidate
// string, make it unsafe to treat as a literal (unexpanded) bash word:
// whitespace, quoting characters, and shell metacharacters that could
// trigger globbing, substitution, or command separation.
const specialBytes = "\t\n !\"$&'()*,;<>?[\\]^`{|}"

// IsLiteralBashString reports whether command would be interpreted by bash
// exactly as written: no word-splitting, no glob expansion, no variable or
// command substitution. This is used to decide whether a shebang script's
// interpreter line (or a --run argument) can be embedded directly into a
// generated shell command without requoting it.
func IsLiteralBashString(command string) bool {
	if command == "" {
		return true
	}
	if strings.ContainsAny(command, specialBytes) {
		return false
	}
	// A leading '#', '-', or '~' changes meaning in ways the above
	// character scan can't catch: '#' starts a comment, '-' can be parsed
	// as an option by whatever consumes the word, and '~' triggers tilde
	// expansion at the start of a word.
	switch command[0] {
	case '#', '-', '~':
		return false
	}
	// A ':' or '=' immediately followed by '~' also triggers tilde
	// expansion in bash (e.g. in "FOO=~bar" or "PATH=~/bin:~other"), even
	// though neither character is itself in specialBytes.
	for i := 0; i+1 < len(command); i++ {
		if (command[i] == ':' || command[i] == '=') && command[i+1] == '~' {
			return false
		}
	}
	return true
}

// Quote wraps arg in single quotes, escaping any embedded single quote as
// '\'' (close quote, escaped literal quote, reopen quote) so that the
// result can be embedded in a shell command line and will always expand
// back to exactly arg.
func Quote(arg string) string {
	var b strings.Builder
	b.WriteByte('\'')
	b.WriteString(strings.ReplaceAll(arg, "'", `'\''`))
	b.WriteByte('\'')
	return b.String()
}
