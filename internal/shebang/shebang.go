// Package shebang extracts the cached-nix-shell argument vector embedded in
// a script's "#!" line(s), the same way nix-shell itself does: by scanning
// every line of the file (not just the first) for a "#! nix-shell ARGS"
// directive and concatenating the word-split ARGS from each match.
//
// Reference: nix's src/nix-build/nix-build.cc parseContent()/parseScript().
package shebang

import (
	"bufio"
	"io"
	"os"
	"regexp"

	"github.com/google/shlex"
)

// directive matches a "#! nix-shell ARGS" line: optional whitespace after
// the "#!", then the literal "nix-shell", a single space, then the rest of
// the line verbatim (shell-word-split separately).
var directive = regexp.MustCompile(`^#!\s*nix-shell (.*)$`)

// Parse reads fname and, if its first line is a shebang line, returns the
// concatenated, word-split arguments from every "#! nix-shell ..." line
// found anywhere in the file. It returns (nil, nil) if the file doesn't
// exist or doesn't begin with "#!" (i.e. it isn't a script cached-nix-shell
// should interpret as one of its own shebang invocations).
func Parse(fname string) ([]string, error) {
	f, err := os.Open(fname)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseReader(f)
}

// ParseReader implements Parse's logic over an already-open reader, so
// callers that already have the file open (or want to test against a
// string) don't need to go through the filesystem.
func ParseReader(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	// Scripts can have long interpolated "#! nix-shell" lines (e.g. multiple
	// -p package names); grow well past bufio.Scanner's 64KiB default.
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	if !scanner.Scan() {
		return nil, scanner.Err()
	}
	first := scanner.Text()
	if len(first) < 2 || first[0] != '#' || first[1] != '!' {
		return nil, nil
	}

	var result []string
	for scanner.Scan() {
		line := scanner.Text()
		m := directive.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		words, err := shlex.Split(m[1])
		if err != nil {
			continue
		}
		result = append(result, words...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
