// Package args classifies the command-line arguments cached-nix-shell
// accepts into the categories that the rest of the program cares about:
// which ones change the derivation being built (and so must participate in
// the cache fingerprint), which ones only change how nix-shell builds it
// (and can be forwarded without busting the cache), and which one selects
// an execution mode (--run, --exec, or, in a shebang, -i).
//
// The option set and its classification mirror nix-shell's own argument
// handling; see nix's src/nix-build/nix-build.cc for the canonical list this
// was derived from.
package args

import (
	"fmt"
	"strings"
)

// Mode identifies which of the mutually exclusive execution modes an
// invocation selected.
type Mode int

const (
	// ModeInteractive starts an interactive shell (the default when no mode
	// flag is given).
	ModeInteractive Mode = iota
	// ModeRun runs a command string under "bash -c" inside the environment
	// (selected by --run or --command).
	ModeRun
	// ModeExec execs a named command with arguments directly, without going
	// through bash (selected by --exec).
	ModeExec
	// ModeShebangInterpreter execs the interpreter named by a shebang
	// script's "-i" argument; only reachable when parsing in shebang mode.
	ModeShebangInterpreter
)

// Args is the result of parsing a cached-nix-shell command line.
type Args struct {
	// Mode selects how the shell environment, once obtained, is used.
	Mode Mode

	// Packages is true when -p/--packages was given: the positional
	// arguments name packages rather than a .nix expression file.
	Packages bool
	// Pure is true unless --impure overrode it; it is the default.
	Pure bool
	// Expr is true when -E/--expr was given: the positional arguments form
	// a Nix expression rather than a file or package list.
	Expr bool

	// Attr holds the value of -A/--attr, if given.
	Attr string
	HasAttr bool

	// Interpreter holds the value of -i (shebang mode only); defaults to
	// "bash" when absent.
	Interpreter string

	// RunCommand holds the command string for --run/--command.
	RunCommand string

	// ExecCommand and ExecArgs hold the command and argument vector for
	// --exec; ExecArgs is the literal, unreparsed tail that followed it.
	ExecCommand string
	ExecArgs    []string

	// Keep lists the names requested by one or more --keep flags: ambient
	// environment variables to preserve into the pure environment.
	Keep []string

	// IArgs lists the values of -I flags, in order.
	IArgs []string

	// Rest holds the positional arguments: packages, attribute paths, or a
	// file/expression, depending on Packages/Expr.
	Rest []string

	// Strong holds every strong argument and its value(s), flattened in
	// encounter order, in the exact textual form nix-shell expects on its
	// own command line. These participate in the cache fingerprint.
	Strong []string

	// Weak holds every weak argument and its value(s), flattened the same
	// way. These are forwarded to nix-shell but excluded from the
	// fingerprint: they affect how a derivation is realised, not which
	// derivation it is.
	Weak []string
}

// strongFlags0 are strong options that take no value.
var strongFlags0 = map[string]bool{
	"--pure":     true,
	"--impure":   true,
	"-p":         true,
	"--packages": true,
	"-E":         true,
	"--expr":     true,
}

// strongFlags1 are strong options that consume exactly one following
// argument.
var strongFlags1 = map[string]bool{
	"-A":      true,
	"--attr":  true,
	"-I":      true,
	"--keep":  true,
}

// strongFlags2 are strong options that consume exactly two following
// arguments.
var strongFlags2 = map[string]bool{
	"--arg":    true,
	"--argstr": true,
}

// weakFlags0 are weak options that take no value.
var weakFlags0 = map[string]bool{
	"--fallback":       true,
	"-K":               true,
	"--keep-failed":    true,
	"-k":               true,
	"--keep-going":     true,
	"--no-build-hook":  true,
	"-Q":               true,
	"--no-build-output": true,
	"--quiet":          true,
	"--repair":         true,
	"--show-trace":     true,
	"-v":               true,
	"--verbose":        true,
}

// weakFlags1 are weak options that consume exactly one following argument.
var weakFlags1 = map[string]bool{
	"--cores":          true,
	"-j":               true,
	"--max-jobs":       true,
	"--max-silent-time": true,
	"--timeout":        true,
}

// weakFlags2 are weak options that consume exactly two following arguments.
var weakFlags2 = map[string]bool{
	"--option": true,
}

// shortFlagLetters maps every single-letter short option (from every
// category above, plus -i) to the flag token expandShort emits when
// splitting a concatenated run like "-pj16". A run that contains a letter
// not listed here (before any value-taking flag) is not split at all.
var shortFlagLetters = map[byte]string{
	'p': "-p",
	'E': "-E",
	'A': "-A",
	'I': "-I",
	'K': "-K",
	'k': "-k",
	'Q': "-Q",
	'v': "-v",
	'j': "-j",
	'i': "-i",
}

// expandShort expands a concatenated short-option run such as "-pj16" into
// its separate tokens ("-p", "-j", "16"), left-to-right: each letter is
// resolved to its own flag, and as soon as a value-taking flag is hit, the
// remainder of the string (if any) is taken whole as that flag's value
// rather than being scanned for more letters. A bare "-", a "--" token, or a
// token with an unrecognised letter before its first value-taking flag is
// returned unchanged.
func expandShort(tok string) []string {
	if len(tok) < 2 || tok[0] != '-' || tok[1] == '-' {
		return []string{tok}
	}
	var out []string
	body := tok[1:]
	for i := 0; i < len(body); i++ {
		long, ok := shortFlagLetters[body[i]]
		if !ok {
			// Not a letter we recognise as a short flag; give up on
			// decomposing this token and pass it through untouched so the
			// classifier can report it as an error.
			return []string{tok}
		}
		out = append(out, long)
		if takesValue(long) {
			rest := body[i+1:]
			if rest != "" {
				out = append(out, rest)
			}
			return out
		}
	}
	return out
}

func takesValue(flag string) bool {
	return strongFlags1[flag] || strongFlags2[flag] || weakFlags1[flag] || weakFlags2[flag] || flag == "-i"
}

// Parse classifies argv (which should not include argv[0]) into an Args
// value. inShebang selects whether "-i" (interpreter mode) is recognised
// and "--run"/"--command"/"--exec" are not, matching how a shebang line is
// restricted to the options that make sense embedded in a script.
func Parse(argv []string, inShebang bool) (*Args, error) {
	res := &Args{
		Pure:        true,
		Interpreter: "bash",
	}

	// --exec's own tail is a literal argv for the command it names and must
	// never be re-parsed (not even short-option expansion): find it in the
	// raw argv first and only short-expand the prefix before it, leaving
	// "--exec" itself and everything after it untouched.
	prefixEnd := len(argv)
	if !inShebang {
		for idx, tok := range argv {
			if tok == "--exec" {
				prefixEnd = idx
				break
			}
		}
	}

	var expanded []string
	for _, tok := range argv[:prefixEnd] {
		if strings.HasPrefix(tok, "-") && !strings.HasPrefix(tok, "--") && len(tok) > 2 {
			expanded = append(expanded, expandShort(tok)...)
		} else {
			expanded = append(expanded, tok)
		}
	}
	expanded = append(expanded, argv[prefixEnd:]...)

	i := 0
	next := func(flag string) (string, error) {
		i++
		if i >= len(expanded) {
			return "", fmt.Errorf("flag %q requires an argument", flag)
		}
		return expanded[i], nil
	}

	for ; i < len(expanded); i++ {
		tok := expanded[i]

		switch {
		case tok == "--":
			res.Rest = append(res.Rest, expanded[i+1:]...)
			i = len(expanded)

		case tok == "--exec" && !inShebang:
			v, err := next(tok)
			if err != nil {
				return nil, err
			}
			res.Mode = ModeExec
			res.ExecCommand = v
			res.ExecArgs = append([]string(nil), expanded[i+1:]...)
			i = len(expanded)

		case (tok == "--run" || tok == "--command") && !inShebang:
			v, err := next(tok)
			if err != nil {
				return nil, err
			}
			res.Mode = ModeRun
			res.RunCommand = v

		case tok == "-i" && inShebang:
			v, err := next(tok)
			if err != nil {
				return nil, err
			}
			res.Mode = ModeShebangInterpreter
			res.Interpreter = v

		case tok == "--pure":
			res.Pure = true
			res.Strong = append(res.Strong, tok)
		case tok == "--impure":
			res.Pure = false
			res.Strong = append(res.Strong, tok)
		case tok == "-p" || tok == "--packages":
			res.Packages = true
			res.Strong = append(res.Strong, tok)
		case tok == "-E" || tok == "--expr":
			res.Expr = true
			res.Strong = append(res.Strong, tok)

		case tok == "-A" || tok == "--attr":
			v, err := next(tok)
			if err != nil {
				return nil, err
			}
			res.Attr = v
			res.HasAttr = true
			res.Strong = append(res.Strong, tok, v)
		case tok == "-I":
			v, err := next(tok)
			if err != nil {
				return nil, err
			}
			res.IArgs = append(res.IArgs, v)
			res.Strong = append(res.Strong, tok, v)
		case tok == "--keep":
			v, err := next(tok)
			if err != nil {
				return nil, err
			}
			res.Keep = append(res.Keep, v)
			res.Strong = append(res.Strong, tok, v)

		case tok == "--arg" || tok == "--argstr":
			name, err := next(tok)
			if err != nil {
				return nil, err
			}
			value, err := next(tok)
			if err != nil {
				return nil, err
			}
			res.Strong = append(res.Strong, tok, name, value)

		case weakFlags0[tok]:
			res.Weak = append(res.Weak, tok)
		case weakFlags1[tok]:
			v, err := next(tok)
			if err != nil {
				return nil, err
			}
			res.Weak = append(res.Weak, tok, v)
		case weakFlags2[tok]:
			a, err := next(tok)
			if err != nil {
				return nil, err
			}
			b, err := next(tok)
			if err != nil {
				return nil, err
			}
			res.Weak = append(res.Weak, tok, a, b)

		case strings.HasPrefix(tok, "-"):
			return nil, fmt.Errorf("unexpected argument %q", tok)

		default:
			res.Rest = append(res.Rest, tok)
		}
	}

	return res, nil
}
