// Package invocation drives the final stage of a cached-nix-shell run:
// normalising the working directory the same way nix-shell would, merging
// the cached environment with the ambient one for impure mode, and execing
// into the selected mode (shebang interpreter, --run, --exec, or an
// interactive shell).
//
// Grounded on spec.md §4.6, with the working-directory rules cross-checked
// against original_source/src/nix_path.rs and src/path_clean.rs (the
// "absolute(dirname(arg))" step is exactly Path::clean's job, which
// filepath.Abs already performs in Go's path/filepath).
package invocation

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/xzfc/cached-nix-shell/internal/bashword"
	"github.com/xzfc/cached-nix-shell/internal/environment"
	"github.com/xzfc/cached-nix-shell/internal/nixpath"
)

// sentinelDir is substituted as the working directory whenever the real
// cwd must not influence evaluation (-p/-E mode, a "<...>" search-path
// lookup, or a URI): a directory guaranteed to exist, be empty, and be
// unwritable, so that nothing in the shell expression can accidentally
// depend on its contents.
const sentinelDir = "/var/empty"

// NormaliseWorkingDirectory replicates nix-shell's own rule for choosing
// the effective working directory an invocation evaluates under, and
// returns the (possibly rewritten) positional argument list to go with it.
func NormaliseWorkingDirectory(cwd, nixPathEnv string, iArgs []string, packagesOrExpr bool, rest []string) (dir string, rewritten []string, err error) {
	if nixpath.ContainsRelativePaths(nixPathEnv, iArgs) {
		return cwd, rest, nil
	}
	if packagesOrExpr {
		return sentinelDir, rest, nil
	}
	if len(rest) == 1 {
		arg := rest[0]
		switch {
		case arg == "":
			return cwd, rest, nil
		case strings.HasPrefix(arg, "<") && strings.HasSuffix(arg, ">"):
			return sentinelDir, rest, nil
		case nixpath.IsURI(arg):
			return sentinelDir, rest, nil
		}
		abs, absErr := filepath.Abs(arg)
		if absErr != nil {
			return "", nil, fmt.Errorf("unable to resolve %q: %w", arg, absErr)
		}
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			return abs, []string{"."}, nil
		}
		return filepath.Dir(abs), []string{"./" + filepath.Base(abs)}, nil
	}
	return cwd, rest, nil
}

// safeShoptOptions and safeSetOptions are the only bash session options
// spec.md permits reconstructing from a cached BASHOPTS/SHELLOPTS pair:
// every other recorded option is discarded rather than blindly replayed,
// since an arbitrary shopt/set option could change how the reconstructed
// command line itself parses.
var safeShoptOptions = map[string]bool{
	"execfail":        true,
	"inherit_errexit": true,
	"nullglob":        true,
}
var safeSetOptions = map[string]bool{
	"pipefail": true,
}

// reconstructBashFlags turns a colon-separated BASHOPTS value and a
// colon-separated SHELLOPTS value into the "-O name"/"-o name" flags that
// reproduce the safe subset of them on a freshly spawned bash.
func reconstructBashFlags(bashOpts, shellOpts string) []string {
	var flags []string
	for _, name := range strings.Split(bashOpts, ":") {
		if safeShoptOptions[name] {
			flags = append(flags, "-O", name)
		}
	}
	for _, name := range strings.Split(shellOpts, ":") {
		if safeSetOptions[name] {
			flags = append(flags, "-o", name)
		}
	}
	return flags
}

// Exec replaces the current process image with name (resolved against
// PATH if it isn't already a path), running argv under env. It never
// returns on success.
func Exec(name string, argv []string, env environment.Map) error {
	resolved, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s: executable not found", name)
	}
	return unix.Exec(resolved, argv, environment.ToEnviron(env))
}

// ExecShebangInterpreter handles the "#! nix-shell -i <interp>" case: if
// interp is a literal bash string (no quoting metacharacters), it's execed
// directly with the script path and trailing user arguments; otherwise a
// bash wrapper is used so that non-literal interpreter specifications
// (e.g. containing arguments of their own) are still split the way bash
// would split them.
func ExecShebangInterpreter(interpreter, script string, userArgs []string, env environment.Map) error {
	if bashword.IsLiteralBashString(interpreter) {
		argv := append([]string{interpreter, script}, userArgs...)
		return Exec(interpreter, argv, env)
	}
	cmd := fmt.Sprintf(`exec %s "$@"`, interpreter)
	argv := append([]string{"bash", "-c", cmd, "cached-nix-shell-bash", script}, userArgs...)
	return Exec("bash", argv, env)
}

// ExecRun handles --run/--command: bash -c <command>, with the safe subset
// of the cached shell options reapplied first.
func ExecRun(command, bashOpts, shellOpts string, env environment.Map) error {
	argv := []string{"bash"}
	argv = append(argv, reconstructBashFlags(bashOpts, shellOpts)...)
	argv = append(argv, "-c", command)
	return Exec("bash", argv, env)
}

// ExecNamed handles --exec: the named command and its (unreparsed) argument
// vector are execed verbatim.
func ExecNamed(command string, args []string, env environment.Map) error {
	argv := append([]string{command}, args...)
	return Exec(command, argv, env)
}

// ExecInteractive handles the default, no-mode-flag case: an interactive
// bash reading rcfile, with the safe cached shell options reapplied.
func ExecInteractive(rcfile, bashOpts, shellOpts string, env environment.Map) error {
	argv := []string{"bash", "--rcfile", rcfile}
	argv = append(argv, reconstructBashFlags(bashOpts, shellOpts)...)
	return Exec("bash", argv, env)
}

// sslVarNames are the SSL bundle variables the pure setup script may have
// pointed at a sandbox-local path; on an impure merge they're stripped so
// they fall through to ambient inheritance instead of pointing nowhere.
var sslVarNames = []string{"CURL_CA_BUNDLE", "GIT_SSL_CAINFO", "NIX_SSL_CERT_FILE", "SSL_CERT_FILE"}

// pathAppendNames are the search-path-style variables that, on an impure
// merge, are colon-appended from the ambient environment rather than
// simply inherited-if-absent: the cached entry and the ambient shell might
// each supply a meaningful, non-overlapping contribution.
var pathAppendNames = []string{"PATH", "HOST_PATH", "XDG_DATA_DIRS"}

// pureReinjectAllowlist are ambient variables re-applied on top of a
// pure-mode environment, because bash and the user's terminal session need
// them to behave normally even inside an otherwise hermetic shell.
var pureReinjectAllowlist = []string{
	"USER", "LOGNAME", "DISPLAY", "WAYLAND_DISPLAY", "WAYLAND_SOCKET",
	"TERM", "NIX_SHELL_PRESERVE_PROMPT", "TZ", "PAGER", "SHLVL",
}

// envPathConcat joins two colon-list values the way bash's "$a:$b" would,
// without producing a spurious leading/trailing colon when either side is
// empty. Grounded on original_source/src/util.rs's env_path_concat.
func envPathConcat(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + string(os.PathListSeparator) + b
	}
}

// MergeImpure merges a cached (pure) environment with the ambient one for
// impure-mode replay: variables absent from the cache are inherited from
// ambient, PATH/HOST_PATH/XDG_DATA_DIRS are colon-appended rather than
// replaced, sandbox-local SSL cert paths are dropped so they fall back to
// ambient inheritance, and IN_NIX_SHELL is set to "impure".
func MergeImpure(cached, ambient environment.Map) environment.Map {
	result := cached.Without(sslVarNames...)

	present := make(map[string]bool, len(result))
	for _, p := range result {
		present[string(p.Key)] = true
	}
	for _, p := range ambient {
		if present[string(p.Key)] {
			continue
		}
		result = result.Set(p.Key, p.Value)
	}

	for _, name := range pathAppendNames {
		av, aok := ambient.GetString(name)
		if !aok {
			continue
		}
		cv, _ := result.GetString(name)
		result = result.Set([]byte(name), []byte(envPathConcat(cv, av)))
	}

	result = result.Set([]byte("IN_NIX_SHELL"), []byte("impure"))
	return result
}

// ApplyPureReinjection re-applies the ambient allow-list on top of a pure
// environment, overriding any cached value for those names. Impure mode
// uses MergeImpure instead.
func ApplyPureReinjection(env, ambient environment.Map) environment.Map {
	result := env
	for _, name := range pureReinjectAllowlist {
		if v, ok := ambient.GetString(name); ok {
			result = result.Set([]byte(name), []byte(v))
		}
	}
	return result
}

// Finalize applies the one variable every mode sets regardless of
// pure/impure status or execution mode: a marker so nested tools (and
// scripts) can detect they're running inside a cached-nix-shell
// environment.
func Finalize(env environment.Map) environment.Map {
	return env.Set([]byte("IN_CACHED_NIX_SHELL"), []byte("1"))
}

// prependPath puts wrapDir at the front of an existing PATH value, without
// producing a spurious leading separator when path is empty.
func prependPath(wrapDir, path string) string {
	if path == "" {
		return wrapDir
	}
	return wrapDir + string(os.PathListSeparator) + path
}

// WrapCommand execs command under an environment whose PATH has wrapDir
// prepended, implementing --wrap's interception semantics. wrapDir is
// expected to come from cache.EnsureWrapDir.
func WrapCommand(command string, args []string, wrapDir string, env environment.Map) error {
	path, _ := env.GetString("PATH")
	wrapped := env.Set([]byte("PATH"), []byte(prependPath(wrapDir, path)))
	return ExecNamed(command, args, wrapped)
}
