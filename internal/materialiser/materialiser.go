// Package materialiser obtains a fresh shell environment on a cache miss:
// it builds the minimal, whitelisted environment nix-shell is spawned
// under, runs it with the filesystem tracer attached, and resolves the
// resulting derivation path.
//
// Grounded on spec.md §4.5 and, for the strip-on-dump list, on
// original_source/src/main.rs's get_shell_env IGNORED variable list.
package materialiser

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/xzfc/cached-nix-shell/internal/bashword"
	"github.com/xzfc/cached-nix-shell/internal/environment"
	"github.com/xzfc/cached-nix-shell/internal/trace"
	"github.com/xzfc/cached-nix-shell/pkg/logging"
	"github.com/xzfc/cached-nix-shell/pkg/must"
	"github.com/xzfc/cached-nix-shell/pkg/process"
)

// whitelistNames are the ambient variables passed through verbatim into
// the pure environment nix-shell is spawned under.
var whitelistNames = []string{
	"HOME", "NIX_PATH", "TMPDIR", "XDG_RUNTIME_DIR",
	"CURL_CA_BUNDLE", "GIT_SSL_CAINFO", "NIX_SSL_CERT_FILE", "SSL_CERT_FILE",
	"http_proxy", "https_proxy", "ftp_proxy", "all_proxy", "no_proxy",
}

// requiredPathBinaries: a PATH entry is kept only if its directory name
// suggests it holds one of these, since fetchTarball-driven builds need a
// working tar/gzip/git on PATH even in an otherwise pure environment.
var requiredPathBinaries = []string{"tar", "gzip", "git"}

// dumpStripNames are variables present in the raw `env -0` dump that must
// not leak into the cached environment: the bash session bookkeeping
// spec.md names (OLDPWD, PWD, SHLVL, _) plus the build-session variables
// nix-shell/nix-build inject fresh on every invocation (so caching their
// old values would be both useless and wrong).
var dumpStripNames = []string{
	"OLDPWD", "PWD", "SHLVL", "_",
	"NIX_BUILD_TOP", "TMPDIR", "TEMPDIR", "TMP", "TEMP",
	"NIX_STORE", "NIX_BUILD_CORES",
}

// Result is everything a successful materialisation yields.
type Result struct {
	// Env is the cacheable shell environment: the raw dump with the
	// session/build bookkeeping variables removed. It still contains
	// BASHOPTS/SHELLOPTS so that a future cache hit can recover them; the
	// invocation driver is responsible for stripping them from what
	// actually reaches the user's shell.
	Env environment.Map
	// BashOpts and ShellOpts hold the extracted `shopt`/`set` state so the
	// invocation driver can reconstruct the safe subset of them for this
	// invocation without round-tripping through Env.
	BashOpts  string
	ShellOpts string
	// Trace is the filesystem observation log recorded during evaluation.
	Trace *trace.Trace
	// DrvPath is the resolved store path of the shell derivation.
	DrvPath string
}

// BuildPureEnv assembles the minimal environment nix-shell is spawned
// under from the ambient environment: the fixed whitelist, a
// recursion-filtered PATH, and any variables explicitly requested via
// --keep.
func BuildPureEnv(ambient environment.Map, keep []string) environment.Map {
	var result environment.Map
	for _, name := range whitelistNames {
		if v, ok := ambient.GetString(name); ok {
			result = result.Set([]byte(name), []byte(v))
		}
	}
	if v, ok := ambient.GetString("PATH"); ok {
		if filtered := filterPath(v); filtered != "" {
			result = result.Set([]byte("PATH"), []byte(filtered))
		}
	}
	for _, name := range keep {
		if v, ok := ambient.GetString(name); ok {
			result = result.Set([]byte(name), []byte(v))
		}
	}
	return result
}

// filterPath reduces ambientPath to the entries that plausibly provide one
// of the binaries fetchTarball needs, dropping any entry whose "nix-shell"
// resolves back to this very executable (which would otherwise recurse
// forever under --wrap).
func filterPath(ambientPath string) string {
	selfExe, _ := os.Executable()
	var selfResolved string
	if selfExe != "" {
		if r, err := filepath.EvalSymlinks(selfExe); err == nil {
			selfResolved = r
		}
	}

	var kept []string
	for _, entry := range filepath.SplitList(ambientPath) {
		if entry == "" {
			continue
		}
		if !containsAny(entry, requiredPathBinaries) {
			continue
		}
		if selfResolved != "" && resolvesToSelf(entry, selfResolved) {
			continue
		}
		kept = append(kept, entry)
	}
	return strings.Join(kept, string(os.PathListSeparator))
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func resolvesToSelf(dir, selfResolved string) bool {
	candidate := filepath.Join(dir, "nix-shell")
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return false
	}
	return resolved == selfResolved
}

// ExecError reports that the traced nix-shell process itself failed or was
// killed by a signal, as opposed to a local I/O failure in this tool.
type ExecError struct {
	Err error
	// ExitCode is the process's exit status, or -1 if it died by signal.
	ExitCode int
	// Signal is the terminating signal number, or 0 if the process exited
	// normally (possibly non-zero).
	Signal int
}

func (e *ExecError) Error() string {
	return e.Err.Error()
}
func (e *ExecError) Unwrap() error { return e.Err }

// Spawn runs nix-shell with the tracer preloaded, classified arguments
// forwarded, and the given pure environment, and returns the materialised
// shell environment, trace, and derivation path. tracerPath is the path to
// the compiled LD_PRELOAD shared object.
func Spawn(tracerPath string, strongArgs, weakArgs []string, pureEnv environment.Map, logger *logging.Logger) (*Result, error) {
	traceFile, err := os.CreateTemp("", "cached-nix-shell-trace-*")
	if err != nil {
		return nil, fmt.Errorf("unable to create trace temp file: %w", err)
	}
	traceFileName := traceFile.Name()
	must.Close(traceFile, logger)
	defer must.OSRemove(traceFileName, logger)

	envFile, err := os.CreateTemp("", "cached-nix-shell-env-*")
	if err != nil {
		return nil, fmt.Errorf("unable to create environment temp file: %w", err)
	}
	envFileName := envFile.Name()
	must.Close(envFile, logger)
	defer must.OSRemove(envFileName, logger)

	dumpScript := fmt.Sprintf(
		`{ printf 'BASHOPTS=%%s\0SHELLOPTS=%%s\0' "${BASHOPTS-}" "${SHELLOPTS-}" ; env -0; } > %s`,
		bashword.Quote(envFileName),
	)

	args := []string{"--pure", "--run", dumpScript}
	args = append(args, weakArgs...)
	args = append(args, strongArgs...)

	cmd := exec.Command("nix-shell", args...)
	cmd.Env = append(environment.ToEnviron(pureEnv),
		"LD_PRELOAD="+tracerPath,
		"TRACE_NIX="+traceFileName,
	)

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", os.DevNull, err)
	}
	defer must.Close(devNull, logger)
	cmd.Stdin = devNull
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	logger.Debugf("spawning nix-shell %v", args)
	if runErr := cmd.Run(); runErr != nil {
		return nil, classifyRunError(runErr)
	}

	dump, err := os.ReadFile(envFileName)
	if err != nil {
		return nil, fmt.Errorf("unable to read environment dump: %w", err)
	}
	full := environment.FromBlock(dump)
	bashOpts, _ := full.GetString("BASHOPTS")
	shellOpts, _ := full.GetString("SHELLOPTS")
	// BASHOPTS/SHELLOPTS stay in the cached environment (so a cache hit can
	// still recover them); the invocation driver strips them back out
	// before handing the final environment to the user's shell.
	cleaned := full.Without(dumpStripNames...)

	traceBytes, err := os.ReadFile(traceFileName)
	if err != nil {
		return nil, fmt.Errorf("unable to read trace log: %w", err)
	}
	tr := trace.LoadRaw(traceBytes, logger)

	out, ok := cleaned.GetString("out")
	if !ok {
		return nil, fmt.Errorf("shell environment has no 'out' variable")
	}
	drvPath, err := resolveDerivation(out)
	if err != nil {
		return nil, err
	}

	return &Result{
		Env:       cleaned,
		BashOpts:  bashOpts,
		ShellOpts: shellOpts,
		Trace:     tr,
		DrvPath:   drvPath,
	}, nil
}

func classifyRunError(err error) error {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return &ExecError{Err: fmt.Errorf("unable to execute nix-shell: %w", err), ExitCode: -1}
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return &ExecError{Err: err, ExitCode: -1, Signal: int(status.Signal())}
	}
	switch {
	case process.IsPOSIXShellCommandNotFound(err):
		return &ExecError{Err: fmt.Errorf("nix-shell reported a command not found: %w", err), ExitCode: 127}
	case process.IsPOSIXShellInvalidCommand(err):
		return &ExecError{Err: fmt.Errorf("nix-shell reported an invalid command: %w", err), ExitCode: 126}
	}
	if code, codeErr := process.ExitCodeForError(err); codeErr == nil {
		return &ExecError{Err: err, ExitCode: code}
	}
	return &ExecError{Err: err, ExitCode: -1}
}

// resolveDerivation runs `nix show-derivation` against a realised output
// path and extracts the single derivation path key from its JSON object
// output. Older nix releases require the nix-command experimental feature
// to be requested explicitly; this is retried once before giving up.
func resolveDerivation(out string) (string, error) {
	drv, err1 := runShowDerivation(out, false)
	if err1 == nil {
		return drv, nil
	}
	drv, err2 := runShowDerivation(out, true)
	if err2 == nil {
		return drv, nil
	}
	return "", fmt.Errorf("nix show-derivation failed: %v; retry with --extra-experimental-features also failed: %v", err1, err2)
}

func runShowDerivation(out string, withExperimental bool) (string, error) {
	args := []string{}
	if withExperimental {
		args = append(args, "--extra-experimental-features", "nix-command")
	}
	args = append(args, "show-derivation", out)

	cmd := exec.Command("nix", args...)
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(output, &parsed); err != nil {
		return "", fmt.Errorf("unable to parse nix show-derivation output: %w", err)
	}
	for drvPath := range parsed {
		return drvPath, nil
	}
	return "", fmt.Errorf("nix show-derivation returned no derivations")
}
