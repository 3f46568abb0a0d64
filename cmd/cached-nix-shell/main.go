// Command cached-nix-shell is a drop-in accelerator for nix-shell: it
// caches the shell environment a nix-shell invocation produces, keyed on a
// fingerprint of its inputs, and replays that environment directly,
// bypassing evaluation entirely, whenever the recorded filesystem trace
// shows nothing consulted during evaluation has changed.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xzfc/cached-nix-shell/cmd"
	"github.com/xzfc/cached-nix-shell/internal/args"
	"github.com/xzfc/cached-nix-shell/internal/cache"
	"github.com/xzfc/cached-nix-shell/internal/environment"
	"github.com/xzfc/cached-nix-shell/internal/fingerprint"
	"github.com/xzfc/cached-nix-shell/internal/invocation"
	"github.com/xzfc/cached-nix-shell/internal/materialiser"
	"github.com/xzfc/cached-nix-shell/internal/shebang"
	"github.com/xzfc/cached-nix-shell/internal/tracer"
	"github.com/xzfc/cached-nix-shell/internal/xdg"
	"github.com/xzfc/cached-nix-shell/pkg/logging"
	"github.com/xzfc/cached-nix-shell/pkg/meta"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		cmd.Error(err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor derives the process exit code for a failed run: a nix-shell
// that exited non-zero propagates its own exit code, one killed by a signal
// exits 128+signal, and anything else (argument errors, I/O failures, a
// missing nix-shell) exits 1.
func exitCodeFor(err error) int {
	var execErr *materialiser.ExecError
	if !errors.As(err, &execErr) {
		return 1
	}
	if execErr.Signal != 0 {
		return 128 + execErr.Signal
	}
	if execErr.ExitCode >= 0 {
		return execErr.ExitCode
	}
	return 1
}

func run(argv []string) error {
	switch {
	case len(argv) == 1 && argv[0] == "--version":
		fmt.Println("cached-nix-shell", meta.Version)
		return nil
	case len(argv) >= 1 && argv[0] == "--wrap":
		return runWrap(argv[1:])
	}

	if len(argv) >= 1 {
		if shebangArgv, err := shebang.Parse(argv[0]); err != nil {
			return fmt.Errorf("unable to read script %q: %w", argv[0], err)
		} else if shebangArgv != nil {
			return runShebang(argv[0], shebangArgv, argv[1:])
		}
	}

	return runDirect(argv)
}

func runWrap(rest []string) error {
	if len(rest) == 0 {
		return fmt.Errorf("--wrap requires a command")
	}
	cacheDir, err := xdg.CacheHome()
	if err != nil {
		return fmt.Errorf("unable to resolve cache directory: %w", err)
	}
	selfExe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("unable to determine this executable's path: %w", err)
	}
	wrapDir, err := cache.EnsureWrapDir(cacheDir, selfExe, logger())
	if err != nil {
		return err
	}
	return invocation.WrapCommand(rest[0], rest[1:], wrapDir, environment.Current())
}

func runShebang(script string, shebangArgv, scriptArgs []string) error {
	parsed, err := args.Parse(shebangArgv, true)
	if err != nil {
		return fmt.Errorf("malformed nix-shell shebang in %q: %w", script, err)
	}
	parsed.Mode = args.ModeShebangInterpreter

	env, _, _, err := obtainEnvironment(parsed)
	if err != nil {
		return err
	}

	final := invocation.Finalize(mergeForMode(env, parsed.Pure))
	return invocation.ExecShebangInterpreter(parsed.Interpreter, script, scriptArgs, final)
}

func runDirect(argv []string) error {
	parsed, err := args.Parse(argv, false)
	if err != nil {
		return err
	}

	env, bashOpts, shellOpts, err := obtainEnvironment(parsed)
	if err != nil {
		return err
	}
	final := invocation.Finalize(mergeForMode(env, parsed.Pure))

	switch parsed.Mode {
	case args.ModeRun:
		return invocation.ExecRun(parsed.RunCommand, bashOpts, shellOpts, final)
	case args.ModeExec:
		return invocation.ExecNamed(parsed.ExecCommand, parsed.ExecArgs, final)
	default:
		rcfile := "/etc/bashrc"
		if v, ok := final.GetString("out"); ok {
			rcfile = filepath.Join(v, "etc/rcfile")
		}
		return invocation.ExecInteractive(rcfile, bashOpts, shellOpts, final)
	}
}

func mergeForMode(env environment.Map, pure bool) environment.Map {
	ambient := environment.Current()
	if !pure {
		return invocation.MergeImpure(env, ambient)
	}
	return invocation.ApplyPureReinjection(env, ambient)
}

// obtainEnvironment resolves the cache entry (or materialises a fresh one
// on a miss) for the classified invocation a, returning the cacheable
// environment plus the bash/shell option strings needed to reconstruct the
// safe subset of session options.
func obtainEnvironment(a *args.Args) (environment.Map, string, string, error) {
	cacheDir, err := xdg.CacheHome()
	if err != nil {
		return nil, "", "", fmt.Errorf("unable to resolve cache directory: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", "", fmt.Errorf("unable to determine working directory: %w", err)
	}
	pwd, rest, err := invocation.NormaliseWorkingDirectory(
		cwd, os.Getenv("NIX_PATH"), a.IArgs, a.Packages || a.Expr, a.Rest)
	if err != nil {
		return nil, "", "", err
	}
	a.Rest = rest

	ambient := environment.Current()
	pureEnv := materialiser.BuildPureEnv(ambient, a.Keep)

	fingerprintArgs := append(append([]string(nil), a.Strong...), a.Rest...)
	hash := fingerprint.Compute(pureEnv, fingerprintArgs, []byte(pwd))

	log := logger()

	if entry, err := cache.Lookup(cacheDir, hash, log); err != nil {
		log.Warn(fmt.Errorf("cache lookup failed, falling back to a fresh evaluation: %w", err))
	} else if entry != nil {
		bashOpts, _ := entry.Env.GetString("BASHOPTS")
		shellOpts, _ := entry.Env.GetString("SHELLOPTS")
		return entry.Env.Without("BASHOPTS", "SHELLOPTS"), bashOpts, shellOpts, nil
	}

	tracerDir := filepath.Join(cacheDir, "tracer")
	tracerPath, err := tracer.ExtractTo(tracerDir)
	if err != nil {
		return nil, "", "", fmt.Errorf("unable to prepare tracer: %w", err)
	}

	strongArgs := append(append([]string(nil), a.Strong...), a.Rest...)
	result, err := materialiser.Spawn(tracerPath, strongArgs, a.Weak, pureEnv, log)
	if err != nil {
		return nil, "", "", err
	}

	inputsJSON := fingerprintInputsDiagnostic(fingerprintArgs, pwd)
	cache.Store(cacheDir, hash, inputsJSON, result.Env, result.Trace, result.DrvPath, log)

	return result.Env.Without("BASHOPTS", "SHELLOPTS"), result.BashOpts, result.ShellOpts, nil
}

// fingerprintInputsDiagnostic renders the fingerprint pre-image components
// in a human-readable form for the cache entry's ".inputs" sibling file,
// which exists purely for diagnostics and collision forensics, not for any
// machine consumption.
func fingerprintInputsDiagnostic(fingerprintArgs []string, pwd string) []byte {
	var b []byte
	b = append(b, "pwd="...)
	b = append(b, pwd...)
	b = append(b, '\n')
	for _, a := range fingerprintArgs {
		b = append(b, "arg="...)
		b = append(b, a...)
		b = append(b, '\n')
	}
	return b
}

// logger returns the root logger used throughout an invocation; debug-level
// output is gated on CACHED_NIX_SHELL_DEBUG via pkg/meta.DebugEnabled, which
// pkg/logging's Logger.Debug/Debugf already consult.
func logger() *logging.Logger {
	return logging.RootLogger
}
