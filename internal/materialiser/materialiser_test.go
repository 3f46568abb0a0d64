package materialiser

import (
	"os/exec"
	"runtime"
	"testing"

	"github.com/xzfc/cached-nix-shell/internal/environment"
)

func env(pairs ...[2]string) environment.Map {
	var m environment.Map
	for _, p := range pairs {
		m = append(m, environment.Pair{Key: []byte(p[0]), Value: []byte(p[1])})
	}
	return m
}

func TestBuildPureEnvKeepsWhitelistedVars(t *testing.T) {
	ambient := env(
		[2]string{"HOME", "/home/u"},
		[2]string{"NIX_PATH", "/nix"},
		[2]string{"SOME_RANDOM_VAR", "leak-me-not"},
	)
	got := BuildPureEnv(ambient, nil)
	if v, ok := got.GetString("HOME"); !ok || v != "/home/u" {
		t.Errorf("expected HOME to be preserved, got %q (ok=%v)", v, ok)
	}
	if _, ok := got.GetString("SOME_RANDOM_VAR"); ok {
		t.Error("expected non-whitelisted variable to be excluded")
	}
}

func TestBuildPureEnvHonorsKeep(t *testing.T) {
	ambient := env([2]string{"MY_CUSTOM_VAR", "value"})
	got := BuildPureEnv(ambient, []string{"MY_CUSTOM_VAR"})
	if v, ok := got.GetString("MY_CUSTOM_VAR"); !ok || v != "value" {
		t.Errorf("expected --keep var to be preserved, got %q (ok=%v)", v, ok)
	}
}

func TestBuildPureEnvFiltersPathEntriesWithoutRequiredBinaries(t *testing.T) {
	ambient := env([2]string{"PATH", "/usr/bin:/opt/git/bin:/opt/nothing-useful"})
	got := BuildPureEnv(ambient, nil)
	path, _ := got.GetString("PATH")
	if !containsAny(path, []string{"/opt/git/bin"}) {
		t.Errorf("expected git-bearing PATH entry to survive, got %q", path)
	}
	if containsAny(path, []string{"/opt/nothing-useful"}) {
		t.Errorf("expected unrelated PATH entry to be filtered, got %q", path)
	}
}

func TestFilterPathEmptyWhenNothingQualifies(t *testing.T) {
	if got := filterPath("/opt/nothing-useful:/another/dir"); got != "" {
		t.Errorf("expected empty PATH, got %q", got)
	}
}

func TestClassifyRunErrorExtractsExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	err := exec.Command("/bin/sh", "-c", "exit 3").Run()
	if err == nil {
		t.Fatal("expected a non-nil error from a failing command")
	}
	classified := classifyRunError(err)
	execErr, ok := classified.(*ExecError)
	if !ok {
		t.Fatalf("expected *ExecError, got %T", classified)
	}
	if execErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", execErr.ExitCode)
	}
	if execErr.Signal != 0 {
		t.Errorf("Signal = %d, want 0", execErr.Signal)
	}
}

func TestClassifyRunErrorDetectsCommandNotFound(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	err := exec.Command("/bin/sh", "-c", "definitely-not-a-real-command-xyz").Run()
	if err == nil {
		t.Fatal("expected a non-nil error from an unknown command")
	}
	classified := classifyRunError(err)
	execErr, ok := classified.(*ExecError)
	if !ok {
		t.Fatalf("expected *ExecError, got %T", classified)
	}
	if execErr.ExitCode != 127 {
		t.Errorf("ExitCode = %d, want 127", execErr.ExitCode)
	}
}
