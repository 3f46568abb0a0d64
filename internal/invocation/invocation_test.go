package invocation

import (
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

func TestNormaliseWorkingDirectoryEmptyArgUsesCwd(t *testing.T) {
	dir, rest, err := NormaliseWorkingDirectory("/home/u/proj", "", nil, false, []string{""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "/home/u/proj" {
		t.Errorf("dir = %q, want cwd", dir)
	}
	if len(rest) != 1 || rest[0] != "" {
		t.Errorf("rest = %v, want unchanged", rest)
	}
}

func TestNormaliseWorkingDirectoryPackagesUsesSentinel(t *testing.T) {
	dir, _, err := NormaliseWorkingDirectory("/home/u/proj", "", nil, true, []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != sentinelDir {
		t.Errorf("dir = %q, want sentinel", dir)
	}
}

func TestNormaliseWorkingDirectorySearchPathTokenUsesSentinel(t *testing.T) {
	dir, rest, err := NormaliseWorkingDirectory("/home/u/proj", "", nil, false, []string{"<nixpkgs>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != sentinelDir {
		t.Errorf("dir = %q, want sentinel", dir)
	}
	if len(rest) != 1 || rest[0] != "<nixpkgs>" {
		t.Errorf("rest = %v, want unchanged", rest)
	}
}

func TestNormaliseWorkingDirectoryURIUsesSentinel(t *testing.T) {
	dir, _, err := NormaliseWorkingDirectory("/home/u/proj", "", nil, false, []string{"https://example.com/x.tar.gz"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != sentinelDir {
		t.Errorf("dir = %q, want sentinel", dir)
	}
}

func TestNormaliseWorkingDirectoryRelativeNixPathSuppressesRewrite(t *testing.T) {
	dir, rest, err := NormaliseWorkingDirectory("/home/u/proj", "nixpkgs=../nixpkgs", nil, false, []string{"/some/dir"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "/home/u/proj" {
		t.Errorf("dir = %q, want cwd (unrewritten)", dir)
	}
	if len(rest) != 1 || rest[0] != "/some/dir" {
		t.Errorf("rest = %v, want unchanged", rest)
	}
}

func TestNormaliseWorkingDirectoryFileArgRewritesToDirAndBasename(t *testing.T) {
	dir, rest, err := NormaliseWorkingDirectory("/home/u/proj", "", nil, false, []string{"/home/u/proj/shell.nix"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "/home/u/proj" {
		t.Errorf("dir = %q, want /home/u/proj", dir)
	}
	if len(rest) != 1 || rest[0] != "./shell.nix" {
		t.Errorf("rest = %v, want [./shell.nix]", rest)
	}
}

func TestReconstructBashFlagsFiltersUnsafeOptions(t *testing.T) {
	flags := reconstructBashFlags("execfail:checkwinsize:nullglob", "pipefail:noclobber")
	want := map[string]bool{"execfail": true, "nullglob": true, "pipefail": true}
	got := map[string]bool{}
	for i := 0; i < len(flags); i += 2 {
		got[flags[i+1]] = true
	}
	for name := range want {
		if !got[name] {
			t.Errorf("expected flag for %q, got %v", name, flags)
		}
	}
	if got["checkwinsize"] || got["noclobber"] {
		t.Errorf("expected unsafe options to be filtered, got %v", flags)
	}
}

func TestEnvPathConcatHandlesEmptySides(t *testing.T) {
	if got := envPathConcat("", "b"); got != "b" {
		t.Errorf("got %q, want %q", got, "b")
	}
	if got := envPathConcat("a", ""); got != "a" {
		t.Errorf("got %q, want %q", got, "a")
	}
	if got := envPathConcat("a", "b"); got != "a:b" {
		t.Errorf("got %q, want %q", got, "a:b")
	}
}

func TestMergeImpureInheritsUncachedVars(t *testing.T) {
	cached := env([2]string{"FOO", "cached-value"})
	ambient := env([2]string{"BAR", "ambient-value"})
	merged := MergeImpure(cached, ambient)
	if v, ok := merged.GetString("FOO"); !ok || v != "cached-value" {
		t.Errorf("FOO = %q, want cached-value", v)
	}
	if v, ok := merged.GetString("BAR"); !ok || v != "ambient-value" {
		t.Errorf("BAR = %q, want ambient-value", v)
	}
	if v, _ := merged.GetString("IN_NIX_SHELL"); v != "impure" {
		t.Errorf("IN_NIX_SHELL = %q, want impure", v)
	}
}

func TestMergeImpureAppendsPathEntries(t *testing.T) {
	cached := env([2]string{"PATH", "/nix/store/abc/bin"})
	ambient := env([2]string{"PATH", "/usr/bin:/bin"})
	merged := MergeImpure(cached, ambient)
	want := "/nix/store/abc/bin:/usr/bin:/bin"
	if v, _ := merged.GetString("PATH"); v != want {
		t.Errorf("PATH = %q, want %q", v, want)
	}
}

func TestMergeImpureStripsSandboxSSLCertPaths(t *testing.T) {
	cached := env([2]string{"SSL_CERT_FILE", "/nix/store/xyz/ca-bundle.crt"})
	ambient := env([2]string{"SSL_CERT_FILE", "/etc/ssl/certs/ca-bundle.crt"})
	merged := MergeImpure(cached, ambient)
	if v, _ := merged.GetString("SSL_CERT_FILE"); v != "/etc/ssl/certs/ca-bundle.crt" {
		t.Errorf("SSL_CERT_FILE = %q, want ambient value", v)
	}
}

func TestApplyPureReinjectionOverridesFromAllowlist(t *testing.T) {
	pure := env([2]string{"TERM", "dumb"})
	ambient := env([2]string{"TERM", "xterm-256color"}, [2]string{"USER", "alice"})
	merged := ApplyPureReinjection(pure, ambient)
	if v, _ := merged.GetString("TERM"); v != "xterm-256color" {
		t.Errorf("TERM = %q, want xterm-256color", v)
	}
	if v, _ := merged.GetString("USER"); v != "alice" {
		t.Errorf("USER = %q, want alice", v)
	}
}

func TestFinalizeAlwaysSetsMarker(t *testing.T) {
	got := Finalize(env())
	if v, ok := got.GetString("IN_CACHED_NIX_SHELL"); !ok || v != "1" {
		t.Errorf("IN_CACHED_NIX_SHELL = %q (ok=%v), want 1", v, ok)
	}
}

func TestPrependPathHandlesEmptyPath(t *testing.T) {
	if got := prependPath("/tmp/wrap", ""); got != "/tmp/wrap" {
		t.Errorf("got %q, want /tmp/wrap", got)
	}
	if got := prependPath("/tmp/wrap", "/usr/bin"); got != "/tmp/wrap:/usr/bin" {
		t.Errorf("got %q, want /tmp/wrap:/usr/bin", got)
	}
}
