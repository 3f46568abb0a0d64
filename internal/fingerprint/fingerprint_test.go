package fingerprint

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

func TestComputeIsDeterministic(t *testing.T) {
	e := env([2]string{"HOME", "/home/u"}, [2]string{"NIX_PATH", "/nix"})
	a := Compute(e, []string{"-p", "hello"}, []byte("/tmp/x"))
	b := Compute(e, []string{"-p", "hello"}, []byte("/tmp/x"))
	if a != b {
		t.Errorf("expected deterministic fingerprint, got %q and %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected a 64-char hex digest, got %d chars: %q", len(a), a)
	}
}

func TestComputeIsOrderInsensitiveOverEnv(t *testing.T) {
	a := Compute(env([2]string{"A", "1"}, [2]string{"B", "2"}), nil, nil)
	b := Compute(env([2]string{"B", "2"}, [2]string{"A", "1"}), nil, nil)
	if a != b {
		t.Error("expected env ordering not to affect the fingerprint (Compute sorts internally)")
	}
}

func TestComputeDistinguishesDifferentArgs(t *testing.T) {
	e := env([2]string{"HOME", "/home/u"})
	a := Compute(e, []string{"-p", "hello"}, []byte("/tmp"))
	b := Compute(e, []string{"-p", "world"}, []byte("/tmp"))
	if a == b {
		t.Error("expected different strong args to produce different fingerprints")
	}
}

func TestComputeDistinguishesDifferentPwd(t *testing.T) {
	e := env([2]string{"HOME", "/home/u"})
	a := Compute(e, []string{"-p", "hello"}, []byte("/tmp/a"))
	b := Compute(e, []string{"-p", "hello"}, []byte("/tmp/b"))
	if a == b {
		t.Error("expected different working directories to produce different fingerprints")
	}
}

func TestComputeFieldBoundariesAreUnambiguous(t *testing.T) {
	// A naive concatenation without length-prefixing could confuse
	// ["ab", "c"] with ["a", "bc"]; the length-prefixed framing must not.
	a := Compute(nil, []string{"ab", "c"}, nil)
	b := Compute(nil, []string{"a", "bc"}, nil)
	if a == b {
		t.Error("expected length-prefixed framing to distinguish different argv splits")
	}
}
