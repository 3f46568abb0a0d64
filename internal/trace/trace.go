// Package trace models the filesystem observation log produced by the
// LD_PRELOAD tracer during a cold nix-shell evaluation, and the
// revalidation logic that replays those observations later to decide
// whether a cached environment is still good.
//
// Grounded on the original cached-nix-shell's trace.rs: the same
// temporary-directory scrubbing (a directory created and destroyed by
// fetchTarball between a "t+" and "t-" pair contributes no observations to
// the stored trace) and the same per-tag revalidation rules.
package trace

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"

	"github.com/xzfc/cached-nix-shell/pkg/logging"
)

// Record is a single observation: Key is a one-byte tag ('s', 'f', 'd', or
// 't') followed by the path it concerns, exactly as the traced process
// passed it to the intercepted call (absolute or relative); Value is the recorded
// observation for that tag.
type Record struct {
	Key   []byte
	Value []byte
}

// Trace is an ordered sequence of observations, ready to be serialized to
// the cache or replayed for revalidation.
type Trace struct {
	Records []Record
}

// Mismatch describes the first observation that no longer matches reality,
// as found by CheckForChanges.
type Mismatch struct {
	Path     string
	Expected []byte
	Got      []byte
}

func splitPairs(data []byte) [][2][]byte {
	var frags [][]byte
	for _, f := range bytes.Split(data, []byte{0}) {
		if len(f) == 0 {
			continue
		}
		frags = append(frags, f)
	}
	var pairs [][2][]byte
	for i := 0; i+1 < len(frags); i += 2 {
		pairs = append(pairs, [2][]byte{frags[i], frags[i+1]})
	}
	return pairs
}

type scope struct {
	buffered [][2][]byte
}

// LoadRaw parses the NUL-delimited record stream written by the tracer
// (TRACE_NIX). Records inside a directory's lifetime (a "t<path>\0+" open
// followed by a "t<path>\0-" close) are dropped entirely if, at the time of
// the close, the directory no longer exists on disk: this is the signature
// of a temporary directory created by fetchTarball and cleaned up before
// the shell exited, whose contents would be meaningless to revalidate
// later. If the directory still exists at close, its buffered observations
// are kept. Observations for directories that are opened but never closed
// are kept as well, since that means the directory outlived the traced
// process.
func LoadRaw(data []byte, logger *logging.Logger) *Trace {
	pairs := splitPairs(data)

	result := make(map[string][]byte)
	inbetween := make(map[string]*scope)

outer:
	for _, p := range pairs {
		key, value := p[0], p[1]
		if len(key) == 0 {
			continue
		}
		fname := key[1:]

		if key[0] == 't' {
			pathKey := string(fname)
			switch string(value) {
			case "+":
				if _, err := os.Lstat(string(fname)); err == nil {
					// Unlikely: a directory by this name already exists,
					// so this isn't a fresh scratch directory; nothing to
					// scrub.
					continue
				}
				if sc, ok := inbetween[pathKey]; ok {
					// Unlikely: the same directory name was created
					// twice in one trace. Flush what was collected under
					// the first incarnation before starting a new one.
					for _, kv := range sc.buffered {
						result[string(kv[0])] = kv[1]
					}
					sc.buffered = nil
				} else {
					inbetween[pathKey] = &scope{}
				}
			case "-":
				if sc, ok := inbetween[pathKey]; ok {
					if len(sc.buffered) > 0 {
						logger.Infof("happily ignoring %s", fname)
						for _, kv := range sc.buffered {
							logger.Infof("  %s", kv[0][1:])
						}
					}
					delete(inbetween, pathKey)
				}
			}
			continue
		}

		if len(inbetween) > 0 {
			scopeKeys := make([]string, 0, len(inbetween))
			for path := range inbetween {
				scopeKeys = append(scopeKeys, path)
			}
			sort.Strings(scopeKeys)
			for _, path := range scopeKeys {
				pb := []byte(path)
				if bytes.Equal(fname, pb) || (bytes.HasPrefix(fname, pb) && len(fname) > len(pb) && fname[len(pb)] == '/') {
					sc := inbetween[path]
					sc.buffered = append(sc.buffered, [2][]byte{
						append([]byte(nil), key...),
						append([]byte(nil), value...),
					})
					continue outer
				}
			}
		}

		result[string(key)] = value
	}

	for _, sc := range inbetween {
		for _, kv := range sc.buffered {
			result[string(kv[0])] = kv[1]
		}
	}

	return &Trace{Records: mapToSortedRecords(result)}
}

// LoadSorted parses the NUL-delimited record stream as stored in a cache
// entry's ".trace" file: already filtered and written in Serialize's
// order, so no t-tag scrubbing or re-sorting is needed.
func LoadSorted(data []byte) *Trace {
	pairs := splitPairs(data)
	records := make([]Record, len(pairs))
	for i, p := range pairs {
		records[i] = Record{Key: p[0], Value: p[1]}
	}
	return &Trace{Records: records}
}

func mapToSortedRecords(m map[string][]byte) []Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	records := make([]Record, len(keys))
	for i, k := range keys {
		records[i] = Record{Key: []byte(k), Value: m[k]}
	}
	return records
}

// Serialize writes t back out in the wire format the tracer itself uses:
// a NUL, the key, a NUL, and the value, repeated for each record.
func (t *Trace) Serialize() []byte {
	var buf bytes.Buffer
	for _, r := range t.Records {
		buf.WriteByte(0)
		buf.Write(r.Key)
		buf.WriteByte(0)
		buf.Write(r.Value)
	}
	return buf.Bytes()
}

// CheckForChanges recomputes each recorded observation against the current
// filesystem state and returns the first one that no longer matches, or
// nil if every observation still holds. A nil result means the cached
// environment is still valid for replay.
func (t *Trace) CheckForChanges() *Mismatch {
	for _, r := range t.Records {
		if len(r.Key) == 0 {
			continue
		}
		fname := r.Key[1:]
		var got []byte
		switch r.Key[0] {
		case 's':
			got = statObservation(fname)
		case 'f':
			got = fileObservation(fname)
		case 'd':
			got = dirObservation(fname)
		default:
			continue
		}
		if !bytes.Equal(got, r.Value) {
			return &Mismatch{
				Path:     string(fname),
				Expected: append([]byte(nil), r.Value...),
				Got:      got,
			}
		}
	}
	return nil
}

func hashTruncated(data []byte) []byte {
	sum := sha256.Sum256(data)
	hexStr := hex.EncodeToString(sum[:])
	return []byte(hexStr[:32])
}

func statObservation(fname []byte) []byte {
	info, err := os.Lstat(string(fname))
	if err != nil {
		return []byte("-")
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(string(fname))
		if err != nil {
			return []byte("-")
		}
		return []byte("l" + target)
	}
	if info.IsDir() {
		return []byte("d")
	}
	return []byte("+")
}

func fileObservation(fname []byte) []byte {
	data, err := os.ReadFile(string(fname))
	if err != nil {
		if os.IsNotExist(err) {
			return []byte("-")
		}
		return []byte("e")
	}
	return hashTruncated(data)
}

func dirObservation(fname []byte) []byte {
	entries, err := os.ReadDir(string(fname))
	if err != nil {
		return []byte("-")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		var typ byte
		switch {
		case e.Type()&os.ModeSymlink != 0:
			typ = 'l'
		case e.IsDir():
			typ = 'd'
		case e.Type().IsRegular():
			typ = 'f'
		default:
			typ = 'u'
		}
		names = append(names, e.Name()+"="+string(typ)+"\x00")
	}
	sort.Strings(names)
	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
	}
	return hashTruncated(buf.Bytes())
}
