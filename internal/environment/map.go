// Package environment models the environment that a shell invocation
// evaluates under: an ordered, byte-exact sequence of key/value pairs. Unlike
// a Go map, order is preserved (it matters for deterministic serialization)
// and keys/values are raw bytes rather than strings, since POSIX environment
// entries are not guaranteed to be valid UTF-8.
package environment

import "bytes"

// Pair is a single environment variable: its name and its value, both as raw
// bytes.
type Pair struct {
	Key   []byte
	Value []byte
}

// Map is an ordered collection of environment variable pairs. It does not
// enforce key uniqueness on construction (that's the responsibility of
// whoever builds one from an external source); lookups return the first
// match, mirroring how libc's environ works when a name appears twice.
type Map []Pair

// Get returns the value associated with key and whether it was found.
func (m Map) Get(key []byte) ([]byte, bool) {
	for _, pair := range m {
		if bytes.Equal(pair.Key, key) {
			return pair.Value, true
		}
	}
	return nil, false
}

// GetString is a convenience wrapper around Get for string keys.
func (m Map) GetString(key string) (string, bool) {
	value, ok := m.Get([]byte(key))
	if !ok {
		return "", false
	}
	return string(value), true
}

// Without returns a copy of m with all pairs whose key is in names removed.
func (m Map) Without(names ...string) Map {
	excluded := make(map[string]bool, len(names))
	for _, name := range names {
		excluded[name] = true
	}
	result := make(Map, 0, len(m))
	for _, pair := range m {
		if excluded[string(pair.Key)] {
			continue
		}
		result = append(result, pair)
	}
	return result
}

// Set returns a copy of m with key set to value. If key is already present,
// its first occurrence is replaced and any subsequent duplicates are dropped
// (matching setenv's "one canonical value" semantics); otherwise the pair is
// appended.
func (m Map) Set(key, value []byte) Map {
	result := make(Map, 0, len(m)+1)
	replaced := false
	for _, pair := range m {
		if bytes.Equal(pair.Key, key) {
			if replaced {
				continue
			}
			result = append(result, Pair{Key: key, Value: value})
			replaced = true
			continue
		}
		result = append(result, pair)
	}
	if !replaced {
		result = append(result, Pair{Key: key, Value: value})
	}
	return result
}

// Sorted returns a copy of m with pairs sorted lexicographically by key. This
// is used wherever a canonical order is required for hashing or comparison,
// as opposed to the arbitrary order variables happened to arrive in (e.g.
// from os.Environ, or from a dumped child process environment).
func (m Map) Sorted() Map {
	result := make(Map, len(m))
	copy(result, m)
	sortPairs(result)
	return result
}

func sortPairs(pairs Map) {
	// Insertion sort is fine here: environments are small (tens to low
	// hundreds of entries), and this avoids pulling in sort.Slice's
	// reflection-based comparator for what is otherwise a tiny, hot-ish path
	// (every cache write and revalidation sorts one of these).
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && bytes.Compare(pairs[j-1].Key, pairs[j].Key) > 0; j-- {
			pairs[j-1], pairs[j] = pairs[j], pairs[j-1]
		}
	}
}
