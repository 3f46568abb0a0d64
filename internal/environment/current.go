package environment

import (
	"os"
	"strings"
)

// Current returns a snapshot of the calling process's environment, in the
// order reported by os.Environ.
func Current() Map {
	entries := os.Environ()
	result := make(Map, 0, len(entries))
	for _, entry := range entries {
		index := strings.IndexByte(entry, '=')
		if index < 0 {
			continue
		}
		result = append(result, Pair{
			Key:   []byte(entry[:index]),
			Value: []byte(entry[index+1:]),
		})
	}
	return result
}

// ToEnviron converts m into the "KEY=value" slice format that os/exec.Cmd's
// Env field expects.
func ToEnviron(m Map) []string {
	result := make([]string, len(m))
	for i, pair := range m {
		result[i] = string(pair.Key) + "=" + string(pair.Value)
	}
	return result
}
