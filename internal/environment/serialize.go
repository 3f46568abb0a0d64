package environment

import "bytes"

// ToBlock serializes m into the NUL-delimited wire format used both for the
// cached ".env" file and for the output of `env -0` when dumping a child
// process's environment: each pair is written as "key=value\x00", pairs are
// written in m's existing order (callers that need a canonical order should
// call Sorted first), and there is no trailing separator beyond the final
// pair's terminator.
func ToBlock(m Map) []byte {
	var buffer bytes.Buffer
	for _, pair := range m {
		buffer.Write(pair.Key)
		buffer.WriteByte('=')
		buffer.Write(pair.Value)
		buffer.WriteByte(0)
	}
	return buffer.Bytes()
}

// FromBlock parses the NUL-delimited wire format produced by ToBlock (and by
// `env -0`). A trailing empty fragment (the common case, since the format
// ends each record with a terminator rather than separating them) is
// ignored; any other empty fragment is treated as a zero-length record and
// skipped, since it can't represent a valid "key=value" pair.
func FromBlock(block []byte) Map {
	var result Map
	for _, record := range bytes.Split(block, []byte{0}) {
		if len(record) == 0 {
			continue
		}
		index := bytes.IndexByte(record, '=')
		if index < 0 {
			// Not a valid key=value record; preserve it as a key with an
			// empty value rather than silently dropping data, since the
			// spec requires byte-exact round-tripping of whatever nix-shell
			// actually produced.
			result = append(result, Pair{Key: append([]byte(nil), record...), Value: nil})
			continue
		}
		key := record[:index]
		value := record[index+1:]
		result = append(result, Pair{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
	}
	return result
}
