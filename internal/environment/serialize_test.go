package environment

import "testing"

func TestToBlockFromBlockRoundTrip(t *testing.T) {
	m := Map{
		{Key: []byte("KEY"), Value: []byte("value")},
		{Key: []byte("OTHER"), Value: []byte("with=equals")},
		{Key: []byte("EMPTY"), Value: []byte("")},
	}
	block := ToBlock(m)
	reparsed := FromBlock(block)

	if len(reparsed) != len(m) {
		t.Fatalf("reparsed length mismatch: %d != %d", len(reparsed), len(m))
	}
	for i, pair := range m {
		if string(reparsed[i].Key) != string(pair.Key) {
			t.Errorf("key mismatch at %d: %s != %s", i, reparsed[i].Key, pair.Key)
		}
		if string(reparsed[i].Value) != string(pair.Value) {
			t.Errorf("value mismatch at %d: %q != %q", i, reparsed[i].Value, pair.Value)
		}
	}
}

func TestFromBlockIgnoresTrailingEmptyFragment(t *testing.T) {
	block := []byte("A=1\x00B=2\x00")
	m := FromBlock(block)
	if len(m) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(m))
	}
}

func TestFromBlockEmpty(t *testing.T) {
	if m := FromBlock(nil); len(m) != 0 {
		t.Errorf("expected empty map for nil block, got %+v", m)
	}
}
