package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xzfc/cached-nix-shell/pkg/logging"
)

func buildRaw(records ...[2]string) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		buf.WriteByte(0)
		buf.WriteString(r[0])
		buf.WriteByte(0)
		buf.WriteString(r[1])
	}
	return buf.Bytes()
}

func TestLoadSortedSerializeRoundTrip(t *testing.T) {
	raw := buildRaw([2]string{"s/etc/passwd", "+"}, [2]string{"f/etc/hostname", "abc"})
	tr := LoadSorted(raw)
	if len(tr.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(tr.Records))
	}
	if got := tr.Serialize(); !bytes.Equal(got, raw) {
		t.Errorf("Serialize() = %q, want %q", got, raw)
	}
}

func TestLoadRawDropsScrubbedTempDirectory(t *testing.T) {
	dir := t.TempDir()
	gone := filepath.Join(dir, "gone")
	// gone does not exist on disk, simulating a fetchTarball scratch
	// directory that was created and removed before the trace was loaded.
	raw := buildRaw(
		[2]string{"t" + gone, "+"},
		[2]string{"f" + filepath.Join(gone, "file"), "deadbeef"},
		[2]string{"t" + gone, "-"},
		[2]string{"s/etc/passwd", "+"},
	)
	tr := LoadRaw(raw, logging.RootLogger)
	for _, r := range tr.Records {
		if bytes.HasPrefix(r.Key[1:], []byte(gone)) {
			t.Errorf("expected scrubbed entries for %s to be dropped, found %s", gone, r.Key)
		}
	}
	found := false
	for _, r := range tr.Records {
		if string(r.Key) == "s/etc/passwd" {
			found = true
		}
	}
	if !found {
		t.Error("expected unrelated record to survive")
	}
}

func TestLoadRawKeepsEntriesWhenDirectoryStillExists(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "still-here")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	raw := buildRaw(
		[2]string{"t" + sub, "+"},
		[2]string{"f" + filepath.Join(sub, "file"), "deadbeef"},
		[2]string{"t" + sub, "-"},
	)
	tr := LoadRaw(raw, logging.RootLogger)
	found := false
	for _, r := range tr.Records {
		if string(r.Key) == "f"+filepath.Join(sub, "file") {
			found = true
		}
	}
	if !found {
		t.Error("expected entry under a still-existing directory to survive")
	}
}

func TestCheckForChangesDetectsFileContentChange(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "f")
	if err := os.WriteFile(fname, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}
	tr := LoadSorted([]byte{})
	tr.Records = append(tr.Records, Record{Key: []byte("f" + fname), Value: fileObservation([]byte(fname))})

	if m := tr.CheckForChanges(); m != nil {
		t.Fatalf("expected no change, got %+v", m)
	}

	if err := os.WriteFile(fname, []byte("modified"), 0644); err != nil {
		t.Fatal(err)
	}
	m := tr.CheckForChanges()
	if m == nil {
		t.Fatal("expected a change to be detected")
	}
	if m.Path != fname {
		t.Errorf("Path = %q, want %q", m.Path, fname)
	}
}

func TestCheckForChangesDetectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "gone")
	tr := LoadSorted([]byte{})
	tr.Records = append(tr.Records, Record{Key: []byte("f" + fname), Value: []byte("-")})
	if m := tr.CheckForChanges(); m != nil {
		t.Fatalf("expected absence to still match, got %+v", m)
	}
	if err := os.WriteFile(fname, []byte("now exists"), 0644); err != nil {
		t.Fatal(err)
	}
	if m := tr.CheckForChanges(); m == nil {
		t.Fatal("expected a change once the file was created")
	}
}

func TestStatObservationSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	link := filepath.Join(dir, "link")
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	got := statObservation([]byte(link))
	want := []byte("l" + target)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("statObservation = %q, want %q", got, want)
	}
}
