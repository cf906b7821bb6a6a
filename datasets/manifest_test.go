package datasets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

// writeManifest writes the given lines to path.
func writeManifest(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write manifest %s: %v", path, err)
	}
}

func TestLoadManifest_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	writeManifest(t, path, []string{
		"a/0001.jpg 2",
		"a/0001.jpg 0",
		"a/0002.jpg 1",
		"b/0001.jpg 1",
		"b/0001.jpg 0",
	})

	m, err := LoadManifest(path, false)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if m.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", m.Len())
	}
	if m.Multiview != nil {
		t.Fatalf("expected no multiview params, got %v", m.Multiview)
	}
	if m.Entries[0] != (Entry{Path: "a/0001.jpg", ClipLength: 2}) {
		t.Fatalf("unexpected first entry: %+v", m.Entries[0])
	}
	if got := m.ClipStarts(); len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Fatalf("unexpected clip starts: %v", got)
	}
	if err := m.Validate(1, 1); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadManifest_Multiview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	writeManifest(t, path, []string{
		"a/0001.jpg 1 4 8 1",
		"a/0001.jpg 0 2 3 0",
	})

	m, err := LoadManifest(path, true)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if len(m.Multiview) != 2 {
		t.Fatalf("expected 2 multiview params, got %d", len(m.Multiview))
	}
	want := MultiviewParams{HOffset: 4, WOffset: 8, Mirror: true}
	if m.Multiview[0] != want {
		t.Fatalf("multiview[0] = %+v, want %+v", m.Multiview[0], want)
	}
	if m.Multiview[1].Mirror {
		t.Fatalf("multiview[1] should not mirror")
	}
}

func TestLoadManifest_Zstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := enc.Write([]byte("c/0005.png 1\nc/0005.png 0\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()

	m, err := LoadManifest(path, false)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if m.Len() != 2 || m.Entries[0].Path != "c/0005.png" {
		t.Fatalf("unexpected entries: %+v", m.Entries)
	}
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadManifest(filepath.Join(dir, "missing.txt"), false); !errors.Is(err, ErrManifest) {
		t.Fatalf("missing file: expected ErrManifest, got %v", err)
	}

	tests := []struct {
		name      string
		lines     []string
		multiview bool
	}{
		{"bad label", []string{"a/0001.jpg x"}, false},
		{"missing label", []string{"a/0001.jpg"}, false},
		{"truncated multiview", []string{"a/0001.jpg 0 1 2"}, true},
		{"empty", []string{""}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "_")+".txt")
			writeManifest(t, path, tc.lines)
			if _, err := LoadManifest(path, tc.multiview); !errors.Is(err, ErrManifest) {
				t.Fatalf("expected ErrManifest, got %v", err)
			}
		})
	}
}

func TestManifestValidate(t *testing.T) {
	m := &Manifest{Entries: []Entry{
		{"a/0001.jpg", 3}, {"a/0001.jpg", 0}, {"a/0002.jpg", 0}, {"a/0003.jpg", 0},
	}}
	if err := m.Validate(3, 1); err != nil {
		t.Fatalf("expected valid manifest, got %v", err)
	}
	if err := m.Validate(2, 2); !errors.Is(err, ErrManifest) {
		t.Fatalf("undersized clip: expected ErrManifest, got %v", err)
	}

	short := &Manifest{Entries: []Entry{{"a/0001.jpg", 4}, {"a/0001.jpg", 0}}}
	if err := short.Validate(1, 1); !errors.Is(err, ErrManifest) {
		t.Fatalf("truncated clip: expected ErrManifest, got %v", err)
	}
}

func TestClipStartAtOrBefore(t *testing.T) {
	m := &Manifest{Entries: []Entry{
		{"a", 1}, {"a1", 0}, {"b", 2}, {"b1", 0}, {"b2", 0},
	}}
	for idx, want := range []int{0, 0, 2, 2, 2} {
		if got := m.ClipStartAtOrBefore(idx); got != want {
			t.Fatalf("ClipStartAtOrBefore(%d) = %d, want %d", idx, got, want)
		}
	}
	if m.NumClips() != 2 {
		t.Fatalf("NumClips = %d, want 2", m.NumClips())
	}
}
