package datasets

import (
	"fmt"
	"math/rand"
	"testing"
)

// buildManifest makes a manifest of clips with the given lengths. Entry paths
// are "<clip>/<index>" so clip membership and order can be checked.
func buildManifest(lengths []int, multiview bool) *Manifest {
	m := &Manifest{}
	for c, l := range lengths {
		m.Entries = append(m.Entries, Entry{Path: fmt.Sprintf("clip%d/key", c), ClipLength: l})
		for j := 0; j < l; j++ {
			m.Entries = append(m.Entries, Entry{Path: fmt.Sprintf("clip%d/%04d", c, j), ClipLength: j})
		}
	}
	if multiview {
		for i := range m.Entries {
			m.Multiview = append(m.Multiview, MultiviewParams{HOffset: i})
		}
	}
	return m
}

func TestShuffleClips_PreservesClips(t *testing.T) {
	lengths := []int{3, 1, 5, 2, 4, 0, 6}
	orig := buildManifest(lengths, false)
	clips := make(map[string][]Entry)
	for _, s := range orig.ClipStarts() {
		clips[orig.Entries[s].Path] = orig.Entries[s : s+orig.Entries[s].ClipLength+1]
	}

	for seed := int64(1); seed <= 20; seed++ {
		m := buildManifest(lengths, false)
		ShuffleClips(m, rand.New(rand.NewSource(seed)))

		if m.Len() != orig.Len() {
			t.Fatalf("seed %d: length changed %d -> %d", seed, orig.Len(), m.Len())
		}
		starts := m.ClipStarts()
		if len(starts) != len(lengths) {
			t.Fatalf("seed %d: expected %d clips, got %d", seed, len(lengths), len(starts))
		}
		seen := make(map[string]bool)
		for _, s := range starts {
			key := m.Entries[s].Path
			want, ok := clips[key]
			if !ok {
				t.Fatalf("seed %d: unknown clip key %q", seed, key)
			}
			if seen[key] {
				t.Fatalf("seed %d: clip %q appears twice", seed, key)
			}
			seen[key] = true
			got := m.Entries[s : s+len(want)]
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("seed %d: clip %q entry %d = %+v, want %+v", seed, key, i, got[i], want[i])
				}
			}
		}
	}
}

func TestShuffleClips_ChangesOrder(t *testing.T) {
	lengths := make([]int, 30)
	for i := range lengths {
		lengths[i] = 1
	}
	m := buildManifest(lengths, false)
	ShuffleClips(m, rand.New(rand.NewSource(7)))

	moved := false
	for i, s := range m.ClipStarts() {
		if m.Entries[s].Path != fmt.Sprintf("clip%d/key", i) {
			moved = true
			break
		}
	}
	if !moved {
		t.Fatalf("expected shuffle of 30 clips to change clip order")
	}
}

func TestShuffleClips_Deterministic(t *testing.T) {
	a := buildManifest([]int{2, 3, 1, 4}, false)
	b := buildManifest([]int{2, 3, 1, 4}, false)
	ShuffleClips(a, rand.New(rand.NewSource(99)))
	ShuffleClips(b, rand.New(rand.NewSource(99)))
	for i := range a.Entries {
		if a.Entries[i] != b.Entries[i] {
			t.Fatalf("same seed produced different order at %d: %+v vs %+v", i, a.Entries[i], b.Entries[i])
		}
	}
}

func TestShuffleClips_MovesMultiview(t *testing.T) {
	m := buildManifest([]int{2, 1, 3}, true)
	// HOffset records the original index of each entry.
	orig := append([]Entry(nil), m.Entries...)
	ShuffleClips(m, rand.New(rand.NewSource(3)))

	if len(m.Multiview) != len(m.Entries) {
		t.Fatalf("multiview length %d != entries %d", len(m.Multiview), len(m.Entries))
	}
	for i, e := range m.Entries {
		if orig[m.Multiview[i].HOffset] != e {
			t.Fatalf("entry %d (%+v) separated from its multiview params", i, e)
		}
	}
}
