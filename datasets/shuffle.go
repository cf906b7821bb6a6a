package datasets

import "math/rand"

// ShuffleClips permutes the manifest at clip granularity. Each clip (a key
// entry plus its ClipLength trailing entries) is moved as one contiguous run,
// so clip boundaries and the frame order inside a clip never change.
// Multiview params, when present, move with their entries.
func ShuffleClips(m *Manifest, rng *rand.Rand) {
	starts := m.ClipStarts()
	rng.Shuffle(len(starts), func(i, j int) {
		starts[i], starts[j] = starts[j], starts[i]
	})

	n := len(m.Entries)
	entries := make([]Entry, 0, n)
	var views []MultiviewParams
	if m.Multiview != nil {
		views = make([]MultiviewParams, 0, n)
	}
	for _, s := range starts {
		end := min(s+m.Entries[s].ClipLength+1, n)
		entries = append(entries, m.Entries[s:end]...)
		if views != nil {
			views = append(views, m.Multiview[s:end]...)
		}
	}
	m.Entries = entries
	m.Multiview = views
}
