package datasets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrManifest is returned (wrapped) for unreadable or structurally invalid
// manifests.
var ErrManifest = errors.New("manifest error")

// Entry is a single manifest line. For a clip's key entry ClipLength is the
// number of entries that immediately follow it and belong to the same clip.
type Entry struct {
	Path       string
	ClipLength int
}

// MultiviewParams holds the fixed crop offsets and mirror flag used for
// deterministic multi-crop evaluation.
type MultiviewParams struct {
	HOffset int
	WOffset int
	Mirror  bool
}

// Manifest is the ordered list of entries of a clip list file. Multiview is
// either nil or has exactly one element per entry.
type Manifest struct {
	Entries   []Entry
	Multiview []MultiviewParams
}

// LoadManifest reads a clip list. Every entry is "<path> <label>", followed by
// "<h_off> <w_off> <mirror>" when multiview is set. Tokens are whitespace
// separated, so an entry does not have to sit on a single line. Paths ending
// in ".zst" are decompressed on the fly.
func LoadManifest(path string, multiview bool) (*Manifest, error) {
	rc, err := openMaybeCompressed(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrManifest, path, err)
	}
	defer rc.Close()

	m, err := ParseManifest(rc, multiview)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseManifest parses manifest tokens from r.
func ParseManifest(r io.Reader, multiview bool) (*Manifest, error) {
	sc := newTokenScanner(r)
	m := &Manifest{}

	for {
		name, ok := sc.next()
		if !ok {
			break
		}
		label, err := sc.nextInt("label")
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, Entry{Path: name, ClipLength: label})

		if !multiview {
			continue
		}
		hOff, err := sc.nextInt("h_off")
		if err != nil {
			return nil, err
		}
		wOff, err := sc.nextInt("w_off")
		if err != nil {
			return nil, err
		}
		mirror, err := sc.nextInt("mirror")
		if err != nil {
			return nil, err
		}
		m.Multiview = append(m.Multiview, MultiviewParams{
			HOffset: hOff,
			WOffset: wOff,
			Mirror:  mirror != 0,
		})
	}
	if err := sc.err(); err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrManifest, err)
	}
	if len(m.Entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrManifest)
	}
	return m, nil
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.Entries)
}

// ClipStarts returns the index of every clip key entry, walking the manifest
// from the start.
func (m *Manifest) ClipStarts() []int {
	var starts []int
	for i := 0; i < len(m.Entries); i += m.Entries[i].ClipLength + 1 {
		starts = append(starts, i)
		if m.Entries[i].ClipLength < 0 {
			// A negative length would never advance.
			break
		}
	}
	return starts
}

// NumClips returns the number of clips in the manifest.
func (m *Manifest) NumClips() int {
	return len(m.ClipStarts())
}

// ClipStartAtOrBefore returns the key entry index of the clip containing
// entry idx.
func (m *Manifest) ClipStartAtOrBefore(idx int) int {
	start := 0
	for _, s := range m.ClipStarts() {
		if s > idx {
			break
		}
		start = s
	}
	return start
}

// Validate checks the clip structure against the sampling geometry: every
// clip must have room for pairSize samples of pairSizeSub entries each and
// must not run past the end of the manifest.
func (m *Manifest) Validate(pairSize, pairSizeSub int) error {
	if m.Multiview != nil && len(m.Multiview) != len(m.Entries) {
		return fmt.Errorf("%w: %d multiview params for %d entries", ErrManifest, len(m.Multiview), len(m.Entries))
	}
	minLen := pairSize * pairSizeSub
	n := len(m.Entries)
	for i := 0; i < n; {
		e := m.Entries[i]
		if e.ClipLength < minLen {
			return fmt.Errorf("%w: clip %q at entry %d has length %d, need at least %d (pair_size %d x pair_size_sub %d)",
				ErrManifest, e.Path, i, e.ClipLength, minLen, pairSize, pairSizeSub)
		}
		end := i + e.ClipLength + 1
		if end > n {
			return fmt.Errorf("%w: clip %q at entry %d declares %d frames but only %d entries follow",
				ErrManifest, e.Path, i, e.ClipLength, n-i-1)
		}
		i = end
	}
	return nil
}

// tokenScanner splits a manifest into whitespace separated tokens while
// tracking the line number for error messages.
type tokenScanner struct {
	lines  *bufio.Scanner
	fields []string
	line   int
}

func newTokenScanner(r io.Reader) *tokenScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return &tokenScanner{lines: s}
}

func (t *tokenScanner) next() (string, bool) {
	for len(t.fields) == 0 {
		if !t.lines.Scan() {
			return "", false
		}
		t.line++
		t.fields = strings.Fields(t.lines.Text())
	}
	tok := t.fields[0]
	t.fields = t.fields[1:]
	return tok, true
}

func (t *tokenScanner) nextInt(what string) (int, error) {
	tok, ok := t.next()
	if !ok {
		return 0, fmt.Errorf("%w: line %d: missing %s", ErrManifest, t.line, what)
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: line %d: bad %s %q", ErrManifest, t.line, what, tok)
	}
	return v, nil
}

func (t *tokenScanner) err() error {
	return t.lines.Err()
}
