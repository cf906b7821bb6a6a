package prefetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/flowprefetch/datasets"
	"github.com/Noofbiz/flowprefetch/flow"
)

// sampleFrameIndices picks pairSize frame indices spread across a clip of
// videoFrames super-frames. Index i sits at floor(i*gap) with
// gap = videoFrames/(pairSize-1), optionally jittered by a draw in
// [-perturbRange/2, perturbRange/2), and is clamped to [0, videoFrames-1].
func sampleFrameIndices(videoFrames, pairSize, perturbRange int, jitter bool, rng *rand.Rand) ([]int, error) {
	if pairSize < 2 {
		return nil, fmt.Errorf("%w: pair_size %d cannot span a clip", ErrConfig, pairSize)
	}
	gap := float64(videoFrames) / float64(pairSize-1)
	if gap <= 0 {
		return nil, fmt.Errorf("%w: clip of %d frames gives frame gap %v", ErrConfig, videoFrames, gap)
	}
	if perturbRange < 1 {
		perturbRange = 1
	}

	ids := make([]int, pairSize)
	for i := range ids {
		id := int(float64(i) * gap)
		if jitter {
			id += rng.Intn(perturbRange) - perturbRange/2
		}
		ids[i] = min(max(id, 0), videoFrames-1)
	}
	return ids, nil
}

// perturbRange is half the frame gap, at least 1, capped by rangeScale when
// rangeScale is positive.
func perturbRange(videoFrames, pairSize, rangeScale int) int {
	gap := float64(videoFrames) / float64(pairSize-1)
	r := max(int(gap/2), 1)
	if rangeScale > 0 {
		r = min(r, rangeScale)
	}
	return r
}

// frameJob decodes one frame into its slot of a batch.
type frameJob struct {
	path   string
	dst    []float32
	params flow.TransformParams
	// negate flips the sign of encoded flow values; it is the clip's mirror
	// decision except on the second entry of a channel pair.
	negate bool
}

// fillStats reports how long a fill spent planning and loading.
type fillStats struct {
	plan  time.Duration
	load  time.Duration
	wraps int
}

// sampler is the worker-owned state: the manifest order, the cursor and the
// random source. Nothing else may touch it once the engine has started.
type sampler struct {
	cfg         Config
	mode        flow.EncodingMode
	manifest    *datasets.Manifest
	cursor      int
	rng         *rand.Rand
	decoder     flow.Decoder
	transformer flow.Transformer
	log         zerolog.Logger

	// frame size of the probe decode; crop offsets are drawn against it
	frameRows int
	frameCols int
	// channels of one decoded frame
	imgChannels int
}

// fill samples the next BatchSize/PairSize clips into b. All random draws
// happen here, in order, before the decodes run concurrently.
func (s *sampler) fill(ctx context.Context, b *Batch) (fillStats, error) {
	var st fillStats
	start := time.Now()

	videos := s.cfg.BatchSize / s.cfg.PairSize
	jobs := make([]frameJob, 0, s.cfg.BatchSize*s.cfg.FrameNum*s.cfg.PairSizeSub)
	for v := 0; v < videos; v++ {
		var err error
		var wrapped bool
		jobs, wrapped, err = s.planClip(b, v, videos, jobs)
		if err != nil {
			return st, err
		}
		if wrapped {
			st.wraps++
		}
	}
	st.plan = time.Since(start)

	start = time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DecodeWorkers)
	for _, j := range jobs {
		g.Go(func() error {
			return s.load(gctx, j)
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}
	st.load = time.Since(start)
	return st, nil
}

// planClip consumes the clip at the cursor, writes its labels and metadata
// into b and appends one job per frame to jobs.
func (s *sampler) planClip(b *Batch, clip, videos int, jobs []frameJob) ([]frameJob, bool, error) {
	m := s.manifest
	key := s.cursor
	if key >= m.Len() {
		return jobs, false, fmt.Errorf("%w: cursor %d past end of %d entries", ErrManifest, key, m.Len())
	}
	entry := m.Entries[key]
	pss := s.cfg.PairSizeSub
	videoFrames := entry.ClipLength / pss

	ids, err := sampleFrameIndices(videoFrames, s.cfg.PairSize,
		perturbRange(videoFrames, s.cfg.PairSize, s.cfg.RangeScale), s.cfg.RandFrame, s.rng)
	if err != nil {
		return jobs, false, fmt.Errorf("clip %q: %w", entry.Path, err)
	}
	// frames start right after the key entry
	first := key + 1

	mirror, hOff, wOff := s.clipView(key)
	frameSize := s.imgChannels * b.Shape.H * b.Shape.W
	for i, id := range ids {
		item := i*videos + clip
		for f := 0; f < s.cfg.FrameNum; f++ {
			for p := 0; p < pss; p++ {
				e := m.Entries[first+id*pss+p]
				path, err := datasets.ResolveFramePath(e.Path, f)
				if err != nil {
					return jobs, false, fmt.Errorf("%w: entry %d: %v", ErrManifest, first+id*pss+p, err)
				}
				var scales []float32
				if s.cfg.ColorAug {
					scales = make([]float32, s.imgChannels)
					for c := range scales {
						scales[c] = 0.8 + 0.4*s.rng.Float32()
					}
				}
				off := b.Shape.Offset(item, s.imgChannels*(f*pss+p))
				jobs = append(jobs, frameJob{
					path: filepath.Join(s.cfg.RootFolder, path),
					dst:  b.Data[off : off+frameSize],
					params: flow.TransformParams{
						CropSize:     s.cfg.CropSize,
						HOffset:      hOff,
						WOffset:      wOff,
						Mirror:       mirror,
						ChannelScale: scales,
					},
					negate: mirror && p != 1,
				})
			}
		}
		b.Labels[item*LabelWidth] = float32(entry.ClipLength)
		b.Labels[item*LabelWidth+1] = 1
		b.Frames[item] = id
		b.Clips[item] = entry.Path
	}

	s.cursor = first + entry.ClipLength
	if s.cursor < m.Len() {
		return jobs, false, nil
	}
	s.cursor = 0
	if s.cfg.Shuffle {
		datasets.ShuffleClips(m, s.rng)
	}
	s.log.Debug().Bool("shuffled", s.cfg.Shuffle).Msg("manifest wrapped")
	return jobs, true, nil
}

// clipView returns the mirror flag and crop offsets shared by every frame
// of the clip whose key entry is at key.
func (s *sampler) clipView(key int) (mirror bool, hOff, wOff int) {
	m := s.manifest
	if m.Multiview != nil {
		idx := key + 1
		if s.cfg.MultiviewFromKeyEntry {
			idx = key
		}
		mv := m.Multiview[idx]
		return mv.Mirror, mv.HOffset, mv.WOffset
	}

	if s.cfg.Mirror {
		mirror = s.rng.Intn(2) == 1
	}
	if crop := s.cfg.CropSize; crop > 0 {
		if s.cfg.RandomCrop {
			hOff = s.rng.Intn(s.frameRows - crop + 1)
			wOff = s.rng.Intn(s.frameCols - crop + 1)
		} else {
			hOff = (s.frameRows - crop) / 2
			wOff = (s.frameCols - crop) / 2
		}
	}
	return mirror, hOff, wOff
}

// load decodes, encodes and transforms one frame into its slot.
func (s *sampler) load(ctx context.Context, j frameJob) error {
	if timeout := time.Duration(s.cfg.FrameTimeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	img, err := s.decoder.Decode(ctx, j.path, s.cfg.NewHeight, s.cfg.NewWidth, s.cfg.IsColor)
	if err != nil {
		if !errors.Is(err, flow.ErrDecode) {
			err = &flow.DecodeError{Path: j.path, Err: err}
		}
		return err
	}
	if img.Channels != s.imgChannels {
		return &flow.DecodeError{Path: j.path, Err: fmt.Errorf("decoded %d channels, batch expects %d", img.Channels, s.imgChannels)}
	}

	var d *flow.Datum
	if s.mode == flow.Passthrough {
		d = flow.DatumFromRaw(img)
	} else if d, err = flow.Encode(img, s.cfg.Bound, j.negate, s.mode); err != nil {
		return fmt.Errorf("encode %s: %w", j.path, err)
	}
	if err := s.transformer.Transform(d, j.dst, j.params); err != nil {
		return fmt.Errorf("transform %s: %w", j.path, err)
	}
	return nil
}
