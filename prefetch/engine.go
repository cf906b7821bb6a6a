package prefetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Noofbiz/flowprefetch/datasets"
	"github.com/Noofbiz/flowprefetch/flow"
)

var (
	// ErrStopped is returned by Next once the engine has been stopped.
	ErrStopped = errors.New("prefetch engine stopped")
	// ErrNotStarted is returned by Next before Start.
	ErrNotStarted = errors.New("prefetch engine not started")
)

// Option customises an Engine.
type Option func(*options)

type options struct {
	decoder     flow.Decoder
	transformer flow.Transformer
	log         zerolog.Logger
	rng         *rand.Rand
}

// WithDecoder replaces the default image decoder. The decoder is called from
// several goroutines at once.
func WithDecoder(d flow.Decoder) Option {
	return func(o *options) { o.decoder = d }
}

// WithTransformer replaces the default pixel transformer. The transformer is
// called from several goroutines at once, each with its own destination.
func WithTransformer(t flow.Transformer) Option {
	return func(o *options) { o.transformer = t }
}

// WithLogger sets the engine's logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRand sets the random source used for shuffling, skipping and
// sampling, overriding Config.Seed. The engine takes ownership of it.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

type fillResult struct {
	batch *Batch
	err   error
}

// Engine prefetches batches on a background goroutine. Two buffers
// alternate: while the consumer reads the batch returned by Next, the worker
// fills the other one.
type Engine struct {
	cfg     Config
	id      string
	log     zerolog.Logger
	shape   Shape
	sampler *sampler
	stats   counters

	requests chan *Batch
	results  chan fillResult
	done     chan struct{}

	// consumer side, guarded by mu
	mu      sync.Mutex
	bufs    [2]*Batch
	next    int
	pending bool
	failed  error

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedMu sync.Mutex
	started   bool
	stopped   atomic.Bool
}

// New loads and validates the manifest, optionally shuffles it and skips a
// random number of entries, probes one frame to plan the batch shape and
// allocates both buffers. It does not start the worker.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{
		decoder:     flow.ImageDecoder{},
		transformer: &flow.PixelTransformer{MeanValues: cfg.MeanValues, Scale: cfg.Scale},
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	rng := o.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}

	id := uuid.NewString()
	log := o.log.With().Str("engine", id[:8]).Logger()

	log.Info().Str("source", cfg.Source).Msg("opening manifest")
	m, err := datasets.LoadManifest(cfg.Source, cfg.Multiview)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(cfg.PairSize, cfg.PairSizeSub); err != nil {
		return nil, err
	}
	if cfg.Shuffle {
		log.Info().Msg("shuffling clips")
		datasets.ShuffleClips(m, rng)
	}
	log.Info().Int("entries", m.Len()).Int("clips", m.NumClips()).Msg("manifest loaded")

	cursor := 0
	if cfg.RandSkip > 0 {
		skip := rng.Intn(cfg.RandSkip)
		if skip >= m.Len() {
			return nil, fmt.Errorf("%w: cannot skip %d of %d entries", ErrManifest, skip, m.Len())
		}
		cursor = m.ClipStartAtOrBefore(skip)
		log.Info().Int("skip", skip).Int("cursor", cursor).Msg("skipping entries")
	}

	probePath := filepath.Join(cfg.RootFolder, m.Entries[cursor+1].Path)
	probeCtx := context.Background()
	if cfg.FrameTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(probeCtx, time.Duration(cfg.FrameTimeout))
		defer cancel()
	}
	probe, err := o.decoder.Decode(probeCtx, probePath, cfg.NewHeight, cfg.NewWidth, cfg.IsColor)
	if err != nil {
		return nil, fmt.Errorf("probe frame: %w", err)
	}
	shape, err := planShape(cfg, probe)
	if err != nil {
		return nil, err
	}
	log.Info().
		Stringer("shape", shape).
		Str("buffers", humanize.IBytes(uint64(2*4*(shape.Count()+shape.N*LabelWidth)))).
		Msg("batch shape planned")

	e := &Engine{
		cfg:   cfg,
		id:    id,
		log:   log,
		shape: shape,
		sampler: &sampler{
			cfg:         cfg,
			mode:        cfg.EncodingMode(),
			manifest:    m,
			cursor:      cursor,
			rng:         rng,
			decoder:     o.decoder,
			transformer: o.transformer,
			log:         log,
			frameRows:   probe.Rows,
			frameCols:   probe.Cols,
			imgChannels: probe.Channels,
		},
		requests: make(chan *Batch, 1),
		results:  make(chan fillResult, 1),
		done:     make(chan struct{}),
		bufs:     [2]*Batch{newBatch(shape), newBatch(shape)},
	}
	return e, nil
}

// ID identifies the engine in log lines.
func (e *Engine) ID() string { return e.id }

// Shape is the shape of every batch's data.
func (e *Engine) Shape() Shape { return e.shape }

// LabelShape is the shape of every batch's labels.
func (e *Engine) LabelShape() [2]int { return [2]int{e.shape.N, LabelWidth} }

// Config returns the effective configuration, defaults included.
func (e *Engine) Config() Config { return e.cfg }

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats { return e.stats.snapshot() }

// Start spawns the worker and begins filling the first buffer. The worker
// stops when ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.startedMu.Lock()
	defer e.startedMu.Unlock()
	if e.started || e.stopped.Load() {
		return fmt.Errorf("prefetch engine %s already started", e.id[:8])
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.started = true

	e.mu.Lock()
	e.requests <- e.bufs[0]
	e.next = 1
	e.pending = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run()
	return nil
}

// run fills one buffer per request until the context ends or a fill fails.
func (e *Engine) run() {
	defer e.wg.Done()
	defer close(e.done)

	var seq uint64
	for {
		select {
		case <-e.ctx.Done():
			return
		case b := <-e.requests:
			seq++
			b.Seq = seq
			st, err := e.sampler.fill(e.ctx, b)
			if e.ctx.Err() != nil {
				return
			}
			if err != nil {
				e.log.Error().Err(err).Uint64("seq", seq).Msg("fill failed")
				e.results <- fillResult{err: fmt.Errorf("fill batch %d: %w", seq, err)}
				return
			}
			e.stats.add(st)
			e.log.Debug().
				Uint64("seq", seq).
				Dur("plan", st.plan).
				Dur("load", st.load).
				Int("wraps", st.wraps).
				Msg("batch ready")
			e.results <- fillResult{batch: b}
		}
	}
}

// Next blocks until the outstanding fill completes and returns that batch,
// then starts filling the other buffer. The batch is valid until the next
// call to Next. A failed fill stops the worker; its error is returned by
// this and every later call.
func (e *Engine) Next(ctx context.Context) (*Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failed != nil {
		return nil, e.failed
	}
	if !e.pending {
		return nil, ErrNotStarted
	}

	var r fillResult
	select {
	case r = <-e.results:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		// a failing worker sends its result before exiting
		select {
		case r = <-e.results:
		default:
			e.failed = e.exitErr()
			e.pending = false
			return nil, e.failed
		}
	}

	e.pending = false
	if r.err != nil {
		e.failed = r.err
		return nil, r.err
	}

	e.requests <- e.bufs[e.next]
	e.next = 1 - e.next
	e.pending = true
	return r.batch, nil
}

func (e *Engine) exitErr() error {
	if e.stopped.Load() {
		return ErrStopped
	}
	if err := context.Cause(e.ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}
	return ErrStopped
}

// Stop cancels the worker, waits for it to exit and releases both buffers.
// It is safe to call more than once.
func (e *Engine) Stop() error {
	e.startedMu.Lock()
	started := e.started
	wasStopped := e.stopped.Swap(true)
	e.startedMu.Unlock()
	if wasStopped {
		return nil
	}

	if started {
		e.cancel()
		e.wg.Wait()
	}

	e.mu.Lock()
	e.bufs = [2]*Batch{}
	if e.failed == nil {
		e.failed = ErrStopped
	}
	e.pending = false
	e.mu.Unlock()

	st := e.Stats()
	e.log.Info().Uint64("batches", st.Batches).Uint64("wraps", st.Wraps).Msg("engine stopped")
	return nil
}
