package main

import (
	"encoding/csv"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/flowprefetch/prefetch"
)

// maxValueSamples bounds the values kept for the value histogram.
const maxValueSamples = 200000

// itemRow is one batch item as written to the CSV.
type itemRow struct {
	seq        uint64
	item       int
	clip       string
	clipLength int
	frame      int
	// position of the frame within its clip, in [0, 1]
	position float64
}

type report struct {
	pairSizeSub int
	items       []itemRow
	samples     []float64
	values      int
}

func newReport(pairSizeSub int) *report {
	return &report{pairSizeSub: max(pairSizeSub, 1)}
}

// add records every item of b and returns the batch's per channel mean and
// standard deviation.
func (r *report) add(b *prefetch.Batch) (means, stds []float64) {
	s := b.Shape
	plane := s.H * s.W
	means = make([]float64, s.C)
	stds = make([]float64, s.C)
	ch := make([]float64, 0, s.N*plane)
	for c := 0; c < s.C; c++ {
		ch = ch[:0]
		for n := 0; n < s.N; n++ {
			off := s.Offset(n, c)
			for _, v := range b.Data[off : off+plane] {
				ch = append(ch, float64(v))
			}
		}
		means[c], stds[c] = stat.MeanStdDev(ch, nil)
	}

	for n := 0; n < s.N; n++ {
		length, _ := b.Label(n)
		videoFrames := int(length) / r.pairSizeSub
		pos := 0.0
		if videoFrames > 1 {
			pos = float64(b.Frames[n]) / float64(videoFrames-1)
		}
		r.items = append(r.items, itemRow{
			seq:        b.Seq,
			item:       n,
			clip:       b.Clips[n],
			clipLength: int(length),
			frame:      b.Frames[n],
			position:   pos,
		})
	}

	// keep an evenly strided subset of the values
	stride := max(len(b.Data)/1000, 1)
	for i := 0; i < len(b.Data) && len(r.samples) < maxValueSamples; i += stride {
		r.samples = append(r.samples, float64(b.Data[i]))
	}
	r.values += len(b.Data)
	return means, stds
}

func (r *report) writeCSV(path string) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"seq", "item", "clip", "clip_length", "frame", "position"}); err != nil {
		return err
	}
	for _, it := range r.items {
		rec := []string{
			strconv.FormatUint(it.seq, 10),
			strconv.Itoa(it.item),
			it.clip,
			strconv.Itoa(it.clipLength),
			strconv.Itoa(it.frame),
			strconv.FormatFloat(it.position, 'f', 4, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// plot writes the frame position and value histograms plus a scatter of
// sampled frame against clip length. It returns the written paths.
func (r *report) plot(dir string) ([]string, error) {
	if len(r.items) == 0 {
		return nil, fmt.Errorf("nothing to plot")
	}
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	positions := make(plotter.Values, len(r.items))
	frames := make(plotter.XYs, len(r.items))
	for i, it := range r.items {
		positions[i] = it.position
		frames[i] = plotter.XY{X: float64(it.clipLength), Y: float64(it.frame)}
	}

	var paths []string
	save := func(p *plot.Plot, name string) error {
		path := filepath.Join(dir, name)
		if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	p, err := histogram(positions, 20, "Sampled frame position within clip", "position")
	if err != nil {
		return nil, err
	}
	if err := save(p, "frame_positions.png"); err != nil {
		return nil, err
	}

	if len(r.samples) > 0 {
		p, err = histogram(plotter.Values(r.samples), 50, "Batch values", "value")
		if err != nil {
			return nil, err
		}
		if err := save(p, "values.png"); err != nil {
			return nil, err
		}
	}

	p = plot.New()
	p.Title.Text = "Sampled frame vs clip length"
	p.X.Label.Text = "clip length"
	p.Y.Label.Text = "frame"
	sc, err := plotter.NewScatter(frames)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 180}
	sc.GlyphStyle.Radius = vg.Points(2)
	p.Add(sc, plotter.NewGrid())
	if err := save(p, "frames.png"); err != nil {
		return nil, err
	}
	return paths, nil
}

func histogram(vs plotter.Values, bins int, title, xlabel string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "count"
	h, err := plotter.NewHist(vs, bins)
	if err != nil {
		return nil, err
	}
	h.FillColor = color.RGBA{R: 120, G: 120, B: 120, A: 200}
	p.Add(h)
	return p, nil
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
