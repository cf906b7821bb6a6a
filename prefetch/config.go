package prefetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/Noofbiz/flowprefetch/datasets"
	"github.com/Noofbiz/flowprefetch/flow"
)

var (
	// ErrConfig is returned (wrapped) for malformed or contradictory
	// configuration.
	ErrConfig = errors.New("config error")
	// ErrManifest is returned (wrapped) for unreadable or invalid manifests.
	ErrManifest = datasets.ErrManifest
	// ErrDecode is returned (wrapped) when a frame cannot be read.
	ErrDecode = flow.ErrDecode
)

// Config describes the clip list, the sampling geometry and the frame
// encoding. It is immutable once an Engine has been created from it.
type Config struct {
	// Source is the manifest path; RootFolder is prepended to every entry.
	Source     string `json:"source"`
	RootFolder string `json:"root_folder"`

	// BatchSize items per batch; must be a multiple of PairSize.
	BatchSize int `json:"batch_size"`
	// PairSize is the number of temporal samples drawn per clip.
	PairSize int `json:"pair_size"`
	// PairSizeSub is the number of manifest entries per super-frame
	// (e.g. 2 for flow x/y pairs). Default 1.
	PairSizeSub int `json:"pair_size_sub"`
	// FrameNum is the number of consecutive frames stacked per sample.
	// Default 1.
	FrameNum int `json:"frame_num"`

	// NewHeight and NewWidth resize every frame when both are positive.
	NewHeight int  `json:"new_height"`
	NewWidth  int  `json:"new_width"`
	CropSize  int  `json:"crop_size"`
	IsColor   bool `json:"is_color"`

	Shuffle   bool `json:"shuffle"`
	RandSkip  int  `json:"rand_skip"`
	Multiview bool `json:"multiview"`
	// ClassNum is accepted for compatibility with existing layer
	// definitions and does not affect sampling.
	ClassNum int `json:"class_num"`

	// RandFrame jitters each sampled frame index.
	RandFrame bool `json:"rand_frame"`
	// RangeScale caps the jitter range; <= 0 means no cap.
	RangeScale int `json:"range_scale"`
	// ColorAug draws a per channel factor in [0.8, 1.2] for every frame.
	ColorAug bool `json:"color_aug"`

	// ReadMode selects the frame encoding: 0 passthrough, 2 centered byte
	// scale, 3 min/max byte scale, 4 raw float, 5 clamped byte scale.
	ReadMode int `json:"read_mode"`
	// Bound is the flow magnitude encoded by pixel values 0 and 255.
	Bound float32 `json:"bound"`

	// Mirror enables random horizontal mirroring (one draw per clip) when
	// not in multiview mode.
	Mirror bool `json:"mirror"`
	// RandomCrop draws crop offsets per clip; otherwise crops are centered.
	RandomCrop bool `json:"random_crop"`
	// MeanValues and Scale are applied by the default transformer.
	MeanValues []float32 `json:"mean_values,omitempty"`
	Scale      float32   `json:"scale"`

	// MultiviewFromKeyEntry reads a clip's multiview params from its key
	// entry. By default they are read from the entry after the key, which is
	// how existing multiview lists were generated.
	MultiviewFromKeyEntry bool `json:"multiview_from_key_entry"`

	// Seed for the engine's random source. 0 picks a time based seed.
	Seed int64 `json:"seed"`
	// DecodeWorkers bounds concurrent frame decodes within one batch.
	// Default runtime.NumCPU().
	DecodeWorkers int `json:"decode_workers"`
	// FrameTimeout bounds a single frame decode; 0 disables it.
	FrameTimeout Duration `json:"frame_timeout"`
}

// Duration is a time.Duration that reads and writes JSON as a string such as
// "250ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if nerr := json.Unmarshal(b, &n); nerr != nil {
			return fmt.Errorf("duration must be a string like \"2s\": %w", err)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadConfig reads a JSON config file. Missing fields keep their zero value
// and get defaults when the engine is created.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}
	return cfg, nil
}

// withDefaults fills zero values that have a sensible default.
func (c Config) withDefaults() Config {
	if c.PairSizeSub == 0 {
		c.PairSizeSub = 1
	}
	if c.FrameNum == 0 {
		c.FrameNum = 1
	}
	if c.DecodeWorkers <= 0 {
		c.DecodeWorkers = runtime.NumCPU()
	}
	if c.Scale == 0 {
		c.Scale = 1
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Validate checks the configuration on its own, before any file is read.
func (c Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("%w: source is required", ErrConfig)
	}
	if (c.NewHeight == 0) != (c.NewWidth == 0) || c.NewHeight < 0 || c.NewWidth < 0 {
		return fmt.Errorf("%w: new_height and new_width must be set together (got %d, %d)", ErrConfig, c.NewHeight, c.NewWidth)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrConfig, c.BatchSize)
	}
	if c.PairSize < 2 {
		return fmt.Errorf("%w: pair_size must be at least 2 to span a clip, got %d", ErrConfig, c.PairSize)
	}
	if c.BatchSize%c.PairSize != 0 {
		return fmt.Errorf("%w: batch_size %d is not a multiple of pair_size %d", ErrConfig, c.BatchSize, c.PairSize)
	}
	if c.PairSizeSub < 1 || c.FrameNum < 1 {
		return fmt.Errorf("%w: pair_size_sub and frame_num must be positive (got %d, %d)", ErrConfig, c.PairSizeSub, c.FrameNum)
	}
	if c.CropSize < 0 || c.RandSkip < 0 {
		return fmt.Errorf("%w: crop_size and rand_skip must not be negative", ErrConfig)
	}
	mode, err := flow.ParseReadMode(c.ReadMode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if mode != flow.Passthrough {
		if c.Bound <= 0 {
			return fmt.Errorf("%w: read_mode %d needs a positive bound, got %v", ErrConfig, c.ReadMode, c.Bound)
		}
		if c.IsColor {
			return fmt.Errorf("%w: read_mode %d decodes single channel flow images, is_color must be false", ErrConfig, c.ReadMode)
		}
	}
	return nil
}

// EncodingMode returns the frame encoding selected by ReadMode.
func (c Config) EncodingMode() flow.EncodingMode {
	mode, _ := flow.ParseReadMode(c.ReadMode)
	return mode
}
