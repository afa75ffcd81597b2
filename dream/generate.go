package dream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand"
	"sync/atomic"
	"time"
)

// Status tells whether a run finished or was cut short
type Status int

const (
	StatusCompleted Status = iota
	StatusBudgetExhausted
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusBudgetExhausted:
		return "budget exhausted"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of a run. Image always has the input's size and channels.
type Result struct {
	Image      *Image
	Status     Status
	Warnings   []error // *DivergenceError per aborted octave
	Octaves    int     // octaves fully run
	Iterations int     // updates applied across all octaves
	Objective  float64 // objective of the last applied update
}

// Snapshot is the working image after an octave. A run stopped early by its budget or
// context yields a final snapshot at full size with Status set accordingly.
type Snapshot struct {
	Octave     Octave
	Image      *Image
	Status     Status
	Iterations int
	Objective  float64
	Warning    error // set when this octave diverged
}

// Option configures a Dreamer
type Option func(*Dreamer)

// WithObserver adds a progress observer; may be given more than once
func WithObserver(o Observer) Option {
	return func(d *Dreamer) {
		d.observers = append(d.observers, o)
	}
}

// WithNormalizer replaces the ImageNet statistics
func WithNormalizer(n Normalizer) Option {
	return func(d *Dreamer) {
		d.normalizer = n
	}
}

// Dreamer runs one validated RunConfig against one extractor. It holds no per-run
// state, so Generate may be called concurrently.
type Dreamer struct {
	extractor  FeatureExtractor
	cfg        RunConfig
	normalizer Normalizer
	observers  multiObserver
	observer   Observer
}

// NewDreamer validates cfg against the extractor before anything is computed
func NewDreamer(extractor FeatureExtractor, cfg RunConfig, opts ...Option) (*Dreamer, error) {
	if extractor == nil {
		return nil, &ResourceError{Resource: "extractor", Err: errors.New("nil feature extractor")}
	}
	cfg.Layers = append([]string(nil), cfg.Layers...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := extractor.Validate(cfg.Layers); err != nil {
		return nil, &ConfigError{Field: "layers", Err: err}
	}

	d := &Dreamer{
		extractor:  extractor,
		cfg:        cfg,
		normalizer: ImageNetNormalizer(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.normalizer.validate(); err != nil {
		return nil, &ConfigError{Field: "normalizer", Err: err}
	}
	if got, want := d.normalizer.Channels(), extractor.InputChannels(); got != want {
		return nil, configErrorf("normalizer", "has %d channels, extractor expects %d", got, want)
	}

	switch len(d.observers) {
	case 0:
		d.observer = nopObserver{}
	case 1:
		d.observer = d.observers[0]
	default:
		d.observer = d.observers
	}
	return d, nil
}

// Config returns the validated config
func (d *Dreamer) Config() RunConfig {
	return d.cfg
}

// Generate runs every octave and returns the final image.
// Cancellation and budget exhaustion are not errors: the best image so far is returned with
// the matching Status. Divergence is reported in Result.Warnings.
func (d *Dreamer) Generate(ctx context.Context, img *Image) (*Result, error) {
	return d.run(ctx, img, nil)
}

// Snapshots yields the working image after each octave as it is produced.
// The sequence may be ranged over once; later ranges yield ErrSequenceConsumed.
func (d *Dreamer) Snapshots(ctx context.Context, img *Image) iter.Seq2[Snapshot, error] {
	var used atomic.Bool
	return func(yield func(Snapshot, error) bool) {
		if used.Swap(true) {
			yield(Snapshot{}, ErrSequenceConsumed)
			return
		}
		stopped := false
		_, err := d.run(ctx, img, func(s Snapshot) bool {
			if !yield(s, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(Snapshot{}, err)
		}
	}
}

// Generate is a one-shot NewDreamer + Generate
func Generate(ctx context.Context, extractor FeatureExtractor, img *Image, cfg RunConfig, opts ...Option) (*Result, error) {
	d, err := NewDreamer(extractor, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return d.Generate(ctx, img)
}

// errStopped ends a run whose consumer stopped pulling snapshots
var errStopped = errors.New("snapshot consumer stopped")

func (d *Dreamer) run(ctx context.Context, img *Image, emit func(Snapshot) bool) (*Result, error) {
	if err := img.Validate(); err != nil {
		return nil, &ConfigError{Field: "image", Err: err}
	}
	if img.Channels != 1 && img.Channels != d.normalizer.Channels() {
		return nil, configErrorf("image", "has %d channels, network takes 1 or %d", img.Channels, d.normalizer.Channels())
	}
	pyramid, err := NewPyramid(img, d.cfg.Octaves, d.cfg.OctaveScale)
	if err != nil {
		return nil, err
	}

	r := &runState{
		dreamer: d,
		ctx:     ctx,
		rng:     rand.New(rand.NewSource(d.cfg.Seed)),
		start:   time.Now(),
		result:  &Result{Status: StatusCompleted},
	}

	octaves := pyramid.Octaves()
	working := Resize(img, octaves[0].Width, octaves[0].Height)
	working.Clip()

	for i, octave := range octaves {
		if i > 0 {
			working, err = pyramid.Detail(working, octave.Width, octave.Height)
			if err != nil {
				return nil, err
			}
		}

		var warning *DivergenceError
		working, warning, err = r.ascend(working, octave)
		if err != nil {
			return nil, err
		}

		if r.result.Status != StatusCompleted {
			// Bring the partial image up to full size so the output shape never changes
			if i < len(octaves)-1 {
				working, err = pyramid.Detail(working, img.Width, img.Height)
				if err != nil {
					return nil, err
				}
			}
			r.result.Image = working
			if emit != nil {
				emit(r.snapshot(octaves[len(octaves)-1], working, warning))
			}
			return r.result, nil
		}

		r.result.Octaves++
		if emit != nil && !emit(r.snapshot(octave, working.Clone(), warning)) {
			return nil, errStopped
		}
	}

	r.result.Image = working
	return r.result, nil
}

// runState is the mutable state of one run
type runState struct {
	dreamer *Dreamer
	ctx     context.Context
	rng     *rand.Rand
	start   time.Time
	result  *Result
}

func (r *runState) snapshot(octave Octave, img *Image, warning *DivergenceError) Snapshot {
	s := Snapshot{
		Octave:     octave,
		Image:      img,
		Status:     r.result.Status,
		Iterations: r.result.Iterations,
		Objective:  r.result.Objective,
	}
	if warning != nil {
		s.Warning = warning
	}
	return s
}

// budgetStatus reports why the run must stop before the next update, if it must
func (r *runState) budgetStatus() Status {
	if r.ctx.Err() != nil {
		return StatusCanceled
	}
	b := r.dreamer.cfg.Budget
	if b.MaxIterations > 0 && r.result.Iterations >= b.MaxIterations {
		return StatusBudgetExhausted
	}
	if b.MaxDuration > 0 && time.Since(r.start) >= b.MaxDuration {
		return StatusBudgetExhausted
	}
	return StatusCompleted
}

// ascend runs the iterations of one octave. On divergence the last valid image is kept
// and the divergence is returned as a warning, not an error.
func (r *runState) ascend(img *Image, octave Octave) (*Image, *DivergenceError, error) {
	d := r.dreamer
	octaveStart := time.Now()
	done := 0
	var warning *DivergenceError

	for it := 0; it < d.cfg.Iterations; it++ {
		if status := r.budgetStatus(); status != StatusCompleted {
			r.result.Status = status
			break
		}

		step, err := d.step(img, it, r.rng)
		if err != nil {
			var div *DivergenceError
			if errors.As(err, &div) {
				div.Octave, div.Iteration = octave.Index, it
				r.result.Warnings = append(r.result.Warnings, div)
				warning = div
				break
			}
			return nil, nil, fmt.Errorf("octave %d iteration %d: %w", octave.Index, it, err)
		}

		img = step.image
		done++
		r.result.Iterations++
		r.result.Objective = step.objective

		d.observer.OnIteration(Event{
			Type:      "iteration",
			Octave:    octave.Index,
			Iteration: it,
			Width:     img.Width,
			Height:    img.Height,
			Objective: step.objective,
			GradStd:   step.gradStd,
			Sigma:     step.sigma,
			Stats:     computePixelStats(img.Pix),
			Elapsed:   time.Since(octaveStart),
		})
	}

	d.observer.OnOctave(Event{
		Type:      "octave",
		Octave:    octave.Index,
		Iteration: done,
		Width:     img.Width,
		Height:    img.Height,
		Objective: r.result.Objective,
		Stats:     computePixelStats(img.Pix),
		Elapsed:   time.Since(octaveStart),
		Diverged:  warning != nil,
		Image:     img,
	})
	return img, warning, nil
}
