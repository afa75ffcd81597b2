package dream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Observer receives progress events from a run. Calls happen on the run's goroutine.
type Observer interface {
	OnIteration(event Event)
	OnOctave(event Event)
}

// PixelStats summarizes an image after an update
type PixelStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Event describes one finished iteration or octave
type Event struct {
	Type      string        `json:"type"` // "iteration" or "octave"
	Octave    int           `json:"octave"`
	Iteration int           `json:"iteration"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Objective float64       `json:"objective"`
	GradStd   float64       `json:"grad_std,omitempty"`
	Sigma     float64       `json:"sigma,omitempty"`
	Stats     PixelStats    `json:"stats"`
	Elapsed   time.Duration `json:"elapsed"`
	Diverged  bool          `json:"diverged,omitempty"`

	// Image is the working image; only set for octave events. Observers must not modify it.
	Image *Image `json:"-"`
}

func computePixelStats(pix []float64) PixelStats {
	if len(pix) == 0 {
		return PixelStats{}
	}
	mean, std := stat.MeanStdDev(pix, nil)
	if len(pix) < 2 {
		std = 0
	}
	return PixelStats{
		Mean: mean,
		Std:  std,
		Min:  floats.Min(pix),
		Max:  floats.Max(pix),
	}
}

// ConsoleObserver prints events to stdout
type ConsoleObserver struct {
	Verbose bool // If true, print every iteration, not just octaves
}

func (o *ConsoleObserver) OnIteration(event Event) {
	if !o.Verbose {
		return
	}
	fmt.Printf("[ITR] octave %d iter %d: objective=%.5f grad_std=%.3g sigma=%.2f pixels=[%.3f, %.3f]\n",
		event.Octave, event.Iteration, event.Objective, event.GradStd, event.Sigma,
		event.Stats.Min, event.Stats.Max)
}

func (o *ConsoleObserver) OnOctave(event Event) {
	status := "done"
	if event.Diverged {
		status = "diverged"
	}
	fmt.Printf("[OCT] octave %d (%dx%d) %s after %d iterations: objective=%.5f mean=%.3f in %v\n",
		event.Octave, event.Width, event.Height, status, event.Iteration,
		event.Objective, event.Stats.Mean, event.Elapsed.Round(time.Millisecond))
}

// httpQueueSize bounds the events waiting to be posted; further events are dropped
const httpQueueSize = 64

// defaultHTTPTimeout applies when NewHTTPObserver is given no timeout
const defaultHTTPTimeout = 100 * time.Millisecond

// HTTPObserver posts events as JSON to an endpoint (for live plotting).
// One worker posts in order; when the endpoint falls behind, events are dropped
// rather than slowing the run. Close flushes the queue and stops the worker.
type HTTPObserver struct {
	URL    string
	client *http.Client

	mu      sync.RWMutex
	closed  bool
	queue   chan []byte
	done    chan struct{}
	dropped atomic.Int64
}

// NewHTTPObserver starts the posting worker. A timeout <= 0 uses 100ms per request.
func NewHTTPObserver(url string, timeout time.Duration) *HTTPObserver {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	o := &HTTPObserver{
		URL:    url,
		client: &http.Client{Timeout: timeout},
		queue:  make(chan []byte, httpQueueSize),
		done:   make(chan struct{}),
	}
	go o.worker()
	return o
}

func (o *HTTPObserver) OnIteration(event Event) {
	o.sendEvent(event)
}

func (o *HTTPObserver) OnOctave(event Event) {
	o.sendEvent(event)
}

// Dropped returns how many events were discarded because the queue was full
func (o *HTTPObserver) Dropped() int64 {
	return o.dropped.Load()
}

// Close posts the queued events and waits for the worker. Safe to call more than once.
func (o *HTTPObserver) Close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	<-o.done
}

func (o *HTTPObserver) sendEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.queue <- data:
	default:
		o.dropped.Add(1)
	}
}

func (o *HTTPObserver) worker() {
	defer close(o.done)
	for data := range o.queue {
		resp, err := o.client.Post(o.URL, "application/json", bytes.NewReader(data))
		if err == nil {
			resp.Body.Close()
		}
	}
}

// ChannelObserver sends events to a Go channel
type ChannelObserver struct {
	Events chan Event
}

func NewChannelObserver(bufferSize int) *ChannelObserver {
	return &ChannelObserver{
		Events: make(chan Event, bufferSize),
	}
}

func (o *ChannelObserver) OnIteration(event Event) {
	select {
	case o.Events <- event:
	default:
		// Channel full, drop event to avoid blocking
	}
}

func (o *ChannelObserver) OnOctave(event Event) {
	select {
	case o.Events <- event:
	default:
		// Channel full, drop event to avoid blocking
	}
}

// multiObserver fans events out in order
type multiObserver []Observer

func (m multiObserver) OnIteration(event Event) {
	for _, o := range m {
		o.OnIteration(event)
	}
}

func (m multiObserver) OnOctave(event Event) {
	for _, o := range m {
		o.OnOctave(event)
	}
}

type nopObserver struct{}

func (nopObserver) OnIteration(Event) {}
func (nopObserver) OnOctave(Event)    {}
