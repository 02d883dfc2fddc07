package zsl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/banshee-data/zerolag/internal/camera"
	"github.com/banshee-data/zerolag/internal/camera/ringbuffer"
	"github.com/banshee-data/zerolag/internal/monitoring"
)

// ExposeCallback signals that the shutter has effectively fired. It is
// called at most once per capture request.
type ExposeCallback func()

// ImageSaver receives the captured frame. AddFullSizeImage transfers
// ownership of img to the saver. Close releases the saver and must be
// called exactly once per capture request by whichever party owns it.
type ImageSaver interface {
	AddFullSizeImage(img camera.Image, md camera.MetadataFuture)
	Close()
}

// ImageCaptureCommand runs one capture request.
type ImageCaptureCommand interface {
	Run(ctx context.Context, expose ExposeCallback, saver ImageSaver) error
}

// BufferQueue is the ring of recently captured frames. Poll reports
// ringbuffer.ErrTimeout when nothing is available and ringbuffer.ErrClosed
// once the queue is shut down.
type BufferQueue interface {
	Poll(ctx context.Context, timeout time.Duration) (camera.Image, error)
}

// MetadataPool hands out the metadata future for a frame timestamp. Pops
// are consuming: each timestamp resolves at most once.
type MetadataPool interface {
	PopFuture(timestamp int64) camera.MetadataFuture
}

// ErrNoMetadata is used when a future resolves without a record.
var ErrNoMetadata = errors.New("zsl: metadata resolved empty")

// Outcome classifies how a capture request was served.
type Outcome string

const (
	OutcomeZSL      Outcome = "zsl"
	OutcomeFallback Outcome = "fallback"
	OutcomeClosed   Outcome = "closed"
	OutcomeError    Outcome = "error"
)

// Decision describes one capture request.
type Decision struct {
	Outcome     Outcome `json:"outcome"`
	Timestamp   int64   `json:"timestamp_ns,omitempty"` // served frame, ZSL only
	FrameNumber int64   `json:"frame_number,omitempty"`
	Candidates  int     `json:"candidates"` // frames drained from the buffer
	Expired     int     `json:"expired"`    // outside the lookback window
	Rejected    int     `json:"rejected"`   // metadata unavailable or filtered out
}

// Stats is a snapshot of command counters.
type Stats struct {
	Requests  uint64 `json:"requests"`
	Hits      uint64 `json:"hits"`
	Fallbacks uint64 `json:"fallbacks"`
	Closed    uint64 `json:"closed"`
	Errors    uint64 `json:"errors"`
	Examined  uint64 `json:"examined"`
	Expired   uint64 `json:"expired"`
	Rejected  uint64 `json:"rejected"`
}

// CommandConfig wires a Command to its collaborators.
type CommandConfig struct {
	Buffer   BufferQueue
	Pool     MetadataPool
	Fallback ImageCaptureCommand
	Filter   Filter // default: AcceptableFilter requiring AF and AE

	// MaxLookback bounds the age of a served frame relative to the newest
	// buffered frame.
	MaxLookback time.Duration
	// MetadataTimeout bounds the wait for each candidate's metadata. Zero
	// uses DefaultMetadataTimeout.
	MetadataTimeout time.Duration
}

// DefaultMetadataTimeout bounds the metadata wait when CommandConfig leaves
// it unset.
const DefaultMetadataTimeout = 100 * time.Millisecond

// Command serves capture requests from the ring buffer when a recent
// acceptable frame exists and delegates to the fallback command otherwise.
type Command struct {
	buffer          BufferQueue
	pool            MetadataPool
	fallback        ImageCaptureCommand
	filter          Filter
	maxLookback     int64
	metadataTimeout time.Duration

	requests, hits, fallbacks, closed, errs atomic.Uint64
	examined, expired, rejected             atomic.Uint64
}

// NewCommand validates cfg and returns a Command.
func NewCommand(cfg CommandConfig) (*Command, error) {
	if cfg.Buffer == nil {
		return nil, fmt.Errorf("zsl: buffer queue is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("zsl: metadata pool is required")
	}
	if cfg.Fallback == nil {
		return nil, fmt.Errorf("zsl: fallback command is required")
	}
	if cfg.MaxLookback < 0 {
		return nil, fmt.Errorf("zsl: max lookback must be non-negative, got %v", cfg.MaxLookback)
	}
	if cfg.MetadataTimeout < 0 {
		return nil, fmt.Errorf("zsl: metadata timeout must be non-negative, got %v", cfg.MetadataTimeout)
	}
	if cfg.MetadataTimeout == 0 {
		cfg.MetadataTimeout = DefaultMetadataTimeout
	}
	if cfg.Filter == nil {
		cfg.Filter = AcceptableFilter{RequireAF: true, RequireAE: true}
	}
	return &Command{
		buffer:          cfg.Buffer,
		pool:            cfg.Pool,
		fallback:        cfg.Fallback,
		filter:          cfg.Filter,
		maxLookback:     int64(cfg.MaxLookback),
		metadataTimeout: cfg.MetadataTimeout,
	}, nil
}

// Run implements ImageCaptureCommand.
func (c *Command) Run(ctx context.Context, expose ExposeCallback, saver ImageSaver) error {
	_, err := c.Capture(ctx, expose, saver)
	return err
}

// Capture runs one capture request and reports how it was served.
//
// On a ZSL hit the frame and its metadata go to saver, which then owns
// both. On a miss the fallback runs with the same callback and saver and
// becomes responsible for closing the saver. A closed ring buffer ends the
// request silently. In every other case the saver is closed here.
func (c *Command) Capture(ctx context.Context, expose ExposeCallback, saver ImageSaver) (Decision, error) {
	c.requests.Add(1)

	closeSaver := true
	defer func() {
		if closeSaver {
			saver.Close()
		}
	}()

	sel, d, err := c.tryGetZslImage(ctx)
	switch {
	case errors.Is(err, ringbuffer.ErrClosed):
		c.closed.Add(1)
		d.Outcome = OutcomeClosed
		return d, nil
	case err != nil:
		c.errs.Add(1)
		d.Outcome = OutcomeError
		return d, fmt.Errorf("zsl scan: %w", err)
	}

	if sel.image == nil {
		c.fallbacks.Add(1)
		d.Outcome = OutcomeFallback
		monitoring.Debugf("[zsl] no acceptable frame among %d candidates, falling back", d.Candidates)
		closeSaver = false
		return d, c.fallback.Run(ctx, expose, saver)
	}

	c.hits.Add(1)
	d.Outcome = OutcomeZSL
	d.Timestamp = sel.image.Timestamp()
	d.FrameNumber = sel.md.FrameNumber
	handedOff := false
	defer func() {
		if !handedOff {
			sel.image.Close()
		}
	}()
	if expose != nil {
		expose()
	}
	closeSaver = false
	handedOff = true
	saver.AddFullSizeImage(sel.image, camera.CompletedFuture(sel.md))
	return d, nil
}

type selection struct {
	image camera.Image
	md    *camera.Metadata
}

// tryGetZslImage drains the buffer and returns the most recent acceptable
// frame inside the lookback window, or an empty selection. Every other
// drained frame is released before it returns, whatever the exit path.
func (c *Command) tryGetZslImage(ctx context.Context) (selection, Decision, error) {
	var d Decision

	candidates, err := c.drain(ctx)
	if err != nil {
		return selection{}, d, err
	}
	d.Candidates = len(candidates)
	if len(candidates) == 0 {
		return selection{}, d, nil
	}

	var best selection
	kept := false
	defer func() {
		for _, img := range candidates {
			if img != nil {
				img.Close()
			}
		}
		if !kept && best.image != nil {
			best.image.Close()
		}
	}()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Timestamp() < candidates[j].Timestamp()
	})
	threshold := candidates[len(candidates)-1].Timestamp() - c.maxLookback

	for i, img := range candidates {
		if img.Timestamp() <= threshold {
			d.Expired++
			c.expired.Add(1)
			candidates[i] = nil
			img.Close()
			continue
		}

		c.examined.Add(1)
		md, err := c.resolve(ctx, img.Timestamp())
		if err != nil && ctx.Err() != nil {
			return selection{}, d, err
		}
		if err != nil || !c.filter.Accepts(md) {
			if err != nil {
				monitoring.Debugf("[zsl] metadata unavailable for ts=%d: %v", img.Timestamp(), err)
			}
			d.Rejected++
			c.rejected.Add(1)
			candidates[i] = nil
			img.Close()
			continue
		}

		candidates[i] = nil
		if best.image != nil {
			best.image.Close()
		}
		best = selection{image: img, md: md}
	}

	kept = true
	return best, d, nil
}

// drain takes every frame currently buffered without waiting for new ones.
func (c *Command) drain(ctx context.Context) ([]camera.Image, error) {
	var out []camera.Image
	for {
		img, err := c.buffer.Poll(ctx, 0)
		if err == nil {
			out = append(out, img)
			continue
		}
		if errors.Is(err, ringbuffer.ErrTimeout) {
			return out, nil
		}
		for _, img := range out {
			img.Close()
		}
		return nil, err
	}
}

func (c *Command) resolve(ctx context.Context, ts int64) (*camera.Metadata, error) {
	fut := c.pool.PopFuture(ts)
	if fut == nil {
		return nil, ErrNoMetadata
	}
	ctx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()
	md, err := fut.Get(ctx)
	if err == nil && md == nil {
		err = ErrNoMetadata
	}
	return md, err
}

// Stats returns a snapshot of the command counters.
func (c *Command) Stats() Stats {
	return Stats{
		Requests:  c.requests.Load(),
		Hits:      c.hits.Load(),
		Fallbacks: c.fallbacks.Load(),
		Closed:    c.closed.Load(),
		Errors:    c.errs.Load(),
		Examined:  c.examined.Load(),
		Expired:   c.expired.Load(),
		Rejected:  c.rejected.Load(),
	}
}
