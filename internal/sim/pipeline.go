// Package sim drives the zero-shutter-lag engine with a synthetic capture
// pipeline, so frame selection can be exercised and tuned without camera
// hardware.
package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/zerolag/internal/camera"
	"github.com/banshee-data/zerolag/internal/monitoring"
	"github.com/banshee-data/zerolag/internal/timeutil"
)

// FrameSink receives produced frames. *ringbuffer.Ring satisfies it.
type FrameSink interface {
	Add(img camera.Image)
}

// MetadataSink receives produced metadata. *metapool.Pool satisfies it.
type MetadataSink interface {
	Put(md *camera.Metadata)
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Frames   FrameSink
	Metadata MetadataSink
	Clock    timeutil.Clock
	Scenario Scenario

	FPS float64
	// MetadataDelay is how long after its frame a metadata record is
	// delivered. Zero delivers it before the frame.
	MetadataDelay time.Duration

	Width, Height int
}

// Pipeline produces frames at a fixed rate and delivers their metadata
// after a delay, the way a camera HAL would.
type Pipeline struct {
	cfg      PipelineConfig
	interval time.Duration
	bufs     sync.Pool

	mu          sync.Mutex
	frameNumber int64
	lastTS      int64

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
	pending sync.WaitGroup

	produced, dropped, released atomic.Int64
}

// NewPipeline returns a stopped pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.NewRealClock()
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 64, 48
	}
	size := cfg.Width * cfg.Height
	p := &Pipeline{
		cfg:      cfg,
		interval: time.Duration(float64(time.Second) / cfg.FPS),
		lastTS:   -1,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.bufs.New = func() any { return make([]byte, size) }
	return p
}

// Interval returns the time between frames.
func (p *Pipeline) Interval() time.Duration { return p.interval }

// Start begins producing frames until ctx is done or Stop is called.
func (p *Pipeline) Start(ctx context.Context) {
	p.running.Add(1)
	go func() {
		defer p.running.Done()
		ticker := p.cfg.Clock.NewTicker(p.interval)
		defer ticker.Stop()
		monitoring.Logf("sim: pipeline started at %.1f fps", p.cfg.FPS)
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.ctx.Done():
				return
			case <-ticker.C():
				p.emit()
			}
		}
	}()
}

// Stop halts production and abandons metadata not yet delivered. It is
// safe to call more than once.
func (p *Pipeline) Stop() {
	p.cancel()
	p.running.Wait()
	p.pending.Wait()
	monitoring.Logf("sim: pipeline stopped after %d frames", p.produced.Load())
}

// Trigger produces one frame immediately, outside the regular cadence.
func (p *Pipeline) Trigger() {
	p.emit()
}

// Emit produces one frame and returns its timestamp.
func (p *Pipeline) Emit() int64 {
	return p.emit()
}

func (p *Pipeline) emit() int64 {
	p.mu.Lock()
	ts := p.cfg.Clock.Nanos()
	if ts <= p.lastTS {
		ts = p.lastTS + 1
	}
	p.lastTS = ts
	frameNumber := p.frameNumber
	p.frameNumber++
	phase, offset := p.cfg.Scenario.At(frameNumber)
	md := phase.metadataFor(ts, frameNumber, offset)

	frame := camera.NewFrame(ts, p.bufs.Get().([]byte), p.cfg.Width, p.cfg.Height, p.recycle)
	if md != nil && p.cfg.MetadataDelay <= 0 {
		p.cfg.Metadata.Put(md)
	}
	p.cfg.Frames.Add(frame)
	p.produced.Add(1)
	p.mu.Unlock()

	switch {
	case md == nil:
		p.dropped.Add(1)
		monitoring.Debugf("[sim] withholding metadata for frame %d (%s)", frameNumber, phase.Name)
	case p.cfg.MetadataDelay > 0:
		p.deliverLater(md)
	}
	return ts
}

func (p *Pipeline) deliverLater(md *camera.Metadata) {
	timer := p.cfg.Clock.NewTimer(p.cfg.MetadataDelay)
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		select {
		case <-timer.C():
			p.cfg.Metadata.Put(md)
		case <-p.ctx.Done():
			timer.Stop()
		}
	}()
}

func (p *Pipeline) recycle(f *camera.Frame) {
	p.released.Add(1)
	p.bufs.Put(f.Data)
}

// PipelineStats counts frames produced by the pipeline.
type PipelineStats struct {
	Produced        int64 `json:"produced"`
	MetadataDropped int64 `json:"metadata_dropped"`
	Released        int64 `json:"released"`
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Produced:        p.produced.Load(),
		MetadataDropped: p.dropped.Load(),
		Released:        p.released.Load(),
	}
}
