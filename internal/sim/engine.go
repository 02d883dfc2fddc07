package sim

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/zerolag/internal/camera"
	"github.com/banshee-data/zerolag/internal/camera/metapool"
	"github.com/banshee-data/zerolag/internal/camera/ringbuffer"
	"github.com/banshee-data/zerolag/internal/capturelog"
	"github.com/banshee-data/zerolag/internal/config"
	"github.com/banshee-data/zerolag/internal/monitoring"
	"github.com/banshee-data/zerolag/internal/timeutil"
	"github.com/banshee-data/zerolag/internal/zsl"
)

// Engine wires a simulated pipeline to a ZSL command.
type Engine struct {
	Clock     timeutil.Clock
	Ring      *ringbuffer.Ring
	Pool      *metapool.Pool
	Pipeline  *Pipeline
	Command   *zsl.Command
	AutoFlash *zsl.AutoFlashFilter // nil unless auto_flash is enabled

	// Journal, if set, records every capture request.
	Journal *capturelog.Store

	cfg   *config.TuningConfig
	subID string
}

// NewEngine builds the ring buffer, metadata pool, pipeline, filter and
// command described by cfg. A nil clock uses the real clock.
func NewEngine(cfg *config.TuningConfig, scenario Scenario, clock timeutil.Clock) (*Engine, error) {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.NewRealClock()
	}

	e := &Engine{
		Clock: clock,
		Ring:  ringbuffer.New(cfg.GetRingBufferCapacity(), clock),
		Pool:  metapool.New(cfg.GetMetadataPoolCapacity()),
		cfg:   cfg,
	}
	e.Pipeline = NewPipeline(PipelineConfig{
		Frames:        e.Ring,
		Metadata:      e.Pool,
		Clock:         clock,
		Scenario:      scenario,
		FPS:           cfg.GetFPS(),
		MetadataDelay: cfg.GetMetadataDelay(),
	})

	var filter zsl.Filter = zsl.AcceptableFilter{
		RequireAF: cfg.GetRequireAFConverged(),
		RequireAE: cfg.GetRequireAEConverged(),
	}
	if cfg.GetAutoFlash() {
		e.AutoFlash = zsl.NewAutoFlashFilter(cfg.GetRequireAFConverged())
		e.subID = e.Pool.Subscribe(e.AutoFlash.OnMetadataUpdate)
		filter = e.AutoFlash
	}

	live := &zsl.LiveCaptureCommand{
		Buffer:  e.Ring,
		Pool:    e.Pool,
		Trigger: e.Pipeline.Trigger,
		Timeout: cfg.GetFallbackTimeout(),
	}
	cmd, err := zsl.NewCommand(zsl.CommandConfig{
		Buffer:          e.Ring,
		Pool:            e.Pool,
		Fallback:        live,
		Filter:          filter,
		MaxLookback:     cfg.GetMaxLookback(),
		MetadataTimeout: cfg.GetMetadataTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build capture command: %w", err)
	}
	e.Command = cmd
	return e, nil
}

// Start begins frame production.
func (e *Engine) Start(ctx context.Context) {
	e.Pipeline.Start(ctx)
}

// Result describes one completed capture request.
type Result struct {
	CaptureID string
	Decision  zsl.Decision
	// AgeNanos is how old the served frame was when the request arrived.
	// It is only meaningful for ZSL hits.
	AgeNanos int64
	Err      error
}

// Capture issues one capture request and journals it when a Journal is set.
func (e *Engine) Capture(ctx context.Context) Result {
	res := Result{CaptureID: uuid.NewString()}
	requestedAt := e.Clock.Nanos()

	var saver zsl.ImageSaver = discardSaver{}
	var journalSaver *capturelog.Saver
	if e.Journal != nil {
		journalSaver = e.Journal.NewSaver(res.CaptureID, e.cfg.GetMetadataTimeout())
		saver = journalSaver
	}

	res.Decision, res.Err = e.Command.Capture(ctx, nil, saver)
	if res.Decision.Outcome == zsl.OutcomeZSL {
		res.AgeNanos = requestedAt - res.Decision.Timestamp
		// a hit leaves the saver with us
		saver.Close()
	}
	if res.Err != nil {
		monitoring.Logf("sim: capture %s failed: %v", res.CaptureID, res.Err)
	}

	if e.Journal != nil {
		if err := e.Journal.RecordDecision(res.CaptureID, res.Decision, res.AgeNanos, res.Err); err != nil {
			monitoring.Logf("sim: %v", err)
		}
		journalSaver.Wait()
	}
	return res
}

// Close stops the pipeline and shuts down the buffer and pool.
func (e *Engine) Close() {
	e.Pipeline.Stop()
	if e.subID != "" {
		e.Pool.Unsubscribe(e.subID)
	}
	e.Ring.Close()
	e.Pool.Close()
}

// discardSaver releases whatever it is given.
type discardSaver struct{}

func (discardSaver) AddFullSizeImage(img camera.Image, _ camera.MetadataFuture) { img.Close() }
func (discardSaver) Close()                                                     {}
