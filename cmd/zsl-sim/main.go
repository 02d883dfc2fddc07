// Command zsl-sim runs the zero-shutter-lag engine against a synthetic
// capture pipeline and reports how capture requests were served.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/zerolag/internal/capturelog"
	"github.com/banshee-data/zerolag/internal/config"
	"github.com/banshee-data/zerolag/internal/monitoring"
	"github.com/banshee-data/zerolag/internal/sim"
	"github.com/banshee-data/zerolag/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a tuning config JSON file (defaults apply when empty)")
	captures    = flag.Int("captures", 20, "Number of capture requests to issue")
	interval    = flag.Duration("interval", 150*time.Millisecond, "Time between capture requests")
	dbPath      = flag.String("db", "", "Path to the SQLite capture journal (disabled when empty)")
	listen      = flag.String("listen", "", "Serve debug routes on this address after the run, until interrupted")
	plotPath    = flag.String("plot", "", "Write a served-age histogram PNG to this path")
	htmlPath    = flag.String("html", "", "Write an outcome chart HTML to this path")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

type runOptions struct {
	Config   *config.TuningConfig
	Captures int
	Interval time.Duration
	Journal  *capturelog.Store
}

// run drives one simulation and returns its report. The engine is returned
// still open so its counters can be served; the caller closes it.
func run(ctx context.Context, opts runOptions) (*sim.Report, *sim.Engine, error) {
	engine, err := sim.NewEngine(opts.Config, sim.DefaultScenario(), nil)
	if err != nil {
		return nil, nil, err
	}
	engine.Journal = opts.Journal
	engine.Start(ctx)

	report := sim.NewReport()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for i := 0; i < opts.Captures; i++ {
		select {
		case <-ctx.Done():
			log.Printf("interrupted after %d captures", i)
			return report, engine, nil
		case <-ticker.C:
		}
		res := engine.Capture(ctx)
		report.Add(res)
		monitoring.Debugf("capture %d: %s ts=%d candidates=%d expired=%d rejected=%d",
			i, res.Decision.Outcome, res.Decision.Timestamp,
			res.Decision.Candidates, res.Decision.Expired, res.Decision.Rejected)
	}
	return report, engine, nil
}

func attachStatsRoutes(mux *http.ServeMux, engine *sim.Engine) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("zsl", "ZSL command, ring buffer and pipeline counters", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"command":  engine.Command.Stats(),
			"ring":     engine.Ring.Stats(),
			"pipeline": engine.Pipeline.Stats(),
		})
	})
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("zsl-sim"))
		return
	}
	monitoring.SetDebug(*debug)

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *captures < 0 {
		log.Fatal("-captures must be non-negative")
	}
	if *interval <= 0 {
		log.Fatal("-interval must be positive")
	}

	var journal *capturelog.Store
	if *dbPath != "" {
		var err error
		journal, err = capturelog.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open capture journal: %v", err)
		}
		defer journal.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, engine, err := run(ctx, runOptions{
		Config:   cfg,
		Captures: *captures,
		Interval: *interval,
		Journal:  journal,
	})
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}
	defer engine.Close()

	report.WriteText(os.Stdout)
	if *plotPath != "" {
		if err := report.SaveAgeHistogram(*plotPath); err != nil {
			log.Printf("failed to write histogram: %v", err)
		} else {
			log.Printf("wrote %s", *plotPath)
		}
	}
	if *htmlPath != "" {
		if err := report.SaveOutcomeChart(*htmlPath); err != nil {
			log.Printf("failed to write chart: %v", err)
		} else {
			log.Printf("wrote %s", *htmlPath)
		}
	}

	if *listen == "" {
		return
	}

	mux := http.NewServeMux()
	attachStatsRoutes(mux, engine)
	if journal != nil {
		journal.AttachAdminRoutes(mux)
	}
	server := &http.Server{Addr: *listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()
	log.Printf("serving debug routes on %s/debug/", *listen)

	<-ctx.Done()
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}
