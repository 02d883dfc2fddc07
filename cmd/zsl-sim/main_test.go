package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/zerolag/internal/capturelog"
	"github.com/banshee-data/zerolag/internal/config"
)

func TestRun_IssuesCaptures(t *testing.T) {
	store, err := capturelog.Open(filepath.Join(t.TempDir(), "captures.db"))
	require.NoError(t, err)
	defer store.Close()

	report, engine, err := run(context.Background(), runOptions{
		Config:   config.DefaultTuningConfig(),
		Captures: 3,
		Interval: 20 * time.Millisecond,
		Journal:  store,
	})
	require.NoError(t, err)
	defer engine.Close()

	assert.Equal(t, 3, report.Requests())
	assert.Empty(t, report.Errors)
	assert.Equal(t, uint64(3), engine.Command.Stats().Requests)

	counts, err := store.CountByOutcome()
	require.NoError(t, err)
	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 3, total)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, engine, err := run(ctx, runOptions{Config: config.EmptyTuningConfig(), Captures: 5, Interval: time.Second})
	require.NoError(t, err)
	defer engine.Close()
	assert.Equal(t, 0, report.Requests())
}

func TestRun_InvalidConfig(t *testing.T) {
	bad := "-5ms"
	_, _, err := run(context.Background(), runOptions{Config: &config.TuningConfig{MaxLookback: &bad}, Interval: time.Millisecond})
	assert.Error(t, err)
}

func TestStatsRoute(t *testing.T) {
	_, engine, err := run(context.Background(), runOptions{Config: config.EmptyTuningConfig(), Interval: time.Millisecond})
	require.NoError(t, err)
	defer engine.Close()

	mux := http.NewServeMux()
	attachStatsRoutes(mux, engine)

	req := httptest.NewRequest(http.MethodGet, "/debug/zsl", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Contains(t, body, "command")
	assert.Contains(t, body, "ring")
	assert.Contains(t, body, "pipeline")
}
