package dispense

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melbec/dispensomatic/pkg/ot2"
	"github.com/melbec/dispensomatic/pkg/protocol"
)

// fakeRobot is an httptest stand-in for the OT-2 API. It reports the
// given run statuses one per poll (the last one repeats), and flips to
// stopped once a stop action arrives.
type fakeRobot struct {
	mu         sync.Mutex
	statuses   []ot2.RunStatus
	idx        int
	actions    []string
	uploads    int
	stopped    bool
	failDetail string
	runsDown   bool // run polling answers 503
	stopFails  bool // the stop action answers 503
	srv        *httptest.Server
}

func newFakeRobot(t *testing.T, statuses ...ot2.RunStatus) *fakeRobot {
	t.Helper()
	f := &fakeRobot{statuses: statuses}

	mux := http.NewServeMux()
	mux.HandleFunc("/protocols", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.uploads++
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"id": "proto-1"},
		})
	})
	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]string{"id": "run-1"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})
	mux.HandleFunc("/runs/run-1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		down := f.runsDown
		f.mu.Unlock()
		if down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		status := f.nextStatus()
		data := map[string]any{
			"id":     "run-1",
			"status": status,
		}
		if status == ot2.StatusRunning {
			data["currentCommand"] = map[string]string{"commandType": "dispense"}
		}
		if status == ot2.StatusFailed && f.failDetail != "" {
			data["errors"] = []map[string]string{{"detail": f.failDetail}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	mux.HandleFunc("/runs/run-1/actions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data struct {
				ActionType string `json:"actionType"`
			} `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.actions = append(f.actions, body.Data.ActionType)
		if body.Data.ActionType == "stop" && f.stopFails {
			f.mu.Unlock()
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if body.Data.ActionType == "stop" {
			f.stopped = true
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("{}"))
	})
	mux.HandleFunc("/runs/run-1/commands", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{},
			"meta": map[string]int{"totalLength": 10},
			"links": map[string]any{
				"current": map[string]any{"meta": map[string]int{"index": 4}},
			},
		})
	})
	// Health, lights and the warm-up endpoints
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRobot) nextStatus() ot2.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return ot2.StatusStopped
	}
	s := f.statuses[f.idx]
	if f.idx < len(f.statuses)-1 {
		f.idx++
	}
	return s
}

func (f *fakeRobot) gotActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func (f *fakeRobot) gotUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

func newTestRunner(t *testing.T, f *fakeRobot) *Runner {
	t.Helper()
	params := protocol.Params{Volume: protocol.Volume45, Racks: 1}

	dir := t.TempDir()
	path := filepath.Join(dir, params.Filename())
	require.NoError(t, os.WriteFile(path, []byte("# protocol"), 0644))

	client := ot2.New(strings.TrimPrefix(f.srv.URL, "http://"))
	runner, err := NewRunner(client, protocol.NewCatalog(dir), params)
	require.NoError(t, err)
	runner.pollEvery = 5 * time.Millisecond
	return runner
}

func TestRunner_Succeeds(t *testing.T) {
	f := newFakeRobot(t, ot2.StatusRunning, ot2.StatusRunning, ot2.StatusSucceeded)
	runner := newTestRunner(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, runner.Start(ctx))
	assert.Equal(t, 1, f.gotUploads())
	assert.Equal(t, []string{"play"}, f.gotActions())
	assert.Equal(t, "run-1", runner.RunID())
}

func TestRunner_PublishesState(t *testing.T) {
	f := newFakeRobot(t, ot2.StatusRunning, ot2.StatusSucceeded)
	runner := newTestRunner(t, f)
	// Poll slowly enough that the first state cannot be overwritten
	// before the test reads it
	runner.pollEvery = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Start(ctx) }()

	// First published state is the running poll
	select {
	case state := <-runner.States():
		assert.Equal(t, ot2.StatusRunning, state.Status)
		assert.Equal(t, "dispense", state.Command)
		assert.InDelta(t, 50.0, state.Percent, 0.001)
	case <-ctx.Done():
		t.Fatal("no state published")
	}

	require.NoError(t, <-done)
}

func TestRunner_RunFails(t *testing.T) {
	f := newFakeRobot(t, ot2.StatusRunning, ot2.StatusFailed)
	f.failDetail = "pipette overpressure"
	runner := newTestRunner(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := runner.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipette overpressure")
}

func TestRunner_Stop(t *testing.T) {
	f := newFakeRobot(t, ot2.StatusRunning)
	runner := newTestRunner(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Start(ctx) }()

	// Wait for the run to be live, then stop it
	select {
	case <-runner.States():
	case <-ctx.Done():
		t.Fatal("run never started")
	}
	runner.Stop()

	err := <-done
	require.ErrorIs(t, err, ErrStopped)
	// The stop action goes out on its own goroutine and may land after
	// Start has already returned
	require.Eventually(t, func() bool {
		for _, a := range f.gotActions() {
			if a == "stop" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRunner_StopWhileRobotUnreachable(t *testing.T) {
	f := newFakeRobot(t, ot2.StatusRunning)
	f.runsDown = true
	f.stopFails = true
	runner := newTestRunner(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Start(ctx) }()

	// Wait until the run was started; every poll after that fails
	require.Eventually(t, func() bool {
		return len(f.gotActions()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	runner.Stop()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrStopped)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after Stop() with the robot unreachable")
	}
}

func TestRunner_StopBeforeUpload(t *testing.T) {
	f := newFakeRobot(t, ot2.StatusRunning)
	runner := newTestRunner(t, f)

	runner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := runner.Start(ctx)
	require.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, f.gotUploads(), "stop before upload must not upload")
	assert.Empty(t, f.gotActions())
}

func TestRunner_PauseResume(t *testing.T) {
	f := newFakeRobot(t, ot2.StatusRunning)
	runner := newTestRunner(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Start(ctx) }()

	select {
	case <-runner.States():
	case <-ctx.Done():
		t.Fatal("run never started")
	}

	runner.Pause()
	assert.True(t, runner.Paused())
	runner.Resume()
	assert.False(t, runner.Paused())

	runner.Stop()
	require.ErrorIs(t, <-done, ErrStopped)

	actions := f.gotActions()
	assert.Contains(t, actions, "pause")
	// play appears twice: start and resume
	plays := 0
	for _, a := range actions {
		if a == "play" {
			plays++
		}
	}
	assert.Equal(t, 2, plays)
}

func TestRunner_StartWhileRunning(t *testing.T) {
	f := newFakeRobot(t, ot2.StatusRunning)
	runner := newTestRunner(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Start(ctx) }()

	select {
	case <-runner.States():
	case <-ctx.Done():
		t.Fatal("run never started")
	}

	err := runner.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	runner.Stop()
	require.ErrorIs(t, <-done, ErrStopped)
}
