// Package dispense orchestrates a dispensing run on the robot: upload,
// start, live monitoring, and pause/resume/stop control.
package dispense

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/melbec/dispensomatic/pkg/ot2"
	"github.com/melbec/dispensomatic/pkg/protocol"
)

// ErrStopped is returned by Start when the operator stopped the run.
var ErrStopped = errors.New("run was stopped by user")

// State is a snapshot of run progress for the monitor.
type State struct {
	Status    ot2.RunStatus
	Command   string  // command type currently executing, if known
	Percent   float64 // completion percentage, negative when unknown
	Detail    string  // robot error detail, if any
	Timestamp time.Time
}

// Runner executes the dispensing workflow against one robot.
type Runner struct {
	client    *ot2.Client
	catalog   *protocol.Catalog
	params    protocol.Params
	pollEvery time.Duration

	mu      sync.RWMutex
	running bool
	paused  bool
	stopReq bool
	runID   string

	stateCh chan State
	logCh   chan string
	stopCh  chan struct{} // closed on the first stop request
}

// NewRunner creates a runner for the given selection. The parameters are
// validated here so a bad selection fails before touching the robot.
func NewRunner(client *ot2.Client, catalog *protocol.Catalog, params protocol.Params) (*Runner, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		client:    client,
		catalog:   catalog,
		params:    params,
		pollEvery: 3 * time.Second,
		stateCh:   make(chan State, 1),
		logCh:     make(chan string, 10),
		stopCh:    make(chan struct{}),
	}, nil
}

// States returns a channel that receives state updates.
func (r *Runner) States() <-chan State {
	return r.stateCh
}

// Logs returns a channel that receives log messages.
func (r *Runner) Logs() <-chan string {
	return r.logCh
}

// Params returns the protocol selection this runner executes.
func (r *Runner) Params() protocol.Params {
	return r.params
}

// RunID returns the robot's run ID, or "" before the run is created.
func (r *Runner) RunID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runID
}

// Paused reports whether a pause was requested.
func (r *Runner) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

func (r *Runner) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case r.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the whole workflow: connect, resolve the protocol, upload,
// create a run, start it, and poll until it reaches a terminal status.
// A stop request is honored between every step. Returns nil when the run
// succeeded, ErrStopped when the operator stopped it, and an error
// carrying the robot's detail when it failed.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.log("Checking robot connection...")
	if err := r.client.Connect(ctx, func(msg string) { r.log("%s", msg) }); err != nil {
		return errors.Wrap(err, "could not connect to robot")
	}
	if err := r.interrupted(ctx); err != nil {
		return err
	}

	r.log("Setting up for %s...", r.params)
	path, err := r.catalog.Lookup(r.params)
	if err != nil {
		return err
	}

	r.log("Uploading protocol...")
	protocolID, err := r.client.UploadProtocol(ctx, path)
	if err != nil {
		return err
	}
	if err := r.interrupted(ctx); err != nil {
		return err
	}

	r.log("Creating run...")
	runID, err := r.client.CreateRun(ctx, protocolID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.runID = runID
	r.mu.Unlock()
	if err := r.interrupted(ctx); err != nil {
		return err
	}

	r.log("Starting run...")
	if err := r.client.Play(ctx, runID); err != nil {
		return err
	}

	r.log("Monitoring run...")
	return r.monitor(ctx, runID)
}

// monitor polls the run until it reaches a terminal status or the
// operator asks for a stop. The stop check does not depend on a poll
// succeeding, so an unreachable robot cannot trap the loop.
func (r *Runner) monitor(ctx context.Context, runID string) error {
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	lastDetail := ""
	for {
		if r.stopRequested() {
			return ErrStopped
		}

		run, err := r.client.GetRun(ctx, runID)
		if err != nil {
			if !r.stopRequested() {
				r.log("Monitoring error: %v", err)
			}
		} else {
			state := State{
				Status:    run.Status,
				Detail:    run.Detail(),
				Percent:   -1,
				Timestamp: time.Now(),
			}
			if run.CurrentCommand != nil {
				state.Command = run.CurrentCommand.CommandType
			}
			if prog, err := r.client.CommandProgress(ctx, runID); err == nil && prog.Total > 0 {
				state.Percent = prog.Percent()
			}
			r.sendState(state)

			if state.Detail != "" && state.Detail != lastDetail {
				r.log("Error detected: %s", state.Detail)
				lastDetail = state.Detail
			}

			if run.Status.Terminal() {
				return r.outcome(run)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return ErrStopped
		case <-ticker.C:
		}
	}
}

func (r *Runner) outcome(run ot2.Run) error {
	switch run.Status {
	case ot2.StatusSucceeded:
		r.log("Run completed successfully.")
		return nil
	case ot2.StatusStopped:
		return ErrStopped
	default:
		if d := run.Detail(); d != "" {
			return errors.Errorf("run failed: %s", d)
		}
		return errors.New("run failed")
	}
}

// Pause asks the robot to pause the current run.
func (r *Runner) Pause() {
	runID := r.RunID()
	if runID == "" {
		return
	}
	if err := r.client.Pause(context.Background(), runID); err != nil {
		r.log("Error pausing: %v", err)
		return
	}
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
	r.log("Pause command sent.")
}

// Resume asks the robot to resume a paused run.
func (r *Runner) Resume() {
	runID := r.RunID()
	if runID == "" {
		return
	}
	if err := r.client.Play(context.Background(), runID); err != nil {
		r.log("Error resuming: %v", err)
		return
	}
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
	r.log("Resume command sent.")
}

// Stop requests a stop. The stop action goes out on its own goroutine so
// the caller never blocks on a slow robot; the monitor loop finishes when
// the robot reports the stopped status.
func (r *Runner) Stop() {
	r.mu.Lock()
	first := !r.stopReq
	r.stopReq = true
	runID := r.runID
	r.mu.Unlock()

	if first {
		close(r.stopCh)
	}
	if runID == "" {
		return
	}
	go func() {
		if err := r.client.Stop(context.Background(), runID); err != nil {
			r.log("Error sending stop: %v", err)
			return
		}
		r.log("Stop command sent to robot")
	}()
}

func (r *Runner) stopRequested() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stopReq
}

// interrupted reports a stop request or context cancellation between
// workflow steps.
func (r *Runner) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.stopRequested() {
		return ErrStopped
	}
	return nil
}

func (r *Runner) sendState(s State) {
	select {
	case r.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-r.stateCh:
		default:
		}
		r.stateCh <- s
	}
}
