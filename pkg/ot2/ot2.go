// Package ot2 provides an HTTP client for the Opentrons OT-2 robot API.
package ot2

import "time"

// DefaultPort is the API socket, the same for all OT-2s.
const DefaultPort = 31950

// RunStatus is the lifecycle status the robot reports for a run.
type RunStatus string

// Run statuses reported by the OT-2.
const (
	StatusIdle          RunStatus = "idle"
	StatusRunning       RunStatus = "running"
	StatusPaused        RunStatus = "paused"
	StatusStopRequested RunStatus = "stop-requested"
	StatusStopped       RunStatus = "stopped"
	StatusFailed        RunStatus = "failed"
	StatusSucceeded     RunStatus = "succeeded"
)

// Terminal reports whether the run has finished and will not change status again.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// Run is the state of a protocol run on the robot.
type Run struct {
	ID             string      `json:"id"`
	ProtocolID     string      `json:"protocolId"`
	Status         RunStatus   `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	Current        bool        `json:"current"`
	CurrentCommand *CommandRef `json:"currentCommand,omitempty"`
	Errors         []RunError  `json:"errors,omitempty"`
}

// CommandRef identifies the command a run is currently executing.
type CommandRef struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	CommandType string `json:"commandType"`
}

// RunError is an error the robot attached to a run.
type RunError struct {
	ID        string `json:"id"`
	ErrorType string `json:"errorType"`
	Detail    string `json:"detail"`
}

// Detail returns the first error detail on the run, or "" if there is none.
func (r *Run) Detail() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Detail
}

// Health is the payload of the robot's /health endpoint.
type Health struct {
	Name            string `json:"name"`
	RobotModel      string `json:"robot_model"`
	APIVersion      string `json:"api_version"`
	FirmwareVersion string `json:"fw_version"`
	SystemVersion   string `json:"system_version"`
}

// Progress locates the current command within the run's command list.
type Progress struct {
	Index int // zero-based index of the current command
	Total int // total number of commands in the run
}

// Percent returns completion as a percentage in [0, 100].
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Index+1) / float64(p.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
