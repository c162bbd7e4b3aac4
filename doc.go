// Package dispensomatic provides run control for MRD dispensing protocols
// on an Opentrons OT-2 liquid-handling robot.
//
// The operator picks a dispense volume and rack count, and the tool uploads
// the matching pre-authored protocol to the robot over its HTTP API, starts
// the run, and monitors it live with pause/resume/stop control.
//
// # Installation
//
//	go install github.com/melbec/dispensomatic/cmd/dispensomatic@latest
//
// # Usage
//
// First, run setup to connect to the robot and pick dispensing parameters:
//
//	dispensomatic setup
//
// Then start a dispensing run:
//
//	dispensomatic run
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/dispensomatic: CLI with setup, run, status, runs and lights commands
//   - cmd/ot2-info: standalone endpoint probe for a misbehaving robot
//   - pkg/ot2: OT-2 HTTP API client
//   - pkg/protocol: parameter-to-protocol selection
//   - pkg/dispense: run orchestration and monitoring
package dispensomatic
