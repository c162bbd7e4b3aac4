package ot2

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// warmUpEndpoints are the calls the official OT-2 app makes on startup.
// Hitting them wakes the robot's services after a reboot.
var warmUpEndpoints = []string{
	"/system/time",
	"/health",
	"/robot/settings",
	"/calibration/status",
	"/robot/positions/change_pipette",
	"/motors/engaged",
	"/sessions",
	"/protocols",
	"/runs",
}

const (
	connectAttempts = 8
	connectBaseWait = 2 * time.Second
	connectMaxWait  = 15 * time.Second
	settleWait      = 3 * time.Second
	pingTimeout     = 3 * time.Second
)

// Ping checks network-level reachability by dialing the API port.
func (c *Client) Ping() error {
	conn, err := net.DialTimeout("tcp", c.addr, pingTimeout)
	if err != nil {
		return errors.Wrap(err, "ping robot")
	}
	conn.Close()
	return nil
}

// StartupEndpoints returns the endpoints swept during warm-up.
func StartupEndpoints() []string {
	return append([]string(nil), warmUpEndpoints...)
}

// WarmUp sweeps the startup endpoints the OT-2 app hits. Individual
// failures are reported through progress but tolerated; WarmUp fails
// only when fewer than half of the endpoints respond.
func (c *Client) WarmUp(ctx context.Context, progress func(string)) error {
	ok := 0
	for _, endpoint := range warmUpEndpoints {
		status, err := c.Probe(ctx, endpoint)
		switch {
		case err != nil:
			progress(fmt.Sprintf("%s: %v", endpoint, err))
		case status >= 400:
			progress(fmt.Sprintf("%s: HTTP %d", endpoint, status))
		default:
			ok++
		}
	}
	if ok < len(warmUpEndpoints)/2 {
		return errors.Errorf("warm up: only %d/%d endpoints responding", ok, len(warmUpEndpoints))
	}
	return nil
}

// Probe hits one endpoint and returns its HTTP status.
func (c *Client) Probe(ctx context.Context, endpoint string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Opentrons-Version", apiVersion)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Connect brings up the connection to the robot, waking it if needed.
// Each attempt tries a plain health check first, then falls back to the
// full startup sequence: ping, warm-up sweep, settle, health check.
// Retries back off exponentially, capped at connectMaxWait. Deck lights
// are switched on after a successful connect, matching the app.
func (c *Client) Connect(ctx context.Context, progress func(string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		progress(fmt.Sprintf("Connection attempt %d/%d", attempt, connectAttempts))

		if _, err := c.Health(ctx); err == nil {
			c.lightsOn(ctx, progress)
			return nil
		}

		lastErr = c.startup(ctx, progress)
		if lastErr == nil {
			c.lightsOn(ctx, progress)
			return nil
		}
		progress(lastErr.Error())

		if attempt == connectAttempts {
			break
		}
		wait := connectWait(attempt)
		progress(fmt.Sprintf("Waiting %s before retry", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return errors.Wrap(lastErr, "robot did not come up")
}

// connectWait is the backoff before the next attempt: the wait doubles
// every second attempt (2s, 2s, 4s, 4s, ...), capped at connectMaxWait.
func connectWait(attempt int) time.Duration {
	wait := connectBaseWait * (1 << ((attempt - 1) / 2))
	if wait > connectMaxWait {
		wait = connectMaxWait
	}
	return wait
}

// startup is one pass of the wake-up sequence.
func (c *Client) startup(ctx context.Context, progress func(string)) error {
	progress("Checking network connectivity...")
	if err := c.Ping(); err != nil {
		return errors.New("robot not reachable on network")
	}

	progress("Initializing robot services...")
	if err := c.WarmUp(ctx, progress); err != nil {
		return errors.New("robot services failed to initialize")
	}

	// Give the services a moment to stabilize before the final check.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settleWait):
	}

	if _, err := c.Health(ctx); err != nil {
		return errors.New("robot services failed to initialize")
	}
	return nil
}

func (c *Client) lightsOn(ctx context.Context, progress func(string)) {
	if err := c.SetLights(ctx, true); err != nil {
		progress(fmt.Sprintf("Lights on failed: %v", err))
		return
	}
	progress("Lights now on")
}
