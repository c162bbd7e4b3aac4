package ot2

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultAddr is the lab robot's link-local address.
const DefaultAddr = "169.254.110.39:31950"

const (
	// apiVersion is the required Opentrons-Version header value.
	apiVersion = "2"

	requestTimeout = 30 * time.Second
	healthTimeout  = 5 * time.Second
	stopTimeout    = 5 * time.Second
)

// Client talks to a single OT-2 over its HTTP API.
type Client struct {
	addr string // host:port
	base string // http://host:port
	http *http.Client
}

// New creates a client for the robot at addr. A bare host gets the default
// API port appended; a scheme prefix is accepted and stripped.
func New(addr string) *Client {
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimSuffix(addr, "/")
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	return &Client{
		addr: addr,
		base: "http://" + addr,
		http: &http.Client{Timeout: requestTimeout},
	}
}

// Addr returns the host:port this client talks to.
func (c *Client) Addr() string {
	return c.addr
}

// Health fetches /health. An error means the robot API is not reachable
// or not healthy.
func (c *Client) Health(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var h Health
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return Health{}, err
	}
	return h, nil
}

// Lights reports whether the deck lights are on.
func (c *Client) Lights(ctx context.Context) (bool, error) {
	var out struct {
		On bool `json:"on"`
	}
	if err := c.getJSON(ctx, "/robot/lights", &out); err != nil {
		return false, err
	}
	return out.On, nil
}

// SetLights turns the deck lights on or off.
func (c *Client) SetLights(ctx context.Context, on bool) error {
	in := struct {
		On bool `json:"on"`
	}{On: on}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return c.postJSON(ctx, "/robot/lights", in, nil)
}

// UploadProtocol sends a protocol file to the robot and returns the
// protocol ID assigned by the robot.
func (c *Client) UploadProtocol(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open protocol")
	}
	defer f.Close()

	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return "", errors.Wrap(err, "build upload")
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", errors.Wrap(err, "read protocol")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "build upload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/protocols", buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Opentrons-Version", apiVersion)
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.send(req, &out); err != nil {
		return "", errors.Wrap(err, "upload protocol")
	}
	return out.Data.ID, nil
}

// CreateRun creates a run instance for an uploaded protocol and returns
// the run ID. Labware offsets and runtime parameters are left at their
// defaults; the protocol files carry everything themselves.
func (c *Client) CreateRun(ctx context.Context, protocolID string) (string, error) {
	in := map[string]any{
		"data": map[string]any{
			"protocolId":        protocolID,
			"labwareOffsets":    []any{},
			"runTimeParameters": []any{},
		},
	}
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/runs", in, &out); err != nil {
		return "", errors.Wrap(err, "create run")
	}
	return out.Data.ID, nil
}

// Play starts a created run, or resumes a paused one.
func (c *Client) Play(ctx context.Context, runID string) error {
	return c.action(ctx, runID, "play")
}

// Pause pauses an executing run.
func (c *Client) Pause(ctx context.Context, runID string) error {
	return c.action(ctx, runID, "pause")
}

// Stop aborts a run. It uses a short timeout so a wedged robot cannot
// hang the caller during shutdown.
func (c *Client) Stop(ctx context.Context, runID string) error {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	return c.action(ctx, runID, "stop")
}

func (c *Client) action(ctx context.Context, runID, actionType string) error {
	in := map[string]any{
		"data": map[string]string{"actionType": actionType},
	}
	err := c.postJSON(ctx, "/runs/"+runID+"/actions", in, nil)
	return errors.Wrapf(err, "%s run", actionType)
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var out struct {
		Data Run `json:"data"`
	}
	if err := c.getJSON(ctx, "/runs/"+runID, &out); err != nil {
		return Run{}, errors.Wrap(err, "get run")
	}
	return out.Data, nil
}

// ListRuns fetches all runs known to the robot, oldest first.
func (c *Client) ListRuns(ctx context.Context) ([]Run, error) {
	var out struct {
		Data []Run `json:"data"`
	}
	if err := c.getJSON(ctx, "/runs", &out); err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	return out.Data, nil
}

// CommandProgress reports how far through its command list a run is.
// Not every poll has a current command pointer (e.g. before the run
// starts); callers should treat a zero Total as "unknown".
func (c *Client) CommandProgress(ctx context.Context, runID string) (Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var out struct {
		Meta struct {
			TotalLength int `json:"totalLength"`
		} `json:"meta"`
		Links struct {
			Current struct {
				Meta struct {
					Index int `json:"index"`
				} `json:"meta"`
			} `json:"current"`
		} `json:"links"`
	}
	if err := c.getJSON(ctx, "/runs/"+runID+"/commands?pageLength=1", &out); err != nil {
		return Progress{}, errors.Wrap(err, "command progress")
	}
	return Progress{
		Index: out.Links.Current.Meta.Index,
		Total: out.Meta.TotalLength,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Opentrons-Version", apiVersion)
	return c.send(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Opentrons-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Errorf("%s %s: %s", req.Method, req.URL.Path, apiErrorDetail(resp))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// apiErrorDetail pulls the human-readable detail out of an API error
// response, falling back to the HTTP status line.
func apiErrorDetail(resp *http.Response) string {
	var body struct {
		Errors []struct {
			Detail string `json:"detail"`
		} `json:"errors"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if len(body.Errors) > 0 && body.Errors[0].Detail != "" {
			return body.Errors[0].Detail
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return resp.Status
}
