package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wardenlabs/warden/internal/model"
)

// ErrTransient marks failures worth retrying next tick: timeouts,
// connection refusals, simulator 5xx responses.
var ErrTransient = errors.New("transient simulator failure")

// ErrProtocol marks responses the adapter could not interpret:
// malformed bodies, unexpected status codes.
var ErrProtocol = errors.New("simulator protocol mismatch")

// Client talks to the simulator over HTTP. Safe for concurrent use.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	readTimeout    time.Duration
	commandTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the X-Sim-Token header value.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeouts overrides the per-call deadlines for reads (telemetry,
// world) and command sends.
func WithTimeouts(read, command time.Duration) Option {
	return func(c *Client) {
		c.readTimeout = read
		c.commandTimeout = command
	}
}

// WithHTTPClient substitutes the underlying HTTP client, mainly for
// tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a simulator client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		readTimeout:    time.Second,
		commandTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Telemetry fetches the current telemetry snapshot. The snapshot is
// boundary-validated before it is returned.
func (c *Client) Telemetry(ctx context.Context) (model.Telemetry, error) {
	var tel model.Telemetry
	if err := c.getJSON(ctx, "/telemetry", c.readTimeout, &tel); err != nil {
		return model.Telemetry{}, err
	}
	if err := model.ValidateTelemetry(&tel); err != nil {
		return model.Telemetry{}, fmt.Errorf("telemetry: %v: %w", err, ErrProtocol)
	}
	return tel, nil
}

// World fetches the static world definition.
func (c *Client) World(ctx context.Context) (model.World, error) {
	var w model.World
	if err := c.getJSON(ctx, "/world", c.readTimeout, &w); err != nil {
		return model.World{}, err
	}
	return w, nil
}

// CommandResult is the simulator's response to a command.
type CommandResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// SendCommand executes an approved action on the simulator. Not
// idempotent; callers must not retry blindly.
func (c *Client) SendCommand(ctx context.Context, intent model.Intent, params *model.ActionParams) (CommandResult, error) {
	body := map[string]any{"intent": intent}
	if params != nil {
		body["params"] = params
	}
	var res CommandResult
	if err := c.postJSON(ctx, "/command", c.commandTimeout, body, &res); err != nil {
		return CommandResult{}, err
	}
	return res, nil
}

// TriggerScenario arms a named scenario for demo determinism.
func (c *Client) TriggerScenario(ctx context.Context, name string) error {
	return c.postJSON(ctx, "/scenario", c.commandTimeout, map[string]any{"name": name}, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, timeout time.Duration, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("sim %s: %w", path, err)
	}
	return c.do(req, path, dst)
}

func (c *Client) postJSON(ctx context.Context, path string, timeout time.Duration, body, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("sim %s: marshal: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sim %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, dst)
}

func (c *Client) do(req *http.Request, path string, dst any) error {
	if c.token != "" {
		req.Header.Set("X-Sim-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection errors are transient; next tick may
		// succeed.
		return fmt.Errorf("sim %s: %v: %w", path, err, ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("sim %s: status %d: %w", path, resp.StatusCode, ErrTransient)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("sim %s: status %d: %w", path, resp.StatusCode, ErrProtocol)
	}

	if dst == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("sim %s: decode: %v: %w", path, err, ErrProtocol)
	}
	return nil
}
