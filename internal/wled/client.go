// Package wled is the transport layer for a WLED device's JSON API.
// It performs single request/response exchanges and keeps no device state.
package wled

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

	"golang.org/x/time/rate"
)

var (
	// ErrProbeTimeout is returned when a query does not answer within its timeout.
	ErrProbeTimeout = errors.New("probe timed out")
	// ErrProbeMalformed is returned when a query answers with something that is
	// not JSON or does not identify itself as a device.
	ErrProbeMalformed = errors.New("probe response malformed")
)

// TransportError describes a failed control command: either the request never
// completed (Err set) or the device answered with a non-2xx status.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wled transport: %v", e.Err)
	}
	return strings.TrimSpace(fmt.Sprintf("wled HTTP %d %s", e.Status, e.Body))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client talks to WLED devices over HTTP. The base address is passed on every
// call because the target device changes whenever discovery or the user does.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client. rateLimitRPS bounds outgoing state commands;
// zero disables the limiter.
func NewClient(httpClient *http.Client, rateLimitRPS float64) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{httpClient: httpClient}
	if rateLimitRPS > 0 {
		burst := int(rateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rateLimitRPS), burst)
	}
	return c
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Info fetches /json/info and checks that the answer identifies a device.
func (c *Client) Info(ctx context.Context, base string, timeout time.Duration) (*Info, error) {
	var info Info
	if err := c.getJSON(ctx, base, "/json/info", timeout, &info); err != nil {
		return nil, err
	}
	if !info.LooksLikeDevice() {
		return nil, fmt.Errorf("%w: no ver, name or info field", ErrProbeMalformed)
	}
	return &info, nil
}

// Effects fetches the ordered effect name list.
func (c *Client) Effects(ctx context.Context, base string, timeout time.Duration) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, base, "/json/effects", timeout, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Palettes fetches the ordered palette name list.
func (c *Client) Palettes(ctx context.Context, base string, timeout time.Duration) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, base, "/json/palettes", timeout, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// State posts a partial state update to /json/state.
func (c *Client) State(ctx context.Context, base string, state State) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Err: err}
		}
	}

	body, err := json.Marshal(state)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url(base, "/json/state"), bytes.NewReader(body))
	if err != nil {
		return &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{Status: resp.StatusCode, Body: string(text)}
	}

	// The device usually echoes the new state; an empty body is fine too.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, base, path string, timeout time.Duration, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url(base, path), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrProbeTimeout, path)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrProbeTimeout, path)
		}
		return fmt.Errorf("%w: %v", ErrProbeMalformed, err)
	}
	return nil
}

func url(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
