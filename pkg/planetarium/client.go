// Package planetarium centers a Stellarium instance on a target through its
// remote control HTTP API.
package planetarium

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/coords"
	"github.com/dwarf-astro/dwarfctl/pkg/errors"
)

const (
	FocusPath    = "/api/main/focus?target="
	FocusPosPath = "/api/main/focus?position="

	DefaultTimeout = 2 * time.Second
)

var (
	ErrNotConfigured = errors.New("stellarium url not configured")
	ErrUnreachable   = errors.New("stellarium unreachable")
	ErrNotFound      = errors.New("object not found in stellarium")
)

// Target is an object to center, by name and by coordinates.
type Target struct {
	Designation string
	RA          float64 // decimal hours
	Dec         float64 // decimal degrees
	Asteroid    bool
	Mosaic      bool
}

// Client talks to one Stellarium instance.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// post sends an empty POST to path and returns the response body as is.
func (c *Client) post(ctx context.Context, path string) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("planetarium_request_failed", "url", c.baseURL, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return string(body), nil
}

// CenterByName focuses the object with the given designation. Stellarium
// answers "true" when it found it.
func (c *Client) CenterByName(ctx context.Context, designation string) error {
	body, err := c.post(ctx, FocusPath+url.QueryEscape(designation))
	if err != nil {
		return err
	}
	if body != "true" {
		slog.Info("planetarium_name_not_found", "designation", designation, "body", body)
		return errors.Wrapf(ErrNotFound, "%s", designation)
	}
	slog.Info("planetarium_centered", "designation", designation)
	return nil
}

func position(raHours, decDeg float64) string {
	v := coords.Vec3(raHours, decDeg)
	return fmt.Sprintf("[%g,%g,%g]", v[0], v[1], v[2])
}

// CenterByCoordinates focuses the direction given by RA/Dec. Stellarium
// answers "ok" on success.
func (c *Client) CenterByCoordinates(ctx context.Context, raHours, decDeg float64) error {
	pos := position(raHours, decDeg)

	body, err := c.post(ctx, FocusPosPath+url.QueryEscape(pos))
	if err != nil {
		return err
	}
	if body != "ok" {
		slog.Info("planetarium_position_rejected", "position", pos, "body", body)
		return &CenterError{Subject: pos, Err: ErrNotFound}
	}
	slog.Info("planetarium_centered", "position", pos)
	return nil
}

// Center focuses t by name and falls back to its coordinates, except for
// asteroids whose catalogue position is not meaningful. Mosaics are centered
// by coordinates only.
func (c *Client) Center(ctx context.Context, t Target) error {
	if t.Mosaic {
		return c.CenterByCoordinates(ctx, t.RA, t.Dec)
	}

	err := c.CenterByName(ctx, t.Designation)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return err
	}
	if t.Asteroid {
		return &CenterError{Subject: t.Designation, Asteroid: true, Err: err}
	}
	if err := c.CenterByCoordinates(ctx, t.RA, t.Dec); err != nil {
		var ce *CenterError
		if errors.As(err, &ce) {
			ce.Subject = t.Designation
		}
		return err
	}
	return nil
}

// CenterError reports a target that could not be centered. Subject is the
// designation or the position vector that was tried last.
type CenterError struct {
	Subject  string
	Asteroid bool
	Err      error
}

func (e *CenterError) Error() string {
	return fmt.Sprintf("could not center %s: %v", e.Subject, e.Err)
}

func (e *CenterError) Unwrap() error { return e.Err }

// Message maps an error of this package to the text shown to the user.
func Message(err error) string {
	var ce *CenterError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "App is not connect to Stellarium."
	case errors.Is(err, ErrUnreachable):
		return "Can not connect to Stellarium"
	case errors.As(err, &ce) && ce.Asteroid:
		return fmt.Sprintf("Could not find Asteroid : %s in Stellarium", ce.Subject)
	case errors.As(err, &ce):
		return fmt.Sprintf("Could not find object by coordinates : %s", ce.Subject)
	case errors.Is(err, ErrNotFound):
		return "Could not find object in Stellarium"
	}
	return err.Error()
}
