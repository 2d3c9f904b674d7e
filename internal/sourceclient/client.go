// Package sourceclient implements C1, the periodic client for the upstream
// transit API: tram boards, routes, and points. Grounded on the teacher's
// rodalies.Poller / metro.Poller (a *http.Client with a fixed timeout, one
// fetch method per feed, returning typed rows) with JSON replacing the
// teacher's GTFS-RT protobuf decoding, and a transient/fatal retry
// classification layered on top per spec.md §4.1 and §7.
package sourceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/empsgit/tram-monitor-ekb/domain"
)

const (
	maxAttempts = 3
	baseBackoff = 200 * time.Millisecond
)

// FatalError marks an upstream response that retrying cannot fix (malformed
// JSON, 4xx): the tick is skipped and prior state is kept, per spec.md §7.
type FatalError struct{ err error }

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

// Client fetches vehicles, routes, and points from the ETTU-shaped transit
// API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

// New builds a Client against baseURL, matching the teacher's client
// construction (a shared *http.Client with a fixed timeout).
func New(baseURL, apiKey string, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type boardDTO struct {
	ID        string  `json:"id"`
	BoardNum  string  `json:"board_num"`
	Route     string  `json:"route"`
	RouteID   *int    `json:"route_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Speed     float64 `json:"speed"`
	Course    float64 `json:"course"`
	Timestamp int64   `json:"timestamp"`
}

// FetchVehicles pulls the current tram boards. Called on every tick.
func (c *Client) FetchVehicles(ctx context.Context) ([]domain.RawVehicle, error) {
	var dtos []boardDTO
	if err := c.getJSON(ctx, "/api/v2/tram/boards/", &dtos); err != nil {
		return nil, err
	}

	vehicles := make([]domain.RawVehicle, 0, len(dtos))
	for _, d := range dtos {
		vehicles = append(vehicles, domain.RawVehicle{
			DeviceID:    d.ID,
			BoardNumber: d.BoardNum,
			RouteNumber: d.Route,
			RouteID:     d.RouteID,
			Lat:         d.Lat,
			Lon:         d.Lon,
			SpeedKMH:    d.Speed,
			CourseDeg:   d.Course,
			Timestamp:   time.Unix(d.Timestamp, 0).UTC(),
		})
	}
	return vehicles, nil
}

type routeElementDTO struct {
	Direction int   `json:"direction"`
	Path      []int `json:"path"`
}

type routeDTO struct {
	ID       int               `json:"id"`
	Number   string            `json:"number"`
	Name     string            `json:"name"`
	Elements []routeElementDTO `json:"elements"`
}

// FetchRoutes pulls route topology. Called at startup and on route refresh.
func (c *Client) FetchRoutes(ctx context.Context) ([]domain.Route, error) {
	var dtos []routeDTO
	if err := c.getJSON(ctx, "/api/v2/tram/routes/", &dtos); err != nil {
		return nil, err
	}

	routes := make([]domain.Route, 0, len(dtos))
	for _, d := range dtos {
		r := domain.Route{ID: d.ID, Number: d.Number, Name: d.Name}
		for _, el := range d.Elements {
			switch el.Direction {
			case domain.DirectionForward:
				r.ForwardPath = el.Path
			case domain.DirectionReverse:
				r.ReversePath = el.Path
			}
		}
		routes = append(routes, r)
	}
	return routes, nil
}

type pointDTO struct {
	ID        int     `json:"ID"`
	Name      string  `json:"NAME"`
	Lat       float64 `json:"LAT"`
	Lon       float64 `json:"LON"`
	Status    string  `json:"STATUS"`
	Direction string  `json:"DIRECTION"`
}

// FetchPoints pulls the stop catalog. Called at startup and on route
// refresh.
func (c *Client) FetchPoints(ctx context.Context) ([]domain.Stop, error) {
	var dtos []pointDTO
	if err := c.getJSON(ctx, "/api/v2/tram/points/", &dtos); err != nil {
		return nil, err
	}

	stops := make([]domain.Stop, 0, len(dtos))
	for _, d := range dtos {
		stops = append(stops, domain.Stop{
			ID:        d.ID,
			Name:      d.Name,
			Lat:       d.Lat,
			Lon:       d.Lon,
			Direction: d.Direction,
			Active:    isActiveStatus(d.Status),
		})
	}
	return stops, nil
}

func isActiveStatus(status string) bool {
	return status == "" || status == "0" || status == "active" || status == "ACTIVE"
}

// getJSON performs the GET with apiKey attached, retrying transient
// failures (network errors, timeouts, 5xx) up to maxAttempts with
// exponential backoff, and returning a *FatalError for anything else
// (malformed JSON, 4xx) so callers can skip the tick without further
// retries.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return &FatalError{fmt.Errorf("invalid base url: %w", err)}
	}
	q := u.Query()
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()

	var lastErr error
	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, err := c.doOnce(ctx, u.String())
		if err == nil {
			if jsonErr := json.Unmarshal(body, out); jsonErr != nil {
				return &FatalError{fmt.Errorf("decode %s: %w", path, jsonErr)}
			}
			return nil
		}

		if fatal, ok := err.(*FatalError); ok {
			return fatal
		}

		lastErr = err
		if c.log != nil {
			c.log.Warn("transient fetch failure, retrying",
				zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("transient failure after %d attempts: %w", maxAttempts, lastErr)
}

// doOnce performs a single GET, classifying the result as transient
// (plain error, retryable) or fatal (*FatalError, not retryable).
func (c *Client) doOnce(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &FatalError{err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err) // network/timeout: transient
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, &FatalError{fmt.Errorf("upstream status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &FatalError{fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	return body, nil
}
