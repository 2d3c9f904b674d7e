package atlas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/go.geojson"
	"go.uber.org/zap"

	"github.com/empsgit/tram-monitor-ekb/domain"
)

// requestPause is the minimum gap between OSRM requests, per spec.md §4.3.
const requestPause = 300 * time.Millisecond

// GeometryFetcher requests street-following polylines from an OSRM-shaped
// routing service, grounded on the plain *http.Client GET pattern the
// teacher uses for every upstream fetch, with the response body parsed
// through paulmach/go.geojson (the GeoJSON library this retrieval pack
// already depends on via angelodlfrtr-valhalla-http-client-go's routing
// client) instead of a hand-rolled LineString struct.
type GeometryFetcher struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
	lastReq time.Time
}

// NewGeometryFetcher builds a GeometryFetcher against baseURL (an
// OSRM-compatible `/route/v1/driving` endpoint).
func NewGeometryFetcher(baseURL string, log *zap.Logger) *GeometryFetcher {
	return &GeometryFetcher{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry json.RawMessage `json:"geometry"`
	} `json:"routes"`
}

// FetchPolyline requests a road-following polyline through waypoints (in
// order). Failure of any kind (network, non-2xx, malformed geometry)
// returns an error; callers fall back to the straight-line path per
// spec.md §4.3.
func (f *GeometryFetcher) FetchPolyline(ctx context.Context, waypoints []domain.LatLon) ([]domain.LatLon, error) {
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("need at least 2 waypoints, got %d", len(waypoints))
	}

	f.pace()

	coords := make([]string, len(waypoints))
	for i, wp := range waypoints {
		coords[i] = strconv.FormatFloat(wp.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(wp.Lat, 'f', 6, 64)
	}
	url := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=geojson", f.baseURL, strings.Join(coords, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osrm status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("osrm read body: %w", err)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("osrm decode: %w", err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("osrm returned code %q with %d routes", parsed.Code, len(parsed.Routes))
	}

	geom, err := geojson.UnmarshalGeometry(parsed.Routes[0].Geometry)
	if err != nil {
		return nil, fmt.Errorf("osrm geometry decode: %w", err)
	}
	if geom.Type != geojson.GeometryLineString {
		return nil, fmt.Errorf("osrm geometry type %q, want LineString", geom.Type)
	}

	line := make([]domain.LatLon, len(geom.LineString))
	for i, pt := range geom.LineString {
		// GeoJSON orders coordinates [lon, lat].
		line[i] = domain.LatLon{Lon: pt[0], Lat: pt[1]}
	}
	return line, nil
}

// pace enforces the minimum inter-request gap so a full route refresh
// serializes its OSRM calls rather than bursting them.
func (f *GeometryFetcher) pace() {
	if f.lastReq.IsZero() {
		f.lastReq = time.Now()
		return
	}
	elapsed := time.Since(f.lastReq)
	if elapsed < requestPause {
		time.Sleep(requestPause - elapsed)
	}
	f.lastReq = time.Now()
}

// StraightLineFallback builds the piecewise-linear path through stop
// coordinates, used when OSRM is unreachable or returns a non-2xx, per
// spec.md §4.3.
func StraightLineFallback(stops []domain.Stop) []domain.LatLon {
	line := make([]domain.LatLon, len(stops))
	for i, s := range stops {
		line[i] = domain.LatLon{Lat: s.Lat, Lon: s.Lon}
	}
	return line
}

// ReversePolyline returns a new slice with points in reverse order, used
// when the reverse direction reuses the forward geometry per spec.md §4.3.
func ReversePolyline(line []domain.LatLon) []domain.LatLon {
	rev := make([]domain.LatLon, len(line))
	for i, pt := range line {
		rev[len(line)-1-i] = pt
	}
	return rev
}
