package sourceclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchVehiclesParsesBoards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") != "secret" {
			t.Errorf("missing apiKey query param")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"dev-1","board_num":"101","route":"1","lat":56.8,"lon":60.6,"speed":20.5,"course":90,"timestamp":1700000000}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", nil)
	vehicles, err := c.FetchVehicles(context.Background())
	if err != nil {
		t.Fatalf("FetchVehicles: %v", err)
	}
	if len(vehicles) != 1 {
		t.Fatalf("got %d vehicles, want 1", len(vehicles))
	}
	v := vehicles[0]
	if v.DeviceID != "dev-1" || v.RouteNumber != "1" || v.SpeedKMH != 20.5 {
		t.Errorf("unexpected vehicle: %+v", v)
	}
}

func TestFetchPointsUppercaseFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"ID":7,"NAME":"Вокзал","LAT":56.83,"LON":60.6,"STATUS":"active","DIRECTION":"forward"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", nil)
	stops, err := c.FetchPoints(context.Background())
	if err != nil {
		t.Fatalf("FetchPoints: %v", err)
	}
	if len(stops) != 1 || stops[0].ID != 7 || !stops[0].Active {
		t.Errorf("unexpected stops: %+v", stops)
	}
}

func TestFetchRoutesBuildsForwardAndReversePaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"number":"1","name":"Line 1","elements":[{"direction":0,"path":[1,2,3]},{"direction":1,"path":[3,2,1]}]}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", nil)
	routes, err := c.FetchRoutes(context.Background())
	if err != nil {
		t.Fatalf("FetchRoutes: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("got %d routes, want 1", len(routes))
	}
	r := routes[0]
	if len(r.ForwardPath) != 3 || r.ForwardPath[0] != 1 {
		t.Errorf("unexpected forward path: %v", r.ForwardPath)
	}
	if len(r.ReversePath) != 3 || r.ReversePath[0] != 3 {
		t.Errorf("unexpected reverse path: %v", r.ReversePath)
	}
}

func TestGetJSONFatalOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", nil)
	_, err := c.FetchVehicles(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*FatalError); !ok {
		t.Errorf("expected *FatalError, got %T: %v", err, err)
	}
}

func TestGetJSONRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", nil)
	vehicles, err := c.FetchVehicles(context.Background())
	if err != nil {
		t.Fatalf("FetchVehicles: %v", err)
	}
	if len(vehicles) != 0 {
		t.Errorf("got %d vehicles, want 0", len(vehicles))
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}
