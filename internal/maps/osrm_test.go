package maps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tripease/internal/modules/distance"
	"tripease/internal/types"
)

func TestOSRMClient_Route(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":6249.3,"duration":1139.2},{"distance":1,"duration":1}]}`))
	}))
	defer srv.Close()

	c := NewOSRMClient(srv.URL, srv.Client())
	r, err := c.Route(context.Background(), types.Point{Lat: 12.9756, Lng: 77.605}, types.Point{Lat: 12.9352, Lng: 77.6245})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if r.DistanceMeters != 6249.3 || r.DurationSeconds != 1139.2 {
		t.Errorf("unexpected route: %+v", r)
	}
	if want := "/route/v1/driving/77.605000,12.975600;77.624500,12.935200"; gotPath != want {
		t.Errorf("path = %q, want %q (lng,lat order)", gotPath, want)
	}
	if gotQuery != "overview=false" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestOSRMClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-ok code", http.StatusOK, `{"code":"NoRoute","message":"Impossible route","routes":[]}`},
		{"empty routes", http.StatusOK, `{"code":"Ok","routes":[]}`},
		{"malformed json", http.StatusOK, `{"code":`},
		{"server error", http.StatusBadGateway, `oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOSRMClient(srv.URL, srv.Client()).Route(context.Background(), types.Point{}, types.Point{Lat: 1, Lng: 1})
			if err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

// A failing OSRM server must surface as the estimator's haversine fallback.
func TestOSRMClient_EstimatorFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	origin := types.Point{Lat: 12.9756, Lng: 77.605}
	dest := types.Point{Lat: 12.9352, Lng: 77.6245}
	est := distance.NewEstimator(NewOSRMClient(srv.URL, srv.Client()), nil, distance.Config{}, nil).Estimate(context.Background(), origin, dest)
	if est != distance.Fallback(origin, dest) {
		t.Fatalf("expected fallback estimate, got %+v", est)
	}
}
