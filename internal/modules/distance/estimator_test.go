package distance

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"tripease/internal/types"
)

var (
	mgRoad      = types.Point{Lat: 12.9756, Lng: 77.6050}
	koramangala = types.Point{Lat: 12.9352, Lng: 77.6245}
)

type stubRouter struct {
	route Route
	err   error
	block bool
	calls int
}

func (s *stubRouter) Route(ctx context.Context, _, _ types.Point) (Route, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return Route{}, ctx.Err()
	}
	return s.route, s.err
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]Estimate
	err  error
}

func (m *mapCache) Get(_ context.Context, o, d types.Point) (Estimate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Estimate{}, false, m.err
	}
	e, ok := m.data[cacheKey(o, d)]
	return e, ok, nil
}

func (m *mapCache) Set(_ context.Context, o, d types.Point, e Estimate, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.data == nil {
		m.data = map[string]Estimate{}
	}
	m.data[cacheKey(o, d)] = e
	return nil
}

func TestEstimate_PrimaryRoute(t *testing.T) {
	router := &stubRouter{route: Route{DistanceMeters: 6249, DurationSeconds: 1139}}
	est := NewEstimator(router, nil, Config{Timeout: time.Second}, nil).Estimate(context.Background(), mgRoad, koramangala)

	if est.DistanceKm != 6.2 || est.DurationMin != 19 {
		t.Fatalf("got %.1f km / %d min, want 6.2 km / 19 min", est.DistanceKm, est.DurationMin)
	}
	if est.DistanceText != "6.2 km" || est.DurationText != "19 mins" || est.Source != SourceRouting {
		t.Errorf("unexpected estimate: %+v", est)
	}
}

func TestEstimate_FallbackMatchesHaversine(t *testing.T) {
	want := Fallback(mgRoad, koramangala)
	tests := []struct {
		name   string
		router Router
	}{
		{"router error", &stubRouter{err: errors.New("connection refused")}},
		{"router timeout", &stubRouter{block: true}},
		{"negative distance", &stubRouter{route: Route{DistanceMeters: -1, DurationSeconds: 10}}},
		{"NaN duration", &stubRouter{route: Route{DistanceMeters: 10, DurationSeconds: math.NaN()}}},
		{"no router", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEstimator(tt.router, nil, Config{Timeout: 20 * time.Millisecond}, nil)
			got := e.Estimate(context.Background(), mgRoad, koramangala)
			if got != want {
				t.Fatalf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestFallback_Values(t *testing.T) {
	est := Fallback(mgRoad, koramangala)
	straight := haversineKm(mgRoad.Lat, mgRoad.Lng, koramangala.Lat, koramangala.Lng)
	if want := math.Floor(straight*1.3*10+0.5) / 10; est.DistanceKm != want {
		t.Errorf("DistanceKm = %v, want %v", est.DistanceKm, want)
	}
	if want := int(est.DistanceKm * 3); est.DurationMin != want {
		t.Errorf("DurationMin = %d, want %d", est.DurationMin, want)
	}
	if est.Source != SourceFallback {
		t.Errorf("Source = %q", est.Source)
	}

	same := Fallback(mgRoad, mgRoad)
	if same.DistanceKm != 0 || same.DurationMin != 0 || same.DurationText != "0 mins" {
		t.Errorf("zero-length trip: %+v", same)
	}
}

func TestFromRoute_Rounding(t *testing.T) {
	tests := []struct {
		meters, seconds float64
		wantKm          float64
		wantMin         int
	}{
		{5234, 959, 5.2, 16},
		{5250, 929, 5.3, 15},
		{49, 29, 0, 0},
		{50, 30, 0.1, 1},
		{120400, 7290, 120.4, 122},
	}
	for _, tt := range tests {
		got := FromRoute(Route{DistanceMeters: tt.meters, DurationSeconds: tt.seconds})
		if got.DistanceKm != tt.wantKm || got.DurationMin != tt.wantMin {
			t.Errorf("FromRoute(%v m, %v s) = %v km / %d min, want %v / %d",
				tt.meters, tt.seconds, got.DistanceKm, got.DurationMin, tt.wantKm, tt.wantMin)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int]string{
		0:   "0 mins",
		1:   "1 mins",
		59:  "59 mins",
		60:  "1 hr 0 mins",
		135: "2 hr 15 mins",
	}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestEstimate_CachesOnlyRoutingResults(t *testing.T) {
	ctx := context.Background()
	cache := &mapCache{}
	router := &stubRouter{route: Route{DistanceMeters: 6249, DurationSeconds: 1139}}
	e := NewEstimator(router, cache, Config{CacheTTL: time.Minute}, nil)

	first := e.Estimate(ctx, mgRoad, koramangala)
	second := e.Estimate(ctx, mgRoad, koramangala)
	if first != second {
		t.Fatalf("cached estimate differs: %+v vs %+v", first, second)
	}
	if router.calls != 1 {
		t.Errorf("router calls = %d, want 1", router.calls)
	}

	failing := &stubRouter{err: errors.New("down")}
	fallbackOnly := &mapCache{}
	e = NewEstimator(failing, fallbackOnly, Config{CacheTTL: time.Minute}, nil)
	e.Estimate(ctx, mgRoad, koramangala)
	if len(fallbackOnly.data) != 0 {
		t.Errorf("fallback result was cached: %v", fallbackOnly.data)
	}
}

func TestEstimate_CacheErrorsIgnored(t *testing.T) {
	router := &stubRouter{route: Route{DistanceMeters: 1000, DurationSeconds: 120}}
	e := NewEstimator(router, &mapCache{err: errors.New("redis down")}, Config{CacheTTL: time.Minute}, nil)
	got := e.Estimate(context.Background(), mgRoad, koramangala)
	if got.DistanceKm != 1.0 || got.DurationMin != 2 {
		t.Fatalf("unexpected estimate: %+v", got)
	}
}
