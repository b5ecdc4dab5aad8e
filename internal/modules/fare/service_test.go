package fare

import (
	"context"
	"testing"

	"tripease/internal/modules/distance"
	"tripease/internal/types"
)

type fixedEstimator struct {
	est distance.Estimate
}

func (f fixedEstimator) Estimate(context.Context, types.Point, types.Point) distance.Estimate {
	return f.est
}

func TestQuote_ZeroTripIsMinimumFare(t *testing.T) {
	got := NewService(nil).Quote(0, 0)
	if len(got) != len(types.RideTypes) {
		t.Fatalf("expected %d estimates, got %d", len(types.RideTypes), len(got))
	}
	want := map[types.RideType]int{
		types.RideAuto:    30,
		types.RideBike:    20,
		types.RideCar:     80,
		types.RidePremium: 150,
	}
	for i, e := range got {
		if e.RideType != types.RideTypes[i] {
			t.Errorf("estimate %d is %s, want %s", i, e.RideType, types.RideTypes[i])
		}
		if e.TotalFare != want[e.RideType] {
			t.Errorf("%s total = %d, want %d", e.RideType, e.TotalFare, want[e.RideType])
		}
	}
}

func TestQuote_Breakdown(t *testing.T) {
	tests := []struct {
		name      string
		km        float64
		min       int
		rideType  types.RideType
		wantDist  int
		wantTime  int
		wantTotal int
	}{
		// 5.2*12 = 62.4 -> 62, 16*1 = 16, +25
		{"auto city hop", 5.2, 16, types.RideAuto, 62, 16, 103},
		// 5.2*8 = 41.6 -> 41, 16*0.5 = 8, +15
		{"bike city hop", 5.2, 16, types.RideBike, 41, 8, 64},
		// 3.3*8 = 26.4 -> 26, 9*0.5 = 4.5 -> 4, +15
		{"bike fractional minutes", 3.3, 9, types.RideBike, 26, 4, 45},
		// 1*15 + 1*2 + 50 = 67 -> clamped to 80
		{"car below minimum", 1, 1, types.RideCar, 15, 2, 80},
		// 12.5*25 = 312.5 -> 312, 40*3 = 120, +100
		{"premium long trip", 12.5, 40, types.RidePremium, 312, 120, 532},
	}
	svc := NewService(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Estimate
			for _, e := range svc.Quote(tt.km, tt.min) {
				if e.RideType == tt.rideType {
					got = e
				}
			}
			if got.DistanceFare != tt.wantDist || got.TimeFare != tt.wantTime || got.TotalFare != tt.wantTotal {
				t.Errorf("got dist=%d time=%d total=%d, want %d/%d/%d",
					got.DistanceFare, got.TimeFare, got.TotalFare, tt.wantDist, tt.wantTime, tt.wantTotal)
			}
		})
	}
}

func TestQuote_Monotonic(t *testing.T) {
	svc := NewService(nil)
	for _, rt := range types.RideTypes {
		prev := 0
		for km := 0.0; km <= 40; km += 0.7 {
			total := totalFor(svc.Quote(km, 10), rt)
			if total < prev {
				t.Fatalf("%s: fare decreased at %.1f km: %d < %d", rt, km, total, prev)
			}
			prev = total
		}
		prev = 0
		for min := 0; min <= 180; min += 7 {
			total := totalFor(svc.Quote(8, min), rt)
			if total < prev {
				t.Fatalf("%s: fare decreased at %d min: %d < %d", rt, min, total, prev)
			}
			prev = total
		}
	}
}

func TestCalculate(t *testing.T) {
	est := distance.FromRoute(distance.Route{DistanceMeters: 5200, DurationSeconds: 960})
	svc := NewService(fixedEstimator{est: est})

	got := svc.Calculate(context.Background(), Request{PickupAddr: "MG Road", DestAddr: "Indiranagar"})
	if got.Message != "Success" {
		t.Fatalf("message = %q", got.Message)
	}
	if got.DistanceText != "5.2 km" || got.DurationText != "16 mins" {
		t.Errorf("display strings = %q / %q", got.DistanceText, got.DurationText)
	}
	if len(got.Estimates) != 4 || got.Estimates[0].TotalFare != 103 {
		t.Errorf("unexpected estimates: %+v", got.Estimates)
	}
	if got.Estimates[3].DistanceText != "5.2 km" {
		t.Errorf("display string not passed through: %+v", got.Estimates[3])
	}
	if got.PickupAddress != "MG Road" || got.DestinationAddress != "Indiranagar" {
		t.Errorf("addresses not passed through: %+v", got)
	}
}

func TestCalculate_NoEstimate(t *testing.T) {
	for name, svc := range map[string]*Service{
		"nil estimator":  NewService(nil),
		"empty estimate": NewService(fixedEstimator{}),
	} {
		t.Run(name, func(t *testing.T) {
			got := svc.Calculate(context.Background(), Request{})
			if len(got.Estimates) != 0 || got.Message != "Could not calculate distance. Please try again." {
				t.Fatalf("unexpected calculation: %+v", got)
			}
		})
	}
}

func totalFor(es []Estimate, rt types.RideType) int {
	for _, e := range es {
		if e.RideType == rt {
			return e.TotalFare
		}
	}
	return -1
}
