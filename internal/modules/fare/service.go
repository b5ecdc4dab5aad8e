// README: Fare service quotes every ride class for a trip.
package fare

import (
	"context"
	"math"

	"tripease/internal/modules/distance"
	"tripease/internal/types"
)

const (
	msgSuccess        = "Success"
	msgDistanceFailed = "Could not calculate distance. Please try again."
)

// Estimator is the distance collaborator; it is expected never to fail, but a
// zero-valued estimate is still handled.
type Estimator interface {
	Estimate(ctx context.Context, origin, dest types.Point) distance.Estimate
}

type Service struct {
	distance Estimator
}

func NewService(estimator Estimator) *Service {
	return &Service{distance: estimator}
}

// Quote prices every ride class in fixed order.
func (s *Service) Quote(distanceKm float64, durationMin int) []Estimate {
	return quote(distanceKm, durationMin, distance.FormatDistance(distanceKm), distance.FormatDuration(durationMin))
}

func (s *Service) Calculate(ctx context.Context, req Request) Calculation {
	out := Calculation{
		PickupAddress:      req.PickupAddr,
		DestinationAddress: req.DestAddr,
		Estimates:          []Estimate{},
	}
	if s.distance == nil {
		out.Message = msgDistanceFailed
		return out
	}
	est := s.distance.Estimate(ctx, req.Pickup, req.Dest)
	if est.Source == "" {
		out.Message = msgDistanceFailed
		return out
	}
	out.DistanceKm = est.DistanceKm
	out.DurationMin = est.DurationMin
	out.DistanceText = est.DistanceText
	out.DurationText = est.DurationText
	out.Estimates = quote(est.DistanceKm, est.DurationMin, est.DistanceText, est.DurationText)
	out.Message = msgSuccess
	return out
}

func quote(distanceKm float64, durationMin int, distanceText, durationText string) []Estimate {
	out := make([]Estimate, 0, len(types.RideTypes))
	for _, rt := range types.RideTypes {
		e := price(Rates[rt], distanceKm, durationMin)
		e.DistanceKm = distanceKm
		e.DurationMin = durationMin
		e.DistanceText = distanceText
		e.DurationText = durationText
		out = append(out, e)
	}
	return out
}

// price computes floor(d*perKm) + floor(t*perMin) + base, floored at MinFare.
func price(r Rate, distanceKm float64, durationMin int) Estimate {
	distanceFare := int(math.Floor(distanceKm * r.PerKm))
	timeFare := int(math.Floor(float64(durationMin) * r.PerMin))
	total := r.BaseFare + distanceFare + timeFare
	if total < r.MinFare {
		total = r.MinFare
	}
	return Estimate{
		RideType:     r.RideType,
		Name:         r.Name,
		Icon:         r.Icon,
		BaseFare:     r.BaseFare,
		DistanceFare: distanceFare,
		TimeFare:     timeFare,
		TotalFare:    total,
	}
}
