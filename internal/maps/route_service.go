package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"tripease/internal/modules/distance"
	"tripease/internal/types"
)

// RouteService handles interactions with the Google Maps Directions API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Route returns the driving distance and duration of the first route, summed over its legs.
func (s *RouteService) Route(ctx context.Context, origin, dest types.Point) (distance.Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin.String(),
		Destination: dest.String(),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return distance.Route{}, fmt.Errorf("maps api error: %w", err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return distance.Route{}, fmt.Errorf("no route found")
	}

	var out distance.Route
	for _, leg := range routes[0].Legs {
		out.DistanceMeters += float64(leg.Distance.Meters)
		out.DurationSeconds += leg.Duration.Seconds()
	}
	return out, nil
}
