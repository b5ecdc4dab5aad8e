// README: OSRM routing client (public demo server by default).
package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"tripease/internal/modules/distance"
	"tripease/internal/types"
)

type OSRMClient struct {
	baseURL string
	http    *http.Client
}

func NewOSRMClient(baseURL string, httpClient *http.Client) *OSRMClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OSRMClient{baseURL: baseURL, http: httpClient}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// Route queries /route/v1/driving with coordinates in lng,lat order.
func (c *OSRMClient) Route(ctx context.Context, origin, dest types.Point) (distance.Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		c.baseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return distance.Route{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return distance.Route{}, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return distance.Route{}, fmt.Errorf("osrm status %d", resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return distance.Route{}, fmt.Errorf("decode osrm response: %w", err)
	}
	if body.Code != "Ok" {
		return distance.Route{}, fmt.Errorf("osrm code %q: %s", body.Code, body.Message)
	}
	if len(body.Routes) == 0 {
		return distance.Route{}, fmt.Errorf("osrm returned no routes")
	}
	return distance.Route{
		DistanceMeters:  body.Routes[0].Distance,
		DurationSeconds: body.Routes[0].Duration,
	}, nil
}
