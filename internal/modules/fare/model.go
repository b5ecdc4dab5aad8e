// README: Fare rate definition for each ride class.
package fare

import "tripease/internal/types"

type Rate struct {
	RideType types.RideType
	Name     string
	Icon     string
	BaseFare int
	PerKm    float64
	PerMin   float64
	MinFare  int
}

// Rates is fixed at build time.
var Rates = map[types.RideType]Rate{
	types.RideAuto:    {RideType: types.RideAuto, Name: "Auto", Icon: "🛺", BaseFare: 25, PerKm: 12, PerMin: 1, MinFare: 30},
	types.RideBike:    {RideType: types.RideBike, Name: "Bike", Icon: "🏍️", BaseFare: 15, PerKm: 8, PerMin: 0.5, MinFare: 20},
	types.RideCar:     {RideType: types.RideCar, Name: "Car", Icon: "🚗", BaseFare: 50, PerKm: 15, PerMin: 2, MinFare: 80},
	types.RidePremium: {RideType: types.RidePremium, Name: "Premium", Icon: "🚙", BaseFare: 100, PerKm: 25, PerMin: 3, MinFare: 150},
}

type Estimate struct {
	RideType     types.RideType `json:"rideType"`
	Name         string         `json:"rideName"`
	Icon         string         `json:"rideIcon"`
	BaseFare     int            `json:"baseFare"`
	DistanceFare int            `json:"distanceFare"`
	TimeFare     int            `json:"timeFare"`
	TotalFare    int            `json:"totalFare"`
	DistanceKm   float64        `json:"distanceKm"`
	DistanceText string         `json:"distanceText"`
	DurationMin  int            `json:"durationMin"`
	DurationText string         `json:"durationText"`
}

type Request struct {
	Pickup     types.Point
	Dest       types.Point
	PickupAddr string
	DestAddr   string
}

type Calculation struct {
	PickupAddress      string     `json:"pickupAddress"`
	DestinationAddress string     `json:"destinationAddress"`
	DistanceKm         float64    `json:"distanceKm"`
	DurationMin        int        `json:"durationMin"`
	DistanceText       string     `json:"distanceText"`
	DurationText       string     `json:"durationText"`
	Estimates          []Estimate `json:"fareEstimates"`
	Message            string     `json:"message"`
}
