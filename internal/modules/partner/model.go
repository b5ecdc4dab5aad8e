// README: Partner request/response contracts; field names follow the partner API.
package partner

import (
	"tripease/internal/modules/booking"
	"tripease/internal/types"
)

// Request is a partner booking submission. Numeric fields are optional.
type Request struct {
	SourceSystem       string         `json:"sourceSystem"`
	ExternalBookingID  *int64         `json:"externalBookingId"`
	PassengerName      string         `json:"passengerName"`
	PassengerEmail     string         `json:"passengerEmail"`
	PassengerPhone     string         `json:"passengerPhone"`
	PickupAddress      string         `json:"pickupAddress"`
	PickupLat          *float64       `json:"pickupLat"`
	PickupLng          *float64       `json:"pickupLng"`
	DestinationAddress string         `json:"destinationAddress"`
	DestinationLat     *float64       `json:"destinationLat"`
	DestinationLng     *float64       `json:"destinationLng"`
	TripDistanceInKm   *float64       `json:"tripDistanceInKm"`
	EstimatedTimeMin   *int           `json:"estimatedTimeMin"`
	EstimatedFare      *float64       `json:"estimatedFare"`
	RideType           types.RideType `json:"rideType"`
	SpecialRequests    string         `json:"specialRequests"`
	CallbackURL        string         `json:"callbackUrl" binding:"omitempty,url"`
}

// Response always carries Success and Message; booking fields are set when known.
type Response struct {
	TripEaseBookingID int64          `json:"tripEaseBookingId,omitempty"`
	SourceSystem      string         `json:"sourceSystem,omitempty"`
	ExternalBookingID int64          `json:"externalBookingId,omitempty"`
	Status            booking.Status `json:"status,omitempty"`
	DriverName        string         `json:"driverName,omitempty"`
	DriverEmail       string         `json:"driverEmail,omitempty"`
	EstimatedFare     float64        `json:"estimatedFare"`
	EstimatedTimeMin  int            `json:"estimatedTimeMin"`
	Message           string         `json:"message"`
	Success           bool           `json:"success"`
}

// webhookPayload is POSTed to the partner callback URL on every status change.
type webhookPayload struct {
	TripEaseBookingID int64          `json:"tripEaseBookingId"`
	ExternalBookingID int64          `json:"externalBookingId"`
	Status            booking.Status `json:"status"`
	DriverEmail       string         `json:"driverEmail,omitempty"`
}

func (r Request) toCommand() booking.ExternalCommand {
	cmd := booking.ExternalCommand{
		SourceSystem:     r.SourceSystem,
		PassengerName:    r.PassengerName,
		PassengerEmail:   r.PassengerEmail,
		PassengerPhone:   r.PassengerPhone,
		PickupAddress:    r.PickupAddress,
		Pickup:           types.Point{Lat: floatOr(r.PickupLat, 0), Lng: floatOr(r.PickupLng, 0)},
		DestAddress:      r.DestinationAddress,
		Dest:             types.Point{Lat: floatOr(r.DestinationLat, 0), Lng: floatOr(r.DestinationLng, 0)},
		DistanceKm:       floatOr(r.TripDistanceInKm, 0),
		EstimatedTimeMin: booking.DefaultExternalTimeMin,
		BillAmount:       floatOr(r.EstimatedFare, 0),
		RideType:         r.RideType,
		SpecialRequests:  r.SpecialRequests,
		CallbackURL:      r.CallbackURL,
	}
	if r.ExternalBookingID != nil {
		cmd.ExternalBookingID = *r.ExternalBookingID
	}
	if r.EstimatedTimeMin != nil {
		cmd.EstimatedTimeMin = *r.EstimatedTimeMin
	}
	return cmd
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
