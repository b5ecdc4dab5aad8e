// README: Internal ride endpoints for customers and drivers.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tripease/internal/http/middleware"
	"tripease/internal/modules/booking"
	"tripease/internal/types"
)

type RideHandler struct {
	bookings *booking.Service
}

func NewRideHandler(svc *booking.Service) *RideHandler {
	return &RideHandler{bookings: svc}
}

type bookRideReq struct {
	PickupAddress      string         `json:"pickupAddress"`
	PickupLat          float64        `json:"pickupLat" binding:"gte=-90,lte=90"`
	PickupLng          float64        `json:"pickupLng" binding:"gte=-180,lte=180"`
	DestinationAddress string         `json:"destinationAddress"`
	DestinationLat     float64        `json:"destinationLat" binding:"gte=-90,lte=90"`
	DestinationLng     float64        `json:"destinationLng" binding:"gte=-180,lte=180"`
	TripDistanceInKm   float64        `json:"tripDistanceInKm" binding:"gte=0"`
	EstimatedTimeMin   int            `json:"estimatedTimeMin" binding:"gte=0"`
	BillAmount         float64        `json:"billAmount" binding:"gte=0"`
	RideType           types.RideType `json:"rideType" binding:"required,oneof=AUTO BIKE CAR PREMIUM"`
}

type bookingDetails struct {
	BookingID          int64          `json:"bookingId"`
	CustomerID         int64          `json:"customerId"`
	CustomerEmail      string         `json:"customerEmail,omitempty"`
	DriverID           *int64         `json:"driverId"`
	DriverEmail        string         `json:"driverEmail,omitempty"`
	PickupAddress      string         `json:"pickupAddress"`
	PickupLat          float64        `json:"pickupLat"`
	PickupLng          float64        `json:"pickupLng"`
	DestinationAddress string         `json:"destinationAddress"`
	DestinationLat     float64        `json:"destinationLat"`
	DestinationLng     float64        `json:"destinationLng"`
	TripDistanceInKm   float64        `json:"tripDistanceInKm"`
	EstimatedTimeMin   int            `json:"estimatedTimeMin"`
	BillAmount         float64        `json:"billAmount"`
	RideType           types.RideType `json:"rideType"`
	TripStatus         booking.Status `json:"tripStatus"`
	ExternalBooking    bool           `json:"isExternalBooking"`
	SourceSystem       string         `json:"sourceSystem,omitempty"`
	ExternalBookingID  int64          `json:"externalBookingId,omitempty"`
	BookedAt           time.Time      `json:"bookedAt"`
	LastUpdatedAt      time.Time      `json:"lastUpdatedAt"`
	Message            string         `json:"message,omitempty"`
}

func toDetails(b *booking.Booking, msg string) bookingDetails {
	d := bookingDetails{
		BookingID:          b.ID,
		CustomerID:         b.CustomerID,
		CustomerEmail:      b.CustomerEmail,
		DriverID:           b.DriverID,
		DriverEmail:        b.DriverEmail,
		PickupAddress:      b.PickupAddress,
		PickupLat:          b.Pickup.Lat,
		PickupLng:          b.Pickup.Lng,
		DestinationAddress: b.DestAddress,
		DestinationLat:     b.Dest.Lat,
		DestinationLng:     b.Dest.Lng,
		TripDistanceInKm:   b.DistanceKm,
		EstimatedTimeMin:   b.EstimatedTimeMin,
		BillAmount:         b.BillAmount,
		RideType:           b.RideType,
		TripStatus:         b.Status,
		ExternalBooking:    b.IsExternal(),
		BookedAt:           b.CreatedAt,
		LastUpdatedAt:      b.UpdatedAt,
		Message:            msg,
	}
	if b.External != nil {
		d.SourceSystem = b.External.SourceSystem
		d.ExternalBookingID = b.External.ExternalBookingID
	}
	return d
}

func toDetailsList(bs []*booking.Booking) []bookingDetails {
	out := make([]bookingDetails, 0, len(bs))
	for _, b := range bs {
		out = append(out, toDetails(b, ""))
	}
	return out
}

func (h *RideHandler) Book(c *gin.Context) {
	var req bookRideReq
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	b, err := h.bookings.Create(c.Request.Context(), middleware.Caller(c), booking.CreateCommand{
		PickupAddress:    req.PickupAddress,
		Pickup:           types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		DestAddress:      req.DestinationAddress,
		Dest:             types.Point{Lat: req.DestinationLat, Lng: req.DestinationLng},
		DistanceKm:       req.TripDistanceInKm,
		EstimatedTimeMin: req.EstimatedTimeMin,
		BillAmount:       req.BillAmount,
		RideType:         req.RideType,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toDetails(b, "Booking created successfully. Waiting for driver."))
}

func (h *RideHandler) Pending(c *gin.Context) {
	bs, err := h.bookings.ListPending(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toDetailsList(bs))
}

func (h *RideHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	b, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toDetails(b, "Booking found"))
}

func (h *RideHandler) CustomerBookings(c *gin.Context) {
	bs, err := h.bookings.ListForCustomer(c.Request.Context(), middleware.Caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toDetailsList(bs))
}

func (h *RideHandler) DriverBookings(c *gin.Context) {
	bs, err := h.bookings.ListForDriver(c.Request.Context(), middleware.Caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toDetailsList(bs))
}

func (h *RideHandler) Accept(c *gin.Context) {
	h.transition(c, "Booking accepted successfully!", func(c *gin.Context, id int64) (*booking.Booking, error) {
		return h.bookings.Accept(c.Request.Context(), middleware.Caller(c), id)
	})
}

func (h *RideHandler) Reject(c *gin.Context) {
	h.transition(c, "Booking rejected", func(c *gin.Context, id int64) (*booking.Booking, error) {
		return h.bookings.Reject(c.Request.Context(), id)
	})
}

func (h *RideHandler) Start(c *gin.Context) {
	h.transition(c, "Trip started!", func(c *gin.Context, id int64) (*booking.Booking, error) {
		return h.bookings.Start(c.Request.Context(), middleware.Caller(c), id)
	})
}

func (h *RideHandler) Complete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	b, err := h.bookings.Complete(c.Request.Context(), middleware.Caller(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toDetails(b, fmt.Sprintf("Trip completed! Fare: ₹%.2f", b.BillAmount)))
}

func (h *RideHandler) transition(c *gin.Context, msg string, apply func(*gin.Context, int64) (*booking.Booking, error)) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	b, err := apply(c, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toDetails(b, msg))
}
