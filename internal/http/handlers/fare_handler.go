// README: Public fare quote endpoint.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripease/internal/modules/fare"
	"tripease/internal/types"
)

type FareHandler struct {
	fares *fare.Service
}

func NewFareHandler(svc *fare.Service) *FareHandler {
	return &FareHandler{fares: svc}
}

type fareReq struct {
	PickupAddress      string  `json:"pickupAddress"`
	PickupLat          float64 `json:"pickupLat" binding:"gte=-90,lte=90"`
	PickupLng          float64 `json:"pickupLng" binding:"gte=-180,lte=180"`
	DestinationAddress string  `json:"destinationAddress"`
	DestinationLat     float64 `json:"destinationLat" binding:"gte=-90,lte=90"`
	DestinationLng     float64 `json:"destinationLng" binding:"gte=-180,lte=180"`
}

// Calculate answers 400 with the calculation body when no estimate could be produced.
func (h *FareHandler) Calculate(c *gin.Context) {
	var req fareReq
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	calc := h.fares.Calculate(c.Request.Context(), fare.Request{
		Pickup:     types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		Dest:       types.Point{Lat: req.DestinationLat, Lng: req.DestinationLng},
		PickupAddr: req.PickupAddress,
		DestAddr:   req.DestinationAddress,
	})
	if len(calc.Estimates) == 0 {
		writeJSON(c, http.StatusBadRequest, calc)
		return
	}
	writeJSON(c, http.StatusOK, calc)
}
