// README: Partner (external system) endpoints. Failures are soft responses.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tripease/internal/apperr"
	"tripease/internal/modules/partner"
)

type PartnerHandler struct {
	partners *partner.Service
}

func NewPartnerHandler(svc *partner.Service) *PartnerHandler {
	return &PartnerHandler{partners: svc}
}

func softFailure(c *gin.Context, status int, msg string) {
	writeJSON(c, status, partner.Response{Message: msg, Success: false})
}

func (h *PartnerHandler) Book(c *gin.Context) {
	var req partner.Request
	if err := bindJSON(c, &req); err != nil {
		msg := "Invalid request body"
		if f := apperr.Fields(err); f["body"] == "" {
			msg += ": " + err.Error()
		}
		softFailure(c, http.StatusBadRequest, msg)
		return
	}
	resp := h.partners.Create(c.Request.Context(), req)
	if !resp.Success {
		writeJSON(c, http.StatusBadRequest, resp)
		return
	}
	writeJSON(c, http.StatusCreated, resp)
}

func (h *PartnerHandler) Status(c *gin.Context) {
	id, ok := partnerID(c, "id")
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, h.partners.StatusByID(c.Request.Context(), id))
}

func (h *PartnerHandler) StatusByExternal(c *gin.Context) {
	id, ok := partnerID(c, "externalId")
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, h.partners.StatusByExternalID(c.Request.Context(), c.Param("source"), id))
}

func (h *PartnerHandler) Cancel(c *gin.Context) {
	id, ok := partnerID(c, "id")
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, h.partners.Cancel(c.Request.Context(), id))
}

func (h *PartnerHandler) SourceBookings(c *gin.Context) {
	resps, err := h.partners.ListBySource(c.Request.Context(), c.Param("source"))
	if err != nil {
		_ = c.Error(err)
		softFailure(c, http.StatusInternalServerError, "Could not list bookings")
		return
	}
	writeJSON(c, http.StatusOK, resps)
}

func (h *PartnerHandler) Health(c *gin.Context) {
	c.String(http.StatusOK, "TripEase External API is running")
}

func partnerID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		softFailure(c, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}
