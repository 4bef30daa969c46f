// README: Location handler for device position updates over HTTP.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"fleettrack/internal/http/middleware"
	"fleettrack/internal/modules/location"
	"fleettrack/internal/types"
)

// LocationIngester is implemented by *location.Service.
type LocationIngester interface {
	Ingest(ctx context.Context, raw location.RawUpdate) location.Result
}

// PositionLookup is implemented by *location.Store.
type PositionLookup interface {
	Latest(ctx context.Context, driverID types.ID) (types.Point, bool, error)
}

type LocationHandler struct {
	location  LocationIngester
	positions PositionLookup
}

func NewLocationHandler(svc LocationIngester, positions PositionLookup) *LocationHandler {
	return &LocationHandler{location: svc, positions: positions}
}

func (h *LocationHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	// Only the authenticated driver may update their own location.
	if middleware.CallerUID(c) != id {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return
	}
	var raw location.RawUpdate
	if err := c.ShouldBindJSON(&raw); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	raw.DriverID = id
	res := h.location.Ingest(c.Request.Context(), raw)
	writeJSON(c, http.StatusAccepted, res)
}

type latestResp struct {
	DriverID string  `json:"driver_id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// Latest returns the driver's last indexed position for the dispatcher.
func (h *LocationHandler) Latest(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	p, ok, err := h.positions.Latest(c.Request.Context(), types.ID(id))
	if err != nil {
		_ = c.Error(err)
		writeJSON(c, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable, retry", Retryable: true})
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, "no known position for driver")
		return
	}
	writeJSON(c, http.StatusOK, latestResp{DriverID: id, Lat: p.Lat, Lng: p.Lng})
}
