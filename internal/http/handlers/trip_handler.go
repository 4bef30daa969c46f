// README: Trip command handlers for drivers and operators.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fleettrack/internal/http/middleware"
	"fleettrack/internal/modules/trip"
	"fleettrack/internal/types"
)

// TripCommands is implemented by *trip.Tracker.
type TripCommands interface {
	Accept(ctx context.Context, tripID, driverID types.ID) (trip.Trip, error)
	ConfirmArrival(ctx context.Context, tripID, driverID types.ID) (trip.Trip, error)
	ForceComplete(ctx context.Context, tripID types.ID, operatorID, reason string) (trip.Trip, error)
	Snapshot(ctx context.Context, tripID types.ID) (trip.Trip, error)
}

type TripHandler struct {
	trips TripCommands
}

func NewTripHandler(trips TripCommands) *TripHandler {
	return &TripHandler{trips: trips}
}

func (h *TripHandler) Accept(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	t, err := h.trips.Accept(c.Request.Context(), id, types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (h *TripHandler) Confirm(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	t, err := h.trips.ConfirmArrival(c.Request.Context(), id, types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

type forceCompleteReq struct {
	Reason string `json:"reason"`
}

func (h *TripHandler) ForceComplete(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	var req forceCompleteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeError(c, http.StatusBadRequest, "reason is required")
		return
	}
	t, err := h.trips.ForceComplete(c.Request.Context(), id, middleware.CallerUID(c), req.Reason)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (h *TripHandler) Get(c *gin.Context) {
	id, ok := tripID(c)
	if !ok {
		return
	}
	t, err := h.trips.Snapshot(c.Request.Context(), id)
	if err != nil {
		writeTripError(c, err)
		return
	}
	// drivers only see their own trips
	if middleware.CallerRole(c) == middleware.RoleDriver && string(t.DriverID) != middleware.CallerUID(c) {
		writeError(c, http.StatusForbidden, "forbidden: trip assigned to another driver")
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func tripID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid trip id")
		return "", false
	}
	return types.ID(id), true
}
