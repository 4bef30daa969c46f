// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleettrack/internal/http/handlers"
	"fleettrack/internal/http/middleware"
)

func NewRouter(deps ServerDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		tracked := 0
		if deps.Health != nil {
			tracked = deps.Health()
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "tracked_trips": tracked})
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	tripHandler := handlers.NewTripHandler(deps.Trips)
	api.GET("/trips/:id", middleware.RequireRole(middleware.RoleDriver, middleware.RoleOperator), tripHandler.Get)
	api.POST("/trips/:id/accept", middleware.RequireRole(middleware.RoleDriver), tripHandler.Accept)
	api.POST("/trips/:id/confirm", middleware.RequireRole(middleware.RoleDriver), tripHandler.Confirm)
	api.POST("/trips/:id/force-complete", middleware.RequireRole(middleware.RoleOperator), tripHandler.ForceComplete)

	locationHandler := handlers.NewLocationHandler(deps.Location, deps.Positions)
	api.PUT("/drivers/:id/location", middleware.RequireRole(middleware.RoleDriver), locationHandler.Update)
	if deps.Positions != nil {
		api.GET("/drivers/:id/location", middleware.RequireRole(middleware.RoleOperator), locationHandler.Latest)
	}

	return r
}
