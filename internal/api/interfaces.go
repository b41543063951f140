// interfaces.go - Handler interface definitions
package api

import "github.com/labstack/echo/v4"

// MarkerHandler handles marker operations
type MarkerHandler interface {
	HandleListMarkers(c echo.Context) error
	HandleCreateMarker(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
