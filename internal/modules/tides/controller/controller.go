package controller

import (
	"context"
	"net/http"

	"thamestides-server/internal/modules/tides/types"
)

type TidesService interface {
	Whitelists(ctx context.Context) (types.Whitelists, error)
	Fetch(ctx context.Context, spec types.QuerySpec, wl types.Whitelists) (*types.Envelope, error)
}

type TidesController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type tidesControllerImpl struct {
	service TidesService
}

func NewTidesController(service TidesService) TidesController {
	return &tidesControllerImpl{service: service}
}

func (c *tidesControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tides", c.handleTides)
	mux.HandleFunc("GET /api/{$}", c.handleTides)
	mux.HandleFunc("GET /api/stations", c.handleStations)
}
