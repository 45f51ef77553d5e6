package tides

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"thamestides-server/internal/config"
	"thamestides-server/internal/modules/tides/controller"
	"thamestides-server/internal/modules/tides/repository"
	"thamestides-server/internal/modules/tides/service"
)

// RegisterFeature wires the tides API onto mux. Both tables are introspected
// once up front so a database without them fails at startup.
func RegisterFeature(ctx context.Context, mux *http.ServeMux, db *sql.DB, cfg config.Config) error {
	tidesRepository := repository.NewRepository(db)
	schema := service.NewSchemaCache(tidesRepository, cfg.SchemaCacheTTL)
	tidesService := service.NewService(tidesRepository, schema, service.WithConcurrency(cfg.QueryConcurrency))

	wl, err := tidesService.Whitelists(ctx)
	if err != nil {
		return fmt.Errorf("load station whitelists: %w", err)
	}
	slog.Info("stations loaded",
		"readings", wl.Readings.Len(),
		"predictions", wl.Predictions.Len(),
	)

	tidesController := controller.NewTidesController(tidesService)
	tidesController.RegisterRoutes(mux)
	return nil
}
