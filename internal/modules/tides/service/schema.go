package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bluele/gcache"

	"thamestides-server/internal/modules/tides/repository"
	"thamestides-server/internal/modules/tides/types"
)

// SchemaCache serves the station whitelists. Columns are only ever added by
// the ingest job, so a TTL is enough to pick them up.
type SchemaCache struct {
	repo  repository.TidesRepository
	cache gcache.Cache
}

// NewSchemaCache returns a cache keeping each table's columns for ttl. A zero
// ttl introspects on every call.
func NewSchemaCache(repo repository.TidesRepository, ttl time.Duration) *SchemaCache {
	c := &SchemaCache{repo: repo}
	if ttl > 0 {
		c.cache = gcache.New(2).LRU().Expiration(ttl).Build()
	}
	return c
}

func (c *SchemaCache) Whitelists(ctx context.Context) (types.Whitelists, error) {
	predictions, err := c.whitelist(ctx, types.DatasetPredictions)
	if err != nil {
		return types.Whitelists{}, err
	}
	readings, err := c.whitelist(ctx, types.DatasetReadings)
	if err != nil {
		return types.Whitelists{}, err
	}
	return types.Whitelists{Readings: readings, Predictions: predictions}, nil
}

// purge drops cached whitelists.
func (c *SchemaCache) purge() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func (c *SchemaCache) whitelist(ctx context.Context, d types.Dataset) (types.Whitelist, error) {
	table := d.Table()
	if c.cache != nil {
		v, err := c.cache.Get(table)
		if err == nil {
			return v.(types.Whitelist), nil
		}
		if !errors.Is(err, gcache.KeyNotFoundError) {
			slog.Warn("schema cache get", "table", table, "error", err)
		}
	}

	cols, err := c.repo.StationColumns(ctx, table)
	if err != nil {
		return types.Whitelist{}, types.WrapRequestError(types.KindSchemaUnavailable, err,
			"Could not read the list of stations for %s", table)
	}
	wl := types.NewWhitelist(cols)

	if c.cache != nil {
		if err := c.cache.Set(table, wl); err != nil {
			slog.Warn("schema cache set", "table", table, "error", err)
		}
	}
	slog.Debug("station whitelist loaded", "table", table, "stations", wl.Len())
	return wl, nil
}
