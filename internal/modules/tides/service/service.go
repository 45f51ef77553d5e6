package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"thamestides-server/internal/modules/tides/repository"
	"thamestides-server/internal/modules/tides/types"
)

// defaultSpan is the width of the default readings (past) and predictions
// (future) windows.
const defaultSpan = 24 * time.Hour

var seriesQueries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "thamestides_series_queries_total",
	Help: "Station series queries by dataset and outcome.",
}, []string{"dataset", "result"})

// Plan is the set of queries needed for one requested station.
type Plan struct {
	Station string
	Queries []repository.SeriesQuery
}

type Service struct {
	repo        repository.TidesRepository
	schema      *SchemaCache
	concurrency int
	now         func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now when resolving default windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithConcurrency bounds how many station queries run at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func NewService(repo repository.TidesRepository, schema *SchemaCache, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		schema:      schema,
		concurrency: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Whitelists(ctx context.Context) (types.Whitelists, error) {
	return s.schema.Whitelists(ctx)
}

// Plan validates every requested station in order and stops at the first one
// that is not listed for any requested dataset.
func (s *Service) Plan(spec types.QuerySpec, wl types.Whitelists) ([]Plan, error) {
	readingsWindow, predictionsWindow := s.windows(spec)

	seen := make(map[string]bool, len(spec.Stations))
	plans := make([]Plan, 0, len(spec.Stations))
	for _, station := range spec.Stations {
		inReadings := spec.WantReadings && wl.Readings.Contains(station)
		inPredictions := spec.WantPredictions && wl.Predictions.Contains(station)
		if !inReadings && !inPredictions {
			return nil, types.NewRequestError(types.KindInvalidStationName, "Invalid station name: %s", station)
		}
		if seen[station] {
			continue
		}
		seen[station] = true

		p := Plan{Station: station}
		if inReadings {
			p.Queries = append(p.Queries, repository.SeriesQuery{
				Dataset: types.DatasetReadings,
				Station: station,
				Window:  readingsWindow,
				Limit:   spec.LastN,
				NonNull: spec.FilterNonNull,
			})
		}
		if inPredictions {
			p.Queries = append(p.Queries, repository.SeriesQuery{
				Dataset: types.DatasetPredictions,
				Station: station,
				Window:  predictionsWindow,
				Limit:   spec.LastN,
				NonNull: true,
			})
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (s *Service) windows(spec types.QuerySpec) (readings, predictions types.Window) {
	if spec.Window != nil {
		return *spec.Window, *spec.Window
	}
	now := s.now().Unix()
	span := int64(defaultSpan / time.Second)
	return types.Window{Start: now - span, End: now}, types.Window{Start: now, End: now + span}
}

// Fetch plans the request and runs every query. Any failure aborts the whole
// request; no partial envelope is returned.
func (s *Service) Fetch(ctx context.Context, spec types.QuerySpec, wl types.Whitelists) (*types.Envelope, error) {
	plans, err := s.Plan(spec, wl)
	if err != nil {
		return nil, err
	}

	results := make([]types.StationResult, len(plans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range plans {
		for _, q := range plans[i].Queries {
			g.Go(func() error {
				series, err := s.repo.FetchSeries(gctx, wl.For(q.Dataset), q)
				if err != nil {
					seriesQueries.WithLabelValues(string(q.Dataset), "error").Inc()
					if !errors.Is(err, context.Canceled) {
						slog.Error("series query failed", "dataset", q.Dataset, "station", q.Station, "error", err)
					}
					return types.WrapRequestError(types.KindQueryPreparationFailed, err,
						"Error fetching %s for %s", q.Dataset, q.Station)
				}
				seriesQueries.WithLabelValues(string(q.Dataset), "ok").Inc()
				if q.Dataset == types.DatasetPredictions {
					results[i].Predictions = series
				} else {
					results[i].Readings = series
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	env := types.NewEnvelope()
	for i, p := range plans {
		env.Add(p.Station, results[i])
	}
	return env, nil
}
