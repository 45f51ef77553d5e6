package repository

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/template"

	"thamestides-server/internal/modules/tides/types"
)

//go:embed sql/station-columns.sql
var stationColumnsSQL string

//go:embed sql/series.sql.tmpl
var seriesSQLTmpl string

var seriesTmpl = template.Must(template.New("series").Parse(seriesSQLTmpl))

var (
	ErrNoColumns      = errors.New("table missing or has no station columns")
	ErrUnknownStation = errors.New("station is not a column of the table")
	ErrUnknownDataset = errors.New("unknown dataset")
)

// SeriesQuery selects the newest Limit rows of one station column inside Window.
type SeriesQuery struct {
	Dataset types.Dataset
	Station string
	Window  types.Window
	Limit   int
	NonNull bool
}

type TidesRepository interface {
	// StationColumns lists the columns of table after the leading timestamp
	// column, in schema order.
	StationColumns(ctx context.Context, table string) ([]string, error)
	// FetchSeries runs q and returns its points ascending by time. The station
	// must be a member of allowed.
	FetchSeries(ctx context.Context, allowed types.Whitelist, q SeriesQuery) (types.Series, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) TidesRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) StationColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, stationColumnsSQL, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", table, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close column rows", "table", table, "error", err)
		}
	}()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("introspect %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspect %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("introspect %s: %w", table, ErrNoColumns)
	}
	// the first column is the timestamp primary key, not a station
	return cols[1:], nil
}

func (r *repositoryImpl) FetchSeries(ctx context.Context, allowed types.Whitelist, q SeriesQuery) (types.Series, error) {
	query, err := buildSeriesQuery(allowed, q)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, q.Window.Start, q.Window.End, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query %s.%s: %w", q.Dataset, q.Station, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close series rows", "dataset", q.Dataset, "station", q.Station, "error", err)
		}
	}()

	series := make(types.Series, 0, q.Limit)
	for rows.Next() {
		var (
			ts  int64
			val sql.NullFloat64
		)
		if err := rows.Scan(&ts, &val); err != nil {
			return nil, fmt.Errorf("scan %s.%s: %w", q.Dataset, q.Station, err)
		}
		p := types.Point{Time: ts}
		if val.Valid {
			v := val.Float64
			p.Value = &v
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s.%s: %w", q.Dataset, q.Station, err)
	}

	// rows arrive newest first so LIMIT keeps the most recent points
	slices.SortFunc(series, func(a, b types.Point) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return series, nil
}

// buildSeriesQuery renders the series statement. Identifiers reach the text
// only after the whitelist check; all values are bound parameters.
func buildSeriesQuery(allowed types.Whitelist, q SeriesQuery) (string, error) {
	var table string
	switch q.Dataset {
	case types.DatasetReadings, types.DatasetPredictions:
		table = q.Dataset.Table()
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDataset, q.Dataset)
	}
	if !allowed.Contains(q.Station) {
		return "", fmt.Errorf("%w: %q in %s", ErrUnknownStation, q.Station, table)
	}

	var buf bytes.Buffer
	err := seriesTmpl.Execute(&buf, struct {
		Table   string
		Column  string
		NonNull bool
	}{
		Table:   quoteIdent(table),
		Column:  quoteIdent(q.Station),
		NonNull: q.NonNull,
	})
	if err != nil {
		return "", fmt.Errorf("render series query: %w", err)
	}
	return buf.String(), nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
