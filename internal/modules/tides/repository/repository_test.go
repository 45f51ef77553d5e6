package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"

	"thamestides-server/internal/modules/tides/types"
)

const testSchema = `
CREATE TABLE readings (time INTEGER PRIMARY KEY, Tower_Pier REAL, Chelsea REAL);
CREATE TABLE predictions (time INTEGER PRIMARY KEY, Chelsea REAL, Walton REAL);
`

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// every connection to :memory: is a fresh database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(testSchema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
		t.Fatalf("exec schema: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
	})
	return db
}

func seedTowerPier(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO readings (time, Tower_Pier, Chelsea) VALUES
		(100, 1.1, 0.1),
		(200, 1.2, NULL),
		(300, NULL, 0.3),
		(400, 1.4, 0.4),
		(500, 1.5, 0.5)
	`)
	if err != nil {
		t.Fatalf("insert readings: %v", err)
	}
}

func f(v float64) *float64 { return &v }

func TestStationColumns(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	tests := []struct {
		table string
		want  []string
	}{
		{table: "readings", want: []string{"Tower_Pier", "Chelsea"}},
		{table: "predictions", want: []string{"Chelsea", "Walton"}},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			got, err := repo.StationColumns(context.Background(), tt.table)
			if err != nil {
				t.Fatalf("StationColumns: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("StationColumns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStationColumns_MissingTable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	_, err := repo.StationColumns(context.Background(), "surge")
	if !errors.Is(err, ErrNoColumns) {
		t.Fatalf("StationColumns(surge) error = %v; want ErrNoColumns", err)
	}
}

func TestStationColumns_OnlyTimestamp(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.Exec(`CREATE TABLE empty_tbl (time INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	repo := NewRepository(db)

	got, err := repo.StationColumns(context.Background(), "empty_tbl")
	if err != nil {
		t.Fatalf("StationColumns: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("StationColumns = %v; want none", got)
	}
}

func TestFetchSeries(t *testing.T) {
	db := setupTestDB(t)
	seedTowerPier(t, db)
	repo := NewRepository(db)
	allowed := types.NewWhitelist([]string{"Tower_Pier", "Chelsea"})

	tests := []struct {
		name string
		q    SeriesQuery
		want types.Series
	}{
		{
			name: "last three keeps nulls",
			q:    SeriesQuery{Dataset: types.DatasetReadings, Station: "Tower_Pier", Window: types.Window{Start: 0, End: 1000}, Limit: 3},
			want: types.Series{{Time: 300}, {Time: 400, Value: f(1.4)}, {Time: 500, Value: f(1.5)}},
		},
		{
			name: "last three non null",
			q:    SeriesQuery{Dataset: types.DatasetReadings, Station: "Tower_Pier", Window: types.Window{Start: 0, End: 1000}, Limit: 3, NonNull: true},
			want: types.Series{{Time: 200, Value: f(1.2)}, {Time: 400, Value: f(1.4)}, {Time: 500, Value: f(1.5)}},
		},
		{
			name: "window bounds are inclusive",
			q:    SeriesQuery{Dataset: types.DatasetReadings, Station: "Chelsea", Window: types.Window{Start: 100, End: 300}, Limit: 10},
			want: types.Series{{Time: 100, Value: f(0.1)}, {Time: 200}, {Time: 300, Value: f(0.3)}},
		},
		{
			name: "limit one is the latest",
			q:    SeriesQuery{Dataset: types.DatasetReadings, Station: "Chelsea", Window: types.Window{Start: 0, End: 450}, Limit: 1},
			want: types.Series{{Time: 400, Value: f(0.4)}},
		},
		{
			name: "empty window",
			q:    SeriesQuery{Dataset: types.DatasetReadings, Station: "Chelsea", Window: types.Window{Start: 600, End: 900}, Limit: 5},
			want: types.Series{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FetchSeries(context.Background(), allowed, tt.q)
			if err != nil {
				t.Fatalf("FetchSeries: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FetchSeries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchSeries_RejectsUnlistedStation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	allowed := types.NewWhitelist([]string{"Tower_Pier"})

	injections := []string{
		"Chelsea",
		`Tower_Pier FROM readings; DROP TABLE readings; --`,
		`Tower_Pier"`,
	}
	for _, station := range injections {
		t.Run(station, func(t *testing.T) {
			q := SeriesQuery{Dataset: types.DatasetReadings, Station: station, Window: types.Window{End: 1000}, Limit: 1}
			_, err := repo.FetchSeries(context.Background(), allowed, q)
			if !errors.Is(err, ErrUnknownStation) {
				t.Fatalf("FetchSeries(%q) error = %v; want ErrUnknownStation", station, err)
			}
		})
	}

	var n int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE name = 'readings'`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("readings table gone: n=%d err=%v", n, err)
	}
}

func TestFetchSeries_UnknownDataset(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	q := SeriesQuery{Dataset: types.Dataset("sqlite_master"), Station: "name", Limit: 1}
	_, err := repo.FetchSeries(context.Background(), types.NewWhitelist([]string{"name"}), q)
	if !errors.Is(err, ErrUnknownDataset) {
		t.Fatalf("FetchSeries error = %v; want ErrUnknownDataset", err)
	}
}

func TestFetchSeries_StaleWhitelist(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	allowed := types.NewWhitelist([]string{"Margate"})

	// listed in the whitelist but no longer a column; a double-quoted
	// unknown identifier must not fall back to a string literal
	for _, seeded := range []bool{false, true} {
		if seeded {
			if _, err := db.Exec(`INSERT INTO predictions (time, Chelsea, Walton) VALUES (5, 1.0, 2.0)`); err != nil {
				t.Fatalf("insert predictions: %v", err)
			}
		}
		for _, nonNull := range []bool{false, true} {
			q := SeriesQuery{Dataset: types.DatasetPredictions, Station: "Margate", Window: types.Window{End: 10}, Limit: 1, NonNull: nonNull}
			_, err := repo.FetchSeries(context.Background(), allowed, q)
			if err == nil {
				t.Fatalf("FetchSeries on missing column (seeded=%v nonNull=%v): error = nil; want non-nil", seeded, nonNull)
			}
			if !strings.Contains(err.Error(), "query predictions.Margate") {
				t.Errorf("error = %v; want failure while preparing predictions.Margate", err)
			}
		}
	}
}

func TestBuildSeriesQuery(t *testing.T) {
	allowed := types.NewWhitelist([]string{"Tower_Pier"})

	got, err := buildSeriesQuery(allowed, SeriesQuery{Dataset: types.DatasetPredictions, Station: "Tower_Pier", NonNull: true})
	if err != nil {
		t.Fatalf("buildSeriesQuery: %v", err)
	}
	for _, want := range []string{
		`SELECT time, "predictions"."Tower_Pier"`,
		`FROM "predictions"`,
		`WHERE "predictions"."Tower_Pier" IS NOT NULL AND time >= ? AND time <= ?`,
		`ORDER BY time DESC`,
		`LIMIT ?`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("query %q missing %q", got, want)
		}
	}

	got, err = buildSeriesQuery(allowed, SeriesQuery{Dataset: types.DatasetReadings, Station: "Tower_Pier"})
	if err != nil {
		t.Fatalf("buildSeriesQuery: %v", err)
	}
	if strings.Contains(got, "IS NOT NULL") {
		t.Errorf("query %q should not filter nulls", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`a"b`); got != `"a""b"` {
		t.Errorf("quoteIdent = %s; want %s", got, `"a""b"`)
	}
}
