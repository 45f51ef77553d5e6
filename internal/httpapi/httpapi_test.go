package httpapi

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"thamestides-server/internal/config"
)

func openMemDB(t *testing.T, schema string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if schema != "" {
		if _, err := db.Exec(schema); err != nil {
			t.Fatalf("schema: %v", err)
		}
	}
	return db
}

const bothTables = `
CREATE TABLE readings (time INTEGER PRIMARY KEY, Tower_Pier REAL);
CREATE TABLE predictions (time INTEGER PRIMARY KEY, Tower_Pier REAL);
`

func newTestServer(t *testing.T, db *sql.DB) *httptest.Server {
	t.Helper()

	srv := NewServer(config.Config{HTTPAddr: ":0"}, NewMux(db))
	ts := httptest.NewServer(srv.Handler)

	t.Cleanup(ts.Close)
	return ts
}

func mustGetJSON[T any](t *testing.T, client *http.Client, url string, out *T) *http.Response {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, openMemDB(t, bothTables))

	var body map[string]string
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q; want ok", body["status"])
	}
}

func TestHealthz_MissingTable(t *testing.T) {
	ts := newTestServer(t, openMemDB(t, `CREATE TABLE readings (time INTEGER PRIMARY KEY);`))

	var body map[string]string
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if body["message"] != "readings or predictions table missing" {
		t.Errorf("message = %q", body["message"])
	}
}

func TestHealthz_ClosedDB(t *testing.T) {
	db := openMemDB(t, bothTables)
	ts := newTestServer(t, db)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var body map[string]string
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if body["error"] != http.StatusText(http.StatusServiceUnavailable) {
		t.Errorf("error = %q", body["error"])
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, openMemDB(t, bothTables))

	// one request so the request counter has a sample
	healthz, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	_ = healthz.Body.Close()

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
	if !strings.Contains(string(b), `thamestides_http_requests_total{code="200",route="GET /healthz"}`) {
		t.Errorf("metrics missing healthz request counter:\n%s", b)
	}
}

func TestRequestLogger_RequestID(t *testing.T) {
	var seen string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /reset", func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		for k := range w.Header() {
			delete(w.Header(), k)
		}
		w.WriteHeader(http.StatusTeapot)
	})
	mux.HandleFunc("GET /implicit", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	h := requestLogger(mux)

	t.Run("generated and survives header reset", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reset", nil))

		got := rec.Header().Get(requestIDHeader)
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("%s = %q; want a uuid", requestIDHeader, got)
		}
		if seen != got {
			t.Errorf("RequestID in handler = %q; want %q", seen, got)
		}
		if rec.Code != http.StatusTeapot {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusTeapot)
		}
	})

	t.Run("propagated from caller", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/implicit", nil)
		req.Header.Set(requestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
			t.Errorf("%s = %q; want abc-123", requestIDHeader, got)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("unmatched route", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusNotFound)
		}
		if rec.Header().Get(requestIDHeader) == "" {
			t.Errorf("%s missing on 404", requestIDHeader)
		}
	})
}

func TestNewServer(t *testing.T) {
	srv := NewServer(config.Config{HTTPAddr: "127.0.0.1:9999"}, http.NewServeMux())
	if srv.Addr != "127.0.0.1:9999" {
		t.Errorf("Addr = %q; want 127.0.0.1:9999", srv.Addr)
	}
	if srv.ReadHeaderTimeout == 0 {
		t.Error("ReadHeaderTimeout = 0; want non-zero")
	}
}
