package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wegman-software/adminraster-go/internal/admin"
	"github.com/wegman-software/adminraster-go/internal/lookup"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

// fakeResolver reports feature 5 west of lon -50 and nothing elsewhere
type fakeResolver struct {
	err   error
	calls int
}

func (f *fakeResolver) Lookup(_ context.Context, lon, lat float64) (lookup.Result, error) {
	f.calls++
	if f.err != nil {
		return lookup.Result{}, f.err
	}
	addr, err := tiling.ToTileAddress(lon, lat)
	if err != nil {
		return lookup.Result{}, err
	}
	if lon < -50 {
		return lookup.Result{
			Lon: lon, Lat: lat, Address: addr, Color: "000005", FeatureID: 5, Found: true,
			Region: admin.Record{ID: 5, Admin1: "Ontario", Admin0: "Canada", Sov: "Canada"},
		}, nil
	}
	return lookup.Result{Lon: lon, Lat: lat, Address: addr, Color: "ffffff"}, nil
}

func TestLookupHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
		wantAdmin1 string
		wantID     *int
	}{
		{name: "found", query: "lon=-79.3&lat=43.5", wantStatus: http.StatusOK, wantAdmin1: "Ontario", wantID: ptr(5)},
		{name: "nothing found", query: "lon=10&lat=10", wantStatus: http.StatusNotFound},
		{name: "out of range", query: "lon=200&lat=10", wantStatus: http.StatusBadRequest},
		{name: "not a number", query: "lon=abc&lat=10", wantStatus: http.StatusBadRequest},
		{name: "missing lat", query: "lon=10", wantStatus: http.StatusBadRequest},
		{name: "resolver failure", query: "lon=10&lat=10", err: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(&fakeResolver{err: tt.err}, nil, tiling.DefaultGrid)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/lookup?"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var body Response
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body.Admin1 != tt.wantAdmin1 {
				t.Errorf("admin1 = %q, want %q", body.Admin1, tt.wantAdmin1)
			}
			if (body.FeatureID == nil) != (tt.wantID == nil) || (body.FeatureID != nil && *body.FeatureID != *tt.wantID) {
				t.Errorf("feature_id = %v, want %v", body.FeatureID, tt.wantID)
			}
		})
	}
}

func TestLookupResponseAddress(t *testing.T) {
	srv := New(&fakeResolver{}, nil, tiling.DefaultGrid)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/lookup?lon=-79.355&lat=43.5", nil))

	var body Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Tile != 82 || body.X != 64 || body.Y != 650 {
		t.Errorf("address = %d/%d/%d, want 82/64/650", body.Tile, body.X, body.Y)
	}
	if body.Color != "000005" || body.Sov != "Canada" {
		t.Errorf("body = %+v", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := New(&fakeResolver{}, nil, tiling.DefaultGrid).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("/healthz status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/lookup?lon=1&lat=1", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /lookup status = %d", rec.Code)
	}
}

func ptr(v int) *int { return &v }
