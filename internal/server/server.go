package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/adminraster-go/internal/cache"
	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/lookup"
	"github.com/wegman-software/adminraster-go/internal/metrics"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

// Resolver answers lookups
type Resolver interface {
	Lookup(ctx context.Context, lon, lat float64) (lookup.Result, error)
}

// Server exposes lookups over HTTP
type Server struct {
	resolver Resolver
	cache    *cache.Results
	grid     tiling.Grid
}

// New creates a server. results may be nil to disable the result cache.
func New(resolver Resolver, results *cache.Results, grid tiling.Grid) *Server {
	if grid.PixelsPerDegree <= 0 {
		grid = tiling.DefaultGrid
	}
	return &Server{resolver: resolver, cache: results, grid: grid}
}

// Response is the JSON body of a lookup
type Response struct {
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	Tile      int     `json:"tile"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Color     string  `json:"color"`
	FeatureID *int    `json:"feature_id,omitempty"`
	Admin1    string  `json:"admin1,omitempty"`
	Admin0    string  `json:"admin0,omitempty"`
	Sov       string  `json:"sov,omitempty"`
	Disputed  bool    `json:"disputed"`
	Error     string  `json:"error,omitempty"`
}

// Handler returns the routes: /lookup, /metrics and /healthz
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /lookup", s.handleLookup)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return accessLog(mux)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.LookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	}()

	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if errLon != nil || errLat != nil {
		metrics.LookupsTotal.WithLabelValues("bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, Response{Error: "lon and lat must be numbers"})
		return
	}

	addr, err := s.grid.ToTileAddress(lon, lat)
	if err != nil {
		metrics.LookupsTotal.WithLabelValues("bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, Response{Lon: lon, Lat: lat, Error: err.Error()})
		return
	}

	ctx := r.Context()
	res, hit, err := s.cache.Get(ctx, addr)
	if err != nil {
		logger.Get().Warn("Result cache read failed", zap.Error(err))
	}
	if !hit {
		res, err = s.resolver.Lookup(ctx, lon, lat)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, tiling.ErrOutOfRange) {
				status = http.StatusBadRequest
			}
			metrics.LookupsTotal.WithLabelValues("error").Inc()
			logger.Get().Error("Lookup failed",
				zap.Float64("lon", lon),
				zap.Float64("lat", lat),
				zap.Error(err))
			writeJSON(w, status, Response{Lon: lon, Lat: lat, Error: "lookup failed"})
			return
		}
		if err := s.cache.Set(ctx, res); err != nil {
			logger.Get().Warn("Result cache write failed", zap.Error(err))
		}
	}

	body := Response{
		Lon:   lon,
		Lat:   lat,
		Tile:  res.Address.Tile,
		X:     res.Address.X,
		Y:     res.Address.Y,
		Color: res.Color,
	}
	if !res.Found {
		metrics.LookupsTotal.WithLabelValues("not_found").Inc()
		body.Error = "nothing found"
		writeJSON(w, http.StatusNotFound, body)
		return
	}

	metrics.LookupsTotal.WithLabelValues("found").Inc()
	id := res.FeatureID
	body.FeatureID = &id
	body.Admin1 = res.Region.Admin1
	body.Admin0 = res.Region.Admin0
	body.Sov = res.Region.Sov
	body.Disputed = res.Region.Disputed
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusWriter captures the response status for the access log
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		logger.Get().Debug("http_access",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Int("bytes", sw.bytes),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", r.RemoteAddr))
	})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Get().Info("Lookup server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
