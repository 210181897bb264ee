package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/NotCoffee418/pulse_bridge/pkg/aggregator"
	"github.com/NotCoffee418/pulse_bridge/pkg/bridge"
	"github.com/NotCoffee418/pulse_bridge/pkg/meterdb"
	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// serveHTTP runs the API server in g and shuts it down when ctx ends.
func serveHTTP(ctx context.Context, g *errgroup.Group, addr string, handler http.Handler, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info("API server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newMux(b *bridge.Bridge, out *sinks, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"message":          "Pulse Bridge API",
			"status":           "running",
			"mode":             b.Mode().String(),
			"serial":           b.Serial(),
			"stream_connected": b.WsConnected(),
			"sml_fallback":     b.SmlFallbackActive(),
		}
		if last := b.LastUpdate(); !last.IsZero() {
			status["last_update"] = last.Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /latest", func(w http.ResponseWriter, r *http.Request) {
		snap := b.Store().Snapshot()
		if snap.Len() == 0 {
			writeError(w, http.StatusNotFound, "No readings available yet")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(snap.ToJsonBytes())
	})

	mux.HandleFunc("GET /readings", func(w http.ResponseWriter, r *http.Request) {
		readings := b.Readings()
		if len(readings) == 0 {
			writeError(w, http.StatusNotFound, "No readings available yet")
			return
		}
		writeJSON(w, http.StatusOK, readings)
	})

	mux.HandleFunc("GET /history/{obis}", func(w http.ResponseWriter, r *http.Request) {
		history, ok := recordedHistory(w, r, out)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, history)
	})

	mux.HandleFunc("GET /aggregate/{obis}", func(w http.ResponseWriter, r *http.Request) {
		tf, err := aggregator.ParseTimeframe(r.URL.Query().Get("timeframe"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		history, ok := recordedHistory(w, r, out)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, aggregator.Aggregate(history, tf, time.Now()))
	})

	mux.Handle("/ws", out.hub)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// recordedHistory serves the shared part of the history endpoints: the code
// from the path and an optional since=unix query, defaulting to the last day.
func recordedHistory(w http.ResponseWriter, r *http.Request, out *sinks) ([]meterdb.MeterDbReading, bool) {
	if out.recorder == nil {
		writeError(w, http.StatusNotFound, "Recording is disabled")
		return nil, false
	}
	code, err := obis.ParseHex(r.PathValue("obis"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be a unix timestamp")
			return nil, false
		}
		since = time.Unix(unix, 0)
	}
	history, err := out.recorder.History(r.Context(), code, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return history, true
}
