// Package server exposes the read-only HTTP surface over the catalog store:
// health, metrics, and lookups by video id or uploader id. It injects
// correlation IDs into request contexts and wraps every request in a trace
// span, the same way the original backend's HTTP layer did.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/catalogarchive/archiver/catalog"
	"github.com/catalogarchive/archiver/telemetry"
)

// NewMux returns the HTTP handler with all routes over store.
func NewMux(store *catalog.Store) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/videos/", func(w http.ResponseWriter, r *http.Request) {
		idStr := strings.TrimPrefix(r.URL.Path, "/videos/")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid video id", http.StatusBadRequest)
			return
		}
		v, err := store.GetVideo(r.Context(), id)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "video not found", http.StatusNotFound)
			return
		}
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Error("get video failed", slog.Any("err", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, v)
	})

	mux.HandleFunc("/uploaders/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/uploaders/")
		rest = strings.TrimSuffix(rest, "/videos")
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			http.Error(w, "invalid uploader id", http.StatusBadRequest)
			return
		}
		videos, err := store.ListByUploader(r.Context(), id)
		if err != nil {
			telemetry.LoggerWithCorr(r.Context()).Error("list videos failed", slog.Any("err", err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, videos)
	})

	return withCorrelationAndTracing(mux)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// withCorrelationAndTracing injects a correlation id (reusing the caller's
// X-Correlation-ID header if present) and wraps the request in a span.
func withCorrelationAndTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.statusCode >= 400 {
			telemetry.RecordError(span, errors.New(http.StatusText(rec.statusCode)))
		} else {
			telemetry.SetSpanSuccess(span)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, store *catalog.Store, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(store),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
