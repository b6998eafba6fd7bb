// Package metrics defines Prometheus metrics for ingestion and querying.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgrag_documents_total",
			Help: "Documents seen by sync, by outcome",
		},
		[]string{"status"},
	)

	ChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgrag_chunks_total",
			Help: "Chunk insertions by result",
		},
		[]string{"result"},
	)

	PurgedNodesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kgrag_purged_nodes_total",
			Help: "Graph nodes deleted while purging changed documents",
		},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kgrag_sync_duration_seconds",
			Help:    "Duration of a full directory sync",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kgrag_query_duration_seconds",
			Help:    "Question answering latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
	)

	QueryErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kgrag_query_errors_total",
			Help: "Failed answers",
		},
	)

	TrackedFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kgrag_tracked_files",
			Help: "Files recorded in the sync state",
		},
	)
)

func init() {
	prometheus.MustRegister(
		DocumentsTotal, ChunksTotal, PurgedNodesTotal,
		SyncDuration, QueryDuration, QueryErrorsTotal,
		TrackedFiles,
	)
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
