package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_sync"

var (
	// ReconcileTotal 每次 new-message 進入 reconcile 的結果
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_total",
		Help:      "Incoming messages by reconciliation outcome.",
	}, []string{"outcome"})

	// ViewCacheTotal derived view cache hit / miss
	ViewCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "view_cache_total",
		Help:      "Derived view cache lookups by cache and result.",
	}, []string{"cache", "result"})

	// EventsTotal transport events applied to inboxes
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Transport events received by type.",
	}, []string{"type"})

	// InboxLoadProgress 最近一次 progressive load 的完成百分比
	InboxLoadProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inbox_load_progress",
		Help:      "Percent complete of the most recent progressive inbox load.",
	})
)

// CacheHit record a derived view cache hit
func CacheHit(cache string) {
	ViewCacheTotal.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss record a derived view cache miss
func CacheMiss(cache string) {
	ViewCacheTotal.WithLabelValues(cache, "miss").Inc()
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
