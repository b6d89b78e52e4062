//go:build !noprom

package metrics

import (
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type promRecorder struct {
	dbTotal       *prom.CounterVec
	dbSeconds     *prom.HistogramVec
	engineTotal   *prom.CounterVec
	engineSeconds *prom.HistogramVec
	stmtCacheHit  prom.Counter
	stmtCacheMiss prom.Counter
	poolInUse     prom.Gauge
	poolIdle      prom.Gauge
}

func (p *promRecorder) IncDBOpTotal(op string, success bool) {
	p.dbTotal.WithLabelValues(op, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveDBOpSeconds(op string, success bool, seconds float64) {
	p.dbSeconds.WithLabelValues(op, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncEngineOpTotal(op string, success bool) {
	p.engineTotal.WithLabelValues(op, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveEngineOpSeconds(op string, success bool, seconds float64) {
	p.engineSeconds.WithLabelValues(op, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncStmtCacheHit()  { p.stmtCacheHit.Inc() }
func (p *promRecorder) IncStmtCacheMiss() { p.stmtCacheMiss.Inc() }

func (p *promRecorder) ObservePoolStats(inUse, idle int) {
	p.poolInUse.Set(float64(inUse))
	p.poolIdle.Set(float64(idle))
}

func enablePrometheus(addr string) error {
	registry := prom.NewRegistry()
	p := &promRecorder{
		dbTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "db_ops_total",
			Help: "Total number of DB operations",
		}, []string{"op", "success"}),
		dbSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "db_op_seconds",
			Help:    "DB operation duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"op", "success"}),
		engineTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "engine_ops_total",
			Help: "Total number of suggestion/bridge engine operations",
		}, []string{"op", "success"}),
		engineSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "engine_op_seconds",
			Help:    "Engine operation duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"op", "success"}),
		stmtCacheHit: prom.NewCounter(prom.CounterOpts{
			Name: "stmt_cache_hits_total",
			Help: "Prepared statement cache hits",
		}),
		stmtCacheMiss: prom.NewCounter(prom.CounterOpts{
			Name: "stmt_cache_misses_total",
			Help: "Prepared statement cache misses",
		}),
		poolInUse: prom.NewGauge(prom.GaugeOpts{
			Name: "db_pool_in_use",
			Help: "Open connections currently in use",
		}),
		poolIdle: prom.NewGauge(prom.GaugeOpts{
			Name: "db_pool_idle",
			Help: "Idle connections in the pool",
		}),
	}

	registry.MustRegister(
		p.dbTotal, p.dbSeconds, p.engineTotal, p.engineSeconds,
		p.stmtCacheHit, p.stmtCacheMiss, p.poolInUse, p.poolIdle,
	)
	SetRecorder(p)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() { _ = http.ListenAndServe(addr, mux) }()
	return nil
}
