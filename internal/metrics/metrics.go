// Registers:
//
//	#bookwatch_refresh_total{result}
//	#bookwatch_refresh_duration_seconds
//	#bookwatch_spread{symbol}
//	#bookwatch_used_weight{symbol}
//	#go_* and process_* system metrics
//
// and exposes them on <listen>/metrics using the Prometheus HTTP handler.
package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookwatch/logger"
)

var (
	once            sync.Once
	registry        = prometheus.NewRegistry()
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	spreadGauge     *prometheus.GaugeVec
	usedWeightGauge *prometheus.GaugeVec
)

func register() {
	once.Do(func() {
		refreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookwatch_refresh_total",
				Help: "Refresh attempts by result (success, failure, dropped)",
			},
			[]string{"result"},
		)
		refreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookwatch_refresh_duration_seconds",
			Help:    "Wall time of a full refresh",
			Buckets: prometheus.DefBuckets,
		})
		spreadGauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bookwatch_spread",
				Help: "Lowest ask minus highest bid of the last snapshot",
			},
			[]string{"symbol"},
		)
		usedWeightGauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bookwatch_used_weight",
				Help: "Request weight used in the current minute as reported by Binance",
			},
			[]string{"symbol"},
		)

		registry.MustRegister(refreshTotal, refreshDuration, spreadGauge, usedWeightGauge)
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		RegisterMetricHandler(observe)
	})
}

// Init wires emitted metrics into the Prometheus collectors. When listen is not
// empty an HTTP server exposing /metrics is started and returned so the caller
// can shut it down.
func Init(listen string) *http.Server {
	register()
	if listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.GetLogger().WithComponent("metrics").WithError(err).Error("metrics server failed")
		}
	}()
	return srv
}

// observe maps application metrics onto the Prometheus series.
func observe(m Metric) {
	v, ok := floatValue(m.Value)
	if !ok {
		return
	}
	symbol, _ := m.Fields["symbol"].(string)

	switch m.Name {
	case "refresh_success":
		refreshTotal.WithLabelValues("success").Add(v)
	case "refresh_failure":
		refreshTotal.WithLabelValues("failure").Add(v)
	case "refresh_dropped":
		refreshTotal.WithLabelValues("dropped").Add(v)
	case "refresh_duration_ms":
		refreshDuration.Observe(v / 1000)
	case "spread":
		spreadGauge.WithLabelValues(symbol).Set(v)
	case "used_weight":
		usedWeightGauge.WithLabelValues(symbol).Set(v)
	}
}

func floatValue(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
