package stats

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func MilisecondsElapsed(from time.Time) float64 {
	return float64(time.Since(from)) / float64(time.Millisecond)
}

var (
	prometheusMetricsFactory promauto.Factory = promauto.With(prometheus.DefaultRegisterer)
	counters                 map[string]prometheus.Counter
	counterVecs              map[string]*prometheus.CounterVec
	histogramVecs            map[string]*prometheus.HistogramVec
	gaugeVecs                map[string]*prometheus.GaugeVec
)

func init() {
	counters = map[string]prometheus.Counter{
		"binlogsPulled": prometheusMetricsFactory.NewCounter(prometheus.CounterOpts{
			Name: "kvrepl_binlogs_pulled_total",
			Help: "The number of binlog records served to pulling replicas.",
		}),
		"binlogsRestored": prometheusMetricsFactory.NewCounter(prometheus.CounterOpts{
			Name: "kvrepl_binlogs_restored_total",
			Help: "The number of binlog records injected by restorebinlog.",
		}),
	}
	counterVecs = map[string]*prometheus.CounterVec{
		"transactionsApplied": prometheusMetricsFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "kvrepl_transactions_applied_total",
			Help: "The number of replicated transactions applied to local stores.",
		}, []string{"result"}),
	}
	histogramVecs = map[string]*prometheus.HistogramVec{
		"commandDuration": prometheusMetricsFactory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kvrepl_command_duration_milliseconds",
			Help:    "The time elapsed running replication commands.",
			Buckets: []float64{0.5, 1, 5, 50, 100, 1000},
		}, []string{"command", "result"}),
	}
	gaugeVecs = map[string]*prometheus.GaugeVec{
		"binlogPosition": prometheusMetricsFactory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kvrepl_incrsync_binlog_position",
			Help: "The next binlog position each replicating store will pull.",
		}, []string{"store_id"}),
	}
}

func Counter(name string) prometheus.Counter {
	return counters[name]
}

func CounterVec(name string) *prometheus.CounterVec {
	return counterVecs[name]
}

func HistogramVec(name string) *prometheus.HistogramVec {
	return histogramVecs[name]
}

func GaugeVec(name string) *prometheus.GaugeVec {
	return gaugeVecs[name]
}

func ListenAndServe(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
}
