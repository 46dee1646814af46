package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const Namespace = "flasharb"

type MetricsConfig struct {
	ListenAddr     string
	ReportInterval time.Duration
}

// NewRegistry returns a registry preloaded with the Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Serve exposes reg on cfg.ListenAddr until the returned server is shut down.
func Serve(cfg *MetricsConfig, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", cfg.ListenAddr))
	return srv
}

// factory builds collectors on reg; a nil reg yields unregistered collectors.
func factory(reg prometheus.Registerer) promauto.Factory {
	return promauto.With(reg)
}

type PriceMetrics struct {
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	QuoteErrors  *prometheus.CounterVec
	QuoteLatency prometheus.Histogram
}

func NewPriceMetrics(reg prometheus.Registerer) *PriceMetrics {
	f := factory(reg)
	return &PriceMetrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "price",
			Name:      "cache_hits_total",
			Help:      "Total number of price cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "price",
			Name:      "cache_misses_total",
			Help:      "Total number of price cache misses",
		}),
		QuoteErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "price",
			Name:      "quote_errors_total",
			Help:      "Total number of failed DEX quotes",
		}, []string{"dex"}),
		QuoteLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "price",
			Name:      "quote_latency_seconds",
			Help:      "DEX quote latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}
}

type ScanMetrics struct {
	Scans         prometheus.Counter
	Opportunities *prometheus.CounterVec
	ScanTime      prometheus.Histogram
}

func NewScanMetrics(reg prometheus.Registerer, subsystem string) *ScanMetrics {
	f := factory(reg)
	return &ScanMetrics{
		Scans: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "scans_total",
			Help:      "Total number of discovery scans run",
		}),
		Opportunities: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "opportunities_total",
			Help:      "Total number of opportunities surfaced",
		}, []string{"kind"}),
		ScanTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "scan_time_seconds",
			Help:      "Time taken by a full scan",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

type RiskMetrics struct {
	Assessments  prometheus.Counter
	Rejections   prometheus.Counter
	Score        prometheus.Histogram
	Samples      prometheus.Counter
	SampleErrors prometheus.Counter
}

func NewRiskMetrics(reg prometheus.Registerer) *RiskMetrics {
	f := factory(reg)
	return &RiskMetrics{
		Assessments: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "risk",
			Name:      "assessments_total",
			Help:      "Total number of risk assessments",
		}),
		Rejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "risk",
			Name:      "rejections_total",
			Help:      "Total number of assessments that failed the gate",
		}),
		Score: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "risk",
			Name:      "score",
			Help:      "Distribution of risk scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		Samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "risk",
			Name:      "samples_total",
			Help:      "Total number of chain metric samples taken",
		}),
		SampleErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "risk",
			Name:      "sample_errors_total",
			Help:      "Total number of failed chain metric samples",
		}),
	}
}

type ChainMetrics struct {
	GasPrice   *prometheus.GaugeVec
	PendingTx  *prometheus.GaugeVec
	BlockTime  *prometheus.GaugeVec
	PollErrors *prometheus.CounterVec
}

func NewChainMetrics(reg prometheus.Registerer) *ChainMetrics {
	f := factory(reg)
	return &ChainMetrics{
		GasPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "chain",
			Name:      "gas_price_wei",
			Help:      "Suggested gas price",
		}, []string{"chain"}),
		PendingTx: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "chain",
			Name:      "pending_transactions",
			Help:      "Pending transactions seen by the node",
		}, []string{"chain"}),
		BlockTime: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "chain",
			Name:      "block_time_seconds",
			Help:      "Time between the two latest blocks",
		}, []string{"chain"}),
		PollErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "chain",
			Name:      "poll_errors_total",
			Help:      "Total number of failed chain polls",
		}, []string{"chain"}),
	}
}

type ExecutionMetrics struct {
	Executions    *prometheus.CounterVec
	ProfitTotal   prometheus.Counter
	GasUsed       prometheus.Histogram
	ExecutionTime prometheus.Histogram
	QueueDepth    prometheus.Gauge
	Enqueued      prometheus.Counter
}

func NewExecutionMetrics(reg prometheus.Registerer) *ExecutionMetrics {
	f := factory(reg)
	return &ExecutionMetrics{
		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "flashloan",
			Name:      "executions_total",
			Help:      "Total number of flash loan executions by terminal status",
		}, []string{"status"}),
		ProfitTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "flashloan",
			Name:      "profit_total",
			Help:      "Total realized profit in asset base units",
		}),
		GasUsed: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "flashloan",
			Name:      "gas_used",
			Help:      "Gas used per execution",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 10),
		}),
		ExecutionTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "flashloan",
			Name:      "execution_time_seconds",
			Help:      "Time taken to execute a flash loan",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "flashloan",
			Name:      "queue_depth",
			Help:      "Tasks waiting in the execution queue",
		}),
		Enqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "flashloan",
			Name:      "enqueued_total",
			Help:      "Total number of tasks enqueued",
		}),
	}
}

type EventMetrics struct {
	Published *prometheus.CounterVec
	Dropped   *prometheus.CounterVec
	Failed    *prometheus.CounterVec
}

func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	f := factory(reg)
	return &EventMetrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events delivered to a sink",
		}, []string{"sink"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total number of events dropped on a full buffer",
		}, []string{"sink"}),
		Failed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "failed_total",
			Help:      "Total number of events a sink failed to deliver",
		}, []string{"sink"}),
	}
}
