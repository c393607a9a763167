package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Processing metrics
	ProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmill_workitems_processed_total",
			Help: "Total number of processed workitems by workflow group and result",
		},
		[]string{"group", "result"},
	)

	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowmill_processing_duration_seconds",
			Help:    "Duration of a single process step in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SplitWorkitemsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowmill_split_workitems_total",
			Help: "Total number of sibling workitems created at split gateways",
		},
	)

	// Plugin metrics
	PluginErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmill_plugin_errors_total",
			Help: "Total number of plugin errors by plugin name",
		},
		[]string{"plugin"},
	)

	// Model metrics
	ModelsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmill_models_registered",
			Help: "Number of BPMN models currently registered",
		},
	)

	// Scheduler metrics
	SchedulerFiringsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmill_scheduler_firings_total",
			Help: "Total number of scheduler firings by scheduler id and result",
		},
		[]string{"scheduler", "result"},
	)

	SchedulersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmill_schedulers_active",
			Help: "Number of schedulers with a live timer",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ProcessedTotal)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(SplitWorkitemsTotal)
	prometheus.MustRegister(PluginErrorsTotal)
	prometheus.MustRegister(ModelsRegistered)
	prometheus.MustRegister(SchedulerFiringsTotal)
	prometheus.MustRegister(SchedulersActive)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
