package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
	ready        atomic.Bool

	// Pipeline metrics
	FramesCaptured     prometheus.Counter
	FramesSubmitted    prometheus.Counter
	FramesDropped      *prometheus.CounterVec
	ResultsPublished   prometheus.Counter
	ResultsOverwritten prometheus.Counter
	WorkerAbandoned    prometheus.Counter

	// Classifier metrics
	ClassifierRequests *prometheus.CounterVec
	ClassifierLatency  *prometheus.HistogramVec

	// Affect metrics
	StressLevel       prometheus.Gauge
	StressAccumulated prometheus.Gauge
	TrendScore        prometheus.Gauge
	Valence           prometheus.Gauge
	Arousal           prometheus.Gauge
	HighStress        prometheus.Gauge
	FacesDetected     *prometheus.CounterVec

	// Session metrics
	RecordsLogged   prometheus.Counter
	ExportsTotal    *prometheus.CounterVec
	AnalyzeRequests *prometheus.CounterVec
	AlertsSent      *prometheus.CounterVec
	AMQPPublished   *prometheus.CounterVec
)

// Init creates the registry and registers all collectors. Safe to call more than once.
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		FramesCaptured = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stresscam_frames_captured_total",
			Help: "Total number of frames read from the capture source",
		})

		FramesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stresscam_frames_submitted_total",
			Help: "Total number of frames handed to the classifier worker",
		})

		FramesDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stresscam_frames_dropped_total",
				Help: "Total number of selected frames dropped before classification",
			},
			[]string{"reason"},
		)

		ResultsPublished = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stresscam_results_published_total",
			Help: "Total number of classifier results published to the result slot",
		})

		ResultsOverwritten = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stresscam_results_overwritten_total",
			Help: "Total number of unconsumed results replaced by a newer one",
		})

		WorkerAbandoned = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stresscam_worker_abandoned_total",
			Help: "Number of times the classifier worker did not stop within the join timeout",
		})

		ClassifierRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stresscam_classifier_requests_total",
				Help: "Total number of classifier calls by outcome",
			},
			[]string{"transport", "status"},
		)

		ClassifierLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stresscam_classifier_latency_seconds",
				Help:    "Latency of classifier calls",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
			},
			[]string{"transport"},
		)

		StressLevel = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stresscam_stress_level",
			Help: "Current smoothed stress level (0-100)",
		})

		StressAccumulated = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stresscam_stress_accumulated",
			Help: "Current raw accumulated stress level (0-100)",
		})

		TrendScore = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stresscam_stress_trend_score",
			Help: "Multi-factor stress estimate from recent emotion history (0-100)",
		})

		Valence = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stresscam_valence",
			Help: "Current valence (-1 to 1)",
		})

		Arousal = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stresscam_arousal",
			Help: "Current arousal (0 to 1)",
		})

		HighStress = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stresscam_high_stress",
			Help: "1 while the smoothed stress level is above the high-stress threshold",
		})

		FacesDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stresscam_results_processed_total",
				Help: "Total number of classifier results processed by the monitor",
			},
			[]string{"face"},
		)

		RecordsLogged = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stresscam_session_records_total",
			Help: "Total number of session records logged",
		})

		ExportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stresscam_session_exports_total",
				Help: "Total number of session exports by outcome",
			},
			[]string{"status"},
		)

		AnalyzeRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stresscam_analyze_requests_total",
				Help: "Total number of single-shot analysis requests by outcome",
			},
			[]string{"status"},
		)

		AlertsSent = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stresscam_alerts_total",
				Help: "Total number of high-stress alerts by outcome",
			},
			[]string{"status"},
		)

		AMQPPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stresscam_amqp_published_total",
				Help: "Total number of affect updates published to AMQP by outcome",
			},
			[]string{"status"},
		)

		registry.MustRegister(
			FramesCaptured,
			FramesSubmitted,
			FramesDropped,
			ResultsPublished,
			ResultsOverwritten,
			WorkerAbandoned,

			ClassifierRequests,
			ClassifierLatency,

			StressLevel,
			StressAccumulated,
			TrendScore,
			Valence,
			Arousal,
			HighStress,
			FacesDetected,

			RecordsLogged,
			ExportsTotal,
			AnalyzeRequests,
			AlertsSent,
			AMQPPublished,
		)

		ready.Store(true)
		if logger != nil {
			logger.Info("Prometheus metrics initialized")
		}
	})
}

// GetRegistry returns the prometheus registry, nil before Init
func GetRegistry() *prometheus.Registry {
	return registry
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	Init(nil)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          registry,
	})
}

// RecordFrameCaptured counts a frame read from the capture source
func RecordFrameCaptured() {
	if ready.Load() {
		FramesCaptured.Inc()
	}
}

// RecordFrameSubmitted counts a frame accepted by the frame channel
func RecordFrameSubmitted() {
	if ready.Load() {
		FramesSubmitted.Inc()
	}
}

// RecordFrameDropped counts a selected frame that never reached the worker
func RecordFrameDropped(reason string) {
	if ready.Load() {
		FramesDropped.WithLabelValues(reason).Inc()
	}
}

// RecordResultPublished counts a result placed in the slot, and whether it replaced an unread one
func RecordResultPublished(overwrote bool) {
	if !ready.Load() {
		return
	}
	ResultsPublished.Inc()
	if overwrote {
		ResultsOverwritten.Inc()
	}
}

// RecordWorkerAbandoned counts a worker that missed the join deadline
func RecordWorkerAbandoned() {
	if ready.Load() {
		WorkerAbandoned.Inc()
	}
}

// ObserveClassifier returns a function that records the call's latency and outcome
func ObserveClassifier(transport string) func(err error) {
	start := time.Now()
	return func(err error) {
		if !ready.Load() {
			return
		}
		ClassifierLatency.WithLabelValues(transport).Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		ClassifierRequests.WithLabelValues(transport, status).Inc()
	}
}

// RecordAffect updates the live affect gauges
func RecordAffect(smoothed, accumulated, trend, valence, arousal float64, high bool) {
	if !ready.Load() {
		return
	}
	StressLevel.Set(smoothed)
	StressAccumulated.Set(accumulated)
	TrendScore.Set(trend)
	Valence.Set(valence)
	Arousal.Set(arousal)
	if high {
		HighStress.Set(1)
	} else {
		HighStress.Set(0)
	}
}

// RecordResultProcessed counts a result handled by the monitor
func RecordResultProcessed(faceDetected bool) {
	if !ready.Load() {
		return
	}
	label := "absent"
	if faceDetected {
		label = "present"
	}
	FacesDetected.WithLabelValues(label).Inc()
}

// RecordSessionRecord counts a session log append
func RecordSessionRecord() {
	if ready.Load() {
		RecordsLogged.Inc()
	}
}

// RecordExport counts an export attempt by outcome
func RecordExport(status string) {
	if ready.Load() {
		ExportsTotal.WithLabelValues(status).Inc()
	}
}

// RecordAnalyzeRequest counts a single-shot analysis by outcome
func RecordAnalyzeRequest(status string) {
	if ready.Load() {
		AnalyzeRequests.WithLabelValues(status).Inc()
	}
}

// RecordAlert counts a notifier delivery by outcome
func RecordAlert(status string) {
	if ready.Load() {
		AlertsSent.WithLabelValues(status).Inc()
	}
}

// RecordAMQPPublish counts an AMQP publish by outcome
func RecordAMQPPublish(status string) {
	if ready.Load() {
		AMQPPublished.WithLabelValues(status).Inc()
	}
}
