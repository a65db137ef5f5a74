package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/ChemPredict/pkg/errors"
)

// AppMetrics holds every ChemPredict metric family.  A nil *AppMetrics is
// valid and records nothing.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Prediction
	PredictionsTotal      CounterVec
	PredictionErrorsTotal CounterVec
	PredictionDuration    HistogramVec
	CacheHitsTotal        CounterVec
	CacheMissesTotal      CounterVec
	ArtifactReloadsTotal  CounterVec

	// Training
	TrainingRunsTotal    CounterVec
	TrainingDuration     HistogramVec
	ModelAccuracy        GaugeVec
	DatasetRowsGenerated CounterVec

	// Side effects
	EventsPublishedTotal CounterVec
	HistoryWritesTotal   CounterVec
}

var (
	DefaultHTTPDurationBuckets       = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}
	DefaultPredictionDurationBuckets = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5}
	DefaultTrainingDurationBuckets   = []float64{.1, .5, 1, 5, 10, 30, 60, 300}
)

// NewAppMetrics registers all families on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:   collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code"),
		HTTPRequestDuration: collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path"),

		PredictionsTotal:      collector.RegisterCounter("predictions_total", "Predictions served", "backend", "mechanism"),
		PredictionErrorsTotal: collector.RegisterCounter("prediction_errors_total", "Rejected or failed predictions", "backend", "code"),
		PredictionDuration:    collector.RegisterHistogram("prediction_duration_seconds", "Prediction latency", DefaultPredictionDurationBuckets, "backend"),
		CacheHitsTotal:        collector.RegisterCounter("cache_hits_total", "Cache hits", "cache"),
		CacheMissesTotal:      collector.RegisterCounter("cache_misses_total", "Cache misses", "cache"),
		ArtifactReloadsTotal:  collector.RegisterCounter("artifact_reloads_total", "Model artifact reloads", "status"),

		TrainingRunsTotal:    collector.RegisterCounter("training_runs_total", "Training runs", "status"),
		TrainingDuration:     collector.RegisterHistogram("training_duration_seconds", "Training wall time", DefaultTrainingDurationBuckets),
		ModelAccuracy:        collector.RegisterGauge("model_accuracy", "Hold-out accuracy of the latest trained model", "version"),
		DatasetRowsGenerated: collector.RegisterCounter("dataset_rows_generated_total", "Synthetic rows written", "mechanism"),

		EventsPublishedTotal: collector.RegisterCounter("events_published_total", "Domain events published", "event", "status"),
		HistoryWritesTotal:   collector.RegisterCounter("history_writes_total", "Prediction history writes", "status"),
	}
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordHTTPRequest counts one request.
func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordPrediction counts a served prediction.
func RecordPrediction(m *AppMetrics, backend, mechanism string, d time.Duration) {
	if m == nil {
		return
	}
	m.PredictionsTotal.WithLabelValues(backend, mechanism).Inc()
	m.PredictionDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordPredictionError counts a failed prediction by error code.
func RecordPredictionError(m *AppMetrics, backend string, err error) {
	if m == nil {
		return
	}
	m.PredictionErrorsTotal.WithLabelValues(backend, string(errors.GetCode(err))).Inc()
}

// RecordCacheAccess counts a hit or a miss on cache.
func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

// RecordReload counts an artifact reload attempt.
func RecordReload(m *AppMetrics, err error) {
	if m == nil {
		return
	}
	m.ArtifactReloadsTotal.WithLabelValues(status(err)).Inc()
}

// RecordTrainingRun counts a run; accuracy is recorded only on success.
func RecordTrainingRun(m *AppMetrics, version string, accuracy float64, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.TrainingRunsTotal.WithLabelValues(status(err)).Inc()
	m.TrainingDuration.WithLabelValues().Observe(d.Seconds())
	if err == nil {
		m.ModelAccuracy.WithLabelValues(version).Set(accuracy)
	}
}

// RecordDatasetRows adds n generated rows labelled mechanism.
func RecordDatasetRows(m *AppMetrics, mechanism string, n int) {
	if m == nil {
		return
	}
	m.DatasetRowsGenerated.WithLabelValues(mechanism).Add(float64(n))
}

// RecordEvent counts a publish attempt.
func RecordEvent(m *AppMetrics, event string, err error) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(event, status(err)).Inc()
}

// RecordHistoryWrite counts a history insert attempt.
func RecordHistoryWrite(m *AppMetrics, err error) {
	if m == nil {
		return
	}
	m.HistoryWritesTotal.WithLabelValues(status(err)).Inc()
}
