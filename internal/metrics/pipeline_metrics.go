package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты обработки команды конвейера.
const (
	ResultOK         = "ok"
	ResultRetry      = "retry"
	ResultDeadLetter = "dead_letter"
)

// PipelineMetrics содержит метрики конвейера команд.
type PipelineMetrics struct {
	published      *prometheus.CounterVec
	processed      *prometheus.CounterVec
	handleDuration *prometheus.HistogramVec
	inFlight       prometheus.Gauge
}

// NewPipelineMetrics регистрирует метрики конвейера в DefaultRegisterer.
func NewPipelineMetrics() *PipelineMetrics {
	return NewPipelineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPipelineMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewPipelineMetricsWithRegisterer(registerer prometheus.Registerer) *PipelineMetrics {
	return &PipelineMetrics{
		published: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_pipeline_published_total",
			Help: "Total number of commands published, by topic",
		}, []string{"topic"}),
		processed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_pipeline_processed_total",
			Help: "Total number of command handling attempts, by topic and result",
		}, []string{"topic", "result"}),
		handleDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_pipeline_handle_duration_seconds",
			Help:    "Duration of command handling including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"topic"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_pipeline_in_flight",
			Help: "Number of commands currently being handled",
		}),
	}
}

// RecordPublished увеличивает счётчик опубликованных команд.
func (m *PipelineMetrics) RecordPublished(topic string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(topic).Inc()
}

// RecordProcessed фиксирует результат одной попытки обработки.
func (m *PipelineMetrics) RecordProcessed(topic, result string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(topic, result).Inc()
}

// RecordHandleDuration записывает полное время обработки команды.
func (m *PipelineMetrics) RecordHandleDuration(topic string, d time.Duration) {
	if m == nil {
		return
	}
	m.handleDuration.WithLabelValues(topic).Observe(d.Seconds())
}

// InFlightStarted / InFlightFinished отслеживают команды в обработке.
func (m *PipelineMetrics) InFlightStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *PipelineMetrics) InFlightFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
