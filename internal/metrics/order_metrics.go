package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
)

// OrderMetrics содержит бизнес-метрики оформления и исполнения заказов.
type OrderMetrics struct {
	checkouts   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	stockMoves  *prometheus.CounterVec

	timelineEvents prometheus.Counter

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Total number of checkout attempts, by result",
		}, []string{"result"}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of applied or rejected order transitions",
		}, []string{"op", "result"}),
		stockMoves: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_units_total",
			Help: "Total number of stock units moved by the inventory ledger",
		}, []string{"direction"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		cacheHits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cache_hits_total",
			Help: "Total number of cache hits, by entity kind",
		}, []string{"kind"}),
		cacheMisses: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_cache_misses_total",
			Help: "Total number of cache misses, by entity kind",
		}, []string{"kind"}),
	}
}

// RecordCheckout фиксирует результат оформления ("ok" или класс ошибки).
func (m *OrderMetrics) RecordCheckout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

// RecordTransition фиксирует применённый или отклонённый переход.
func (m *OrderMetrics) RecordTransition(op, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(op, result).Inc()
}

// RecordStockMove учитывает списанные ("deduct") или возвращённые ("restock") единицы.
func (m *OrderMetrics) RecordStockMove(direction string, units int64) {
	if m == nil || units <= 0 {
		return
	}
	m.stockMoves.WithLabelValues(direction).Add(float64(units))
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

func (m *OrderMetrics) CacheHit(kind cache.Kind) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(string(kind)).Inc()
}

func (m *OrderMetrics) CacheMiss(kind cache.Kind) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(string(kind)).Inc()
}

var _ cache.Observer = (*OrderMetrics)(nil)
