package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики движка.
//
// Все методы безопасны для nil-получателя: компоненты, которым
// метрики не переданы, просто ничего не записывают.
type Metrics struct {
	nodeDuration  *prometheus.HistogramVec
	nodeErrors    *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	tokensTotal   *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	llmRounds     *prometheus.CounterVec
	batchesActive prometheus.Gauge
	batchTasks    *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// Для глобального реестра используйте prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		nodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shelly_node_duration_seconds",
			Help:    "Node execution latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"node_type"}),
		nodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelly_node_errors_total",
			Help: "Failed node executions",
		}, []string{"node_type"}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelly_runs_total",
			Help: "Finished runs by status",
		}, []string{"status"}),
		tokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelly_llm_tokens_total",
			Help: "Model tokens by provider and direction",
		}, []string{"provider", "direction"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelly_tool_calls_total",
			Help: "VFS tool invocations",
		}, []string{"tool"}),
		llmRounds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelly_llm_rounds_total",
			Help: "Model request rounds",
		}, []string{"provider"}),
		batchesActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "shelly_batches_active",
			Help: "Batches currently executing",
		}),
		batchTasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelly_batch_tasks_total",
			Help: "Batch tasks by outcome",
		}, []string{"outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelly_http_requests_total",
			Help: "HTTP requests by method and status",
		}, []string{"method", "status"}),
	}
}

// ObserveNode записывает длительность узла и ошибку, если она была.
func (m *Metrics) ObserveNode(nodeType string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.nodeDuration.WithLabelValues(nodeType).Observe(d.Seconds())
	if failed {
		m.nodeErrors.WithLabelValues(nodeType).Inc()
	}
}

// RunFinished увеличивает счётчик run по статусу.
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

// AddTokens записывает использованные токены.
func (m *Metrics) AddTokens(provider string, input, output int) {
	if m == nil {
		return
	}
	m.tokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	m.tokensTotal.WithLabelValues(provider, "output").Add(float64(output))
}

// ToolCalled увеличивает счётчик вызовов инструмента.
func (m *Metrics) ToolCalled(tool string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool).Inc()
}

// LLMRound увеличивает счётчик раундов запросов к модели.
func (m *Metrics) LLMRound(provider string) {
	if m == nil {
		return
	}
	m.llmRounds.WithLabelValues(provider).Inc()
}

// BatchStarted и BatchFinished ведут gauge активных batch.
func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.batchesActive.Inc()
}

func (m *Metrics) BatchFinished() {
	if m == nil {
		return
	}
	m.batchesActive.Dec()
}

// BatchTask записывает исход задачи batch: completed, failed, skipped.
func (m *Metrics) BatchTask(outcome string) {
	if m == nil {
		return
	}
	m.batchTasks.WithLabelValues(outcome).Inc()
}

// HTTPRequest записывает обработанный HTTP запрос.
func (m *Metrics) HTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
