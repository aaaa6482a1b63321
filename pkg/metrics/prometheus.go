package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scheduler timing phases, per the four wall-clock buckets the scheduler
// accumulates: parameter evaluation, LP update (objective + constraints),
// solve, recorder save.
const (
	PhaseParameterEval = "parameter_eval"
	PhaseLPUpdate      = "lp_update"
	PhaseSolve         = "solve"
	PhaseRecorderSave  = "recorder_save"
)

// Metrics глобальный контейнер метрик
type Metrics struct {
	// Тайминги планировщика
	StepPhaseDuration *prometheus.SummaryVec

	// Метрики решателя
	SolveOperationsTotal *prometheus.CounterVec
	SolveDuration        *prometheus.HistogramVec
	InfeasibleStepsTotal *prometheus.CounterVec

	// Метрики сети/сценариев
	ScenarioFlowTotal *prometheus.GaugeVec
	StorageVolume     *prometheus.GaugeVec
	NetworkNodesTotal prometheus.Gauge
	NetworkEdgesTotal prometheus.Gauge

	// Информация о запуске
	RunInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics инициализирует метрики
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		StepPhaseDuration: promauto.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace:  namespace,
				Subsystem:  subsystem,
				Name:       "step_phase_duration_seconds",
				Help:       "Wall time of one scheduler phase for one scenario-step",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"phase"},
		),

		SolveOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_operations_total",
				Help:      "Total number of per-step LP solves",
			},
			[]string{"status"},
		),

		SolveDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_duration_seconds",
				Help:      "Duration of a single per-step LP solve",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"status"},
		),

		InfeasibleStepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "infeasible_steps_total",
				Help:      "Total number of scenario-steps the solver reported infeasible",
			},
			[]string{"scenario"},
		),

		ScenarioFlowTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "scenario_flow_total",
				Help:      "Total flow solved for the last step of a scenario",
			},
			[]string{"scenario"},
		),

		StorageVolume: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "storage_volume",
				Help:      "Current storage node volume",
			},
			[]string{"scenario", "node"},
		),

		NetworkNodesTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "network_nodes_total",
				Help:      "Number of nodes in the loaded network",
			},
		),

		NetworkEdgesTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "network_edges_total",
				Help:      "Number of edges in the loaded network",
			},
		),

		RunInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_info",
				Help:      "Run information",
			},
			[]string{"run_id", "version"},
		),
	}

	// Go runtime stats (goroutines, heap, GC pauses) ride alongside the
	// domain metrics above under the same namespace/subsystem.
	prometheus.DefaultRegisterer.MustRegister(NewRuntimeCollector(namespace, subsystem))

	defaultMetrics = m
	return m
}

// Get возвращает глобальные метрики
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("simcore", "")
	}
	return defaultMetrics
}

// ObservePhase записывает длительность фазы планировщика
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.StepPhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordSolveOperation записывает метрики одного решения ЛП на шаге
func (m *Metrics) RecordSolveOperation(scenario string, feasible bool, duration time.Duration) {
	status := "feasible"
	if !feasible {
		status = "infeasible"
		m.InfeasibleStepsTotal.WithLabelValues(scenario).Inc()
	}
	m.SolveOperationsTotal.WithLabelValues(status).Inc()
	m.SolveDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordNetworkSize записывает размер загруженной сети
func (m *Metrics) RecordNetworkSize(nodes, edges int) {
	m.NetworkNodesTotal.Set(float64(nodes))
	m.NetworkEdgesTotal.Set(float64(edges))
}

// SetRunInfo устанавливает информацию о текущем запуске
func (m *Metrics) SetRunInfo(runID, version string) {
	m.RunInfo.WithLabelValues(runID, version).Set(1)
}

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer запускает HTTP сервер для метрик
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		// Игнорируем ошибку записи - response уже отправлен
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, ошибка записи не критична
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
