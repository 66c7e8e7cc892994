package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records per-stage throughput and batch-layer health.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	rowsProcessed *prometheus.CounterVec
	rowsDefaulted *prometheus.CounterVec
	chunksTotal   *prometheus.CounterVec
	chunksFailed  *prometheus.CounterVec
	runSuccess    prometheus.Counter
	runFailure    prometheus.Counter
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stage_duration_seconds",
		Help:    "Duration of pipeline stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	rowsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stage_rows_processed",
		Help: "Rows processed per pipeline stage.",
	}, []string{"stage"})
	rowsDefaulted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stage_rows_defaulted",
		Help: "Rows recovered with defensive defaults per pipeline stage.",
	}, []string{"stage"})
	chunksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_chunks_total",
		Help: "Chunks attempted by the batch ingestion layer.",
	}, []string{"stage"})
	chunksFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_chunks_failed",
		Help: "Chunks that exhausted their retries.",
	}, []string{"stage"})
	runSuccess := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "run_success",
		Help: "Completed pipeline runs.",
	})
	runFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "run_failure",
		Help: "Aborted pipeline runs.",
	})
	reg.MustRegister(stageDuration, rowsProcessed, rowsDefaulted, chunksTotal, chunksFailed, runSuccess, runFailure)
	return &PipelineMetrics{
		stageDuration: stageDuration,
		rowsProcessed: rowsProcessed,
		rowsDefaulted: rowsDefaulted,
		chunksTotal:   chunksTotal,
		chunksFailed:  chunksFailed,
		runSuccess:    runSuccess,
		runFailure:    runFailure,
	}
}

// ObserveStageDuration records the duration for the named stage.
func (p *PipelineMetrics) ObserveStageDuration(stage string, duration time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// AddRowsProcessed counts rows a stage finished with.
func (p *PipelineMetrics) AddRowsProcessed(stage string, n int) {
	if p == nil || p.rowsProcessed == nil || n <= 0 {
		return
	}
	p.rowsProcessed.WithLabelValues(normalizeLabel(stage)).Add(float64(n))
}

// AddRowsDefaulted counts rows patched up with defensive defaults.
func (p *PipelineMetrics) AddRowsDefaulted(stage string, n int) {
	if p == nil || p.rowsDefaulted == nil || n <= 0 {
		return
	}
	p.rowsDefaulted.WithLabelValues(normalizeLabel(stage)).Add(float64(n))
}

// AddChunks counts attempted and permanently failed chunks for a stage.
func (p *PipelineMetrics) AddChunks(stage string, attempted, failed int) {
	if p == nil {
		return
	}
	if p.chunksTotal != nil && attempted > 0 {
		p.chunksTotal.WithLabelValues(normalizeLabel(stage)).Add(float64(attempted))
	}
	if p.chunksFailed != nil && failed > 0 {
		p.chunksFailed.WithLabelValues(normalizeLabel(stage)).Add(float64(failed))
	}
}

// IncRunSuccess increments the completed-run counter.
func (p *PipelineMetrics) IncRunSuccess() {
	if p == nil || p.runSuccess == nil {
		return
	}
	p.runSuccess.Inc()
}

// IncRunFailure increments the aborted-run counter.
func (p *PipelineMetrics) IncRunFailure() {
	if p == nil || p.runFailure == nil {
		return
	}
	p.runFailure.Inc()
}

func normalizeLabel(stage string) string {
	if stage == "" {
		return "unknown"
	}
	return stage
}
