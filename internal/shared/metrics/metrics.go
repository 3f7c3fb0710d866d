package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	analysisStartedTotal   atomic.Uint64
	analysisCompletedTotal atomic.Uint64
	workerJobsReceived     atomic.Uint64
	workerJobsCompleted    atomic.Uint64
	workerJobsFailed       atomic.Uint64
	workerJobsDropped      atomic.Uint64

	transcriptsIngested = newCounterVec("format")
	ingestFailures      = newCounterVec("reason")
	analysisFailed      = newCounterVec("code")
	chatTurns           = newCounterVec("outcome")

	analysisDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
	llmDuration      = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncTranscriptIngested counts a successfully parsed upload by format.
func IncTranscriptIngested(format string) { transcriptsIngested.Inc(format) }

// IncIngestFailed counts a rejected upload by reason (unsupported_format, malformed_transcript, ...).
func IncIngestFailed(reason string) { ingestFailures.Inc(reason) }

func IncAnalysisStarted()   { analysisStartedTotal.Add(1) }
func IncAnalysisCompleted() { analysisCompletedTotal.Add(1) }

// IncAnalysisFailed counts a failed analysis by error code.
func IncAnalysisFailed(code string) { analysisFailed.Inc(code) }

// IncChatTurn counts coach chat replies; outcome is "answered", "ungrounded" or "error".
func IncChatTurn(outcome string) { chatTurns.Inc(outcome) }

func IncWorkerJobReceived()  { workerJobsReceived.Add(1) }
func IncWorkerJobCompleted() { workerJobsCompleted.Add(1) }
func IncWorkerJobFailed()    { workerJobsFailed.Add(1) }

// IncWorkerJobDropped counts messages deleted without processing because they can never succeed.
func IncWorkerJobDropped() { workerJobsDropped.Add(1) }

// ObserveAnalysisDurationMs records an end-to-end analysis duration.
func ObserveAnalysisDurationMs(value float64) { analysisDuration.Observe(clampPositive(value)) }

// ObserveLLMDurationMs records one provider round trip.
func ObserveLLMDurationMs(value float64) { llmDuration.Observe(clampPositive(value)) }

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounterVec(&buf, "transcripts_ingested_total", "Transcripts parsed and stored", transcriptsIngested)
	writeCounterVec(&buf, "transcript_ingest_failed_total", "Uploads rejected by the ingestor", ingestFailures)
	writeCounter(&buf, "analysis_started_total", "Total analyses started", analysisStartedTotal.Load())
	writeCounter(&buf, "analysis_completed_total", "Total analyses completed", analysisCompletedTotal.Load())
	writeCounterVec(&buf, "analysis_failed_total", "Total analyses failed", analysisFailed)
	writeCounterVec(&buf, "coach_chat_turns_total", "Coach chat replies", chatTurns)
	writeCounter(&buf, "worker_jobs_received_total", "Queue messages received", workerJobsReceived.Load())
	writeCounter(&buf, "worker_jobs_completed_total", "Queue messages processed", workerJobsCompleted.Load())
	writeCounter(&buf, "worker_jobs_failed_total", "Queue messages left for redelivery", workerJobsFailed.Load())
	writeCounter(&buf, "worker_jobs_dropped_total", "Queue messages deleted as unprocessable", workerJobsDropped.Load())
	writeHistogram(&buf, "analysis_duration_ms", "Analysis duration in milliseconds", analysisDuration.Snapshot())
	writeHistogram(&buf, "llm_request_duration_ms", "LLM provider latency in milliseconds", llmDuration.Snapshot())
	return buf.String()
}

func clampPositive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

type counterVec struct {
	mu     sync.Mutex
	label  string
	values map[string]uint64
}

func newCounterVec(label string) *counterVec {
	return &counterVec{label: label, values: make(map[string]uint64)}
}

func (v *counterVec) Inc(labelValue string) {
	if labelValue == "" {
		labelValue = "unknown"
	}
	v.mu.Lock()
	v.values[labelValue]++
	v.mu.Unlock()
}

func (v *counterVec) snapshot() map[string]uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]uint64, len(v.values))
	for k, n := range v.values {
		out[k] = n
	}
	return out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe records value in the first bucket whose bound covers it; rendering accumulates.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeCounterVec(buf *bytes.Buffer, name, help string, vec *counterVec) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	values := vec.snapshot()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, vec.label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
