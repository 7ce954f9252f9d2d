package cloudmetrics

import (
	"strings"
	"sync"
)

// Recorder receives review accounting events. The active recorder is a
// process-wide singleton so services record without carrying a handle; it
// stays a no-op until cloud metrics are configured.
type Recorder interface {
	RecordRequestSubmitted(requestType string)
	RecordReviewDecision(requestType, decision string)
	RecordRevocation(requestType string)
	RecordOrphanedRequests(count int64)
}

type recorder struct {
	metrics *metrics
}

type noopRecorder struct{}

func (noopRecorder) RecordRequestSubmitted(string)       {}
func (noopRecorder) RecordReviewDecision(string, string) {}
func (noopRecorder) RecordRevocation(string)             {}
func (noopRecorder) RecordOrphanedRequests(int64)        {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

func RecordRequestSubmitted(requestType string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordRequestSubmitted(requestType)
}

func RecordReviewDecision(requestType, decision string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordReviewDecision(requestType, decision)
}

func RecordRevocation(requestType string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordRevocation(requestType)
}

func RecordOrphanedRequests(count int64) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordOrphanedRequests(count)
}

func (r *recorder) RecordRequestSubmitted(requestType string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.requestsSubmitted.WithLabelValues(normalizeLabel(requestType)).Inc()
}

func (r *recorder) RecordReviewDecision(requestType, decision string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.reviewDecisions.WithLabelValues(normalizeLabel(requestType), normalizeLabel(decision)).Inc()
}

func (r *recorder) RecordRevocation(requestType string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.revocations.WithLabelValues(normalizeLabel(requestType)).Inc()
}

func (r *recorder) RecordOrphanedRequests(count int64) {
	if r == nil || r.metrics == nil || count <= 0 {
		return
	}
	r.metrics.orphanedRequests.Add(float64(count))
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
