package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests, stream
// lifecycle events, viewer presence, and recording reconciliation. Writers are
// coordinated with a RWMutex; the active-stream gauge uses an atomic so the
// lifecycle paths never contend with exposition.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	streamEvents    map[string]uint64
	reconcileEvents map[string]uint64
	activeStreams   atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can record immediately without further setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		streamEvents:    make(map[string]uint64),
		reconcileEvents: make(map[string]uint64),
	}
}

// Default returns the shared Recorder used by packages that do not need a
// custom instrumentation pipeline.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by method,
// normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: strconv.Itoa(status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// StreamStarted records a go-live transition and bumps the active gauge.
func (r *Recorder) StreamStarted() {
	if r == nil {
		return
	}
	r.countStreamEvent("started")
	r.activeStreams.Add(1)
}

// StreamStopped records an end-of-broadcast transition.
func (r *Recorder) StreamStopped() {
	if r == nil {
		return
	}
	r.countStreamEvent("stopped")
	if r.activeStreams.Add(-1) < 0 {
		r.activeStreams.Store(0)
	}
}

func (r *Recorder) countStreamEvent(event string) {
	r.mu.Lock()
	r.streamEvents[event]++
	r.mu.Unlock()
}

// ObserveReconcile records a reconciliation outcome. Known events:
// "artifact_discovered", "stream_matched", "locate_hit", "locate_miss",
// "storage_error".
func (r *Recorder) ObserveReconcile(event string) {
	if r == nil || event == "" {
		return
	}
	r.mu.Lock()
	r.reconcileEvents[event]++
	r.mu.Unlock()
}

// ActiveStreams returns the current live-stream gauge value.
func (r *Recorder) ActiveStreams() int64 {
	if r == nil {
		return 0
	}
	return r.activeStreams.Load()
}

// Handler exposes the recorder in a plain-text format compatible with common
// scrape tooling.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.write(w)
	})
}

func (r *Recorder) write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		requestLabels = append(requestLabels, label)
	}
	sort.Slice(requestLabels, func(i, j int) bool {
		a, b := requestLabels[i], requestLabels[j]
		if a.path != b.path {
			return a.path < b.path
		}
		if a.method != b.method {
			return a.method < b.method
		}
		return a.status < b.status
	})
	for _, label := range requestLabels {
		fmt.Fprintf(w, "fernando_http_requests_total{method=%q,path=%q,status=%q} %d\n",
			label.method, label.path, label.status, r.requestCount[label])
		fmt.Fprintf(w, "fernando_http_request_duration_seconds_total{method=%q,path=%q,status=%q} %.6f\n",
			label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	for _, event := range sortedKeys(r.streamEvents) {
		fmt.Fprintf(w, "fernando_stream_events_total{event=%q} %d\n", event, r.streamEvents[event])
	}
	for _, event := range sortedKeys(r.reconcileEvents) {
		fmt.Fprintf(w, "fernando_reconcile_events_total{event=%q} %d\n", event, r.reconcileEvents[event])
	}
	fmt.Fprintf(w, "fernando_active_streams %d\n", r.activeStreams.Load())
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// normalizePath collapses identifier segments so the label cardinality stays
// bounded.
func normalizePath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	segments := strings.Split(trimmed, "/")
	for i, segment := range segments {
		if looksLikeIdentifier(segment) {
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) < 16 {
		return false
	}
	for _, r := range segment {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
