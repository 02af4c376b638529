package metrics

import "net/http"

// ResponseRecorder captures the response status code written by downstream
// handlers so middleware can attach it to observations.
type ResponseRecorder struct {
	http.ResponseWriter
	status int
}

// NewResponseRecorder wraps the writer with a default 200 status.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *ResponseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Status returns the last status code written, defaulting to 200.
func (r *ResponseRecorder) Status() int {
	return r.status
}
