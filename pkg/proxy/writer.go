package proxy

import "net/http"

// flushCountingWriter wraps an http.ResponseWriter to count bytes written and auto-flush.
type flushCountingWriter struct {
	http.ResponseWriter
	flusher http.Flusher
	count   int64
}

// newFlushCountingWriter creates a new flushCountingWriter.
func newFlushCountingWriter(w http.ResponseWriter) *flushCountingWriter {
	fw := &flushCountingWriter{ResponseWriter: w}
	if flusher, ok := w.(http.Flusher); ok {
		fw.flusher = flusher
	}
	return fw
}

// Write writes data to the underlying ResponseWriter and flushes so that
// streamed completions reach the client as they arrive.
func (w *flushCountingWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.count += int64(n)
	if err == nil && w.flusher != nil {
		w.flusher.Flush()
	}
	return n, err
}
