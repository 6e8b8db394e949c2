package server

import (
	"bytes"
	"net/http"
)

const maxAuditBody = 4 << 10

// responseWriterWrapper captures the status and the head of the body for the
// audit log.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	buffer      bytes.Buffer
	truncated   bool
}

func newResponseWriterWrapper(w http.ResponseWriter) *responseWriterWrapper {
	return &responseWriterWrapper{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	w.wroteHeader = true
	if room := maxAuditBody - w.buffer.Len(); room > 0 {
		if len(b) > room {
			w.buffer.Write(b[:room])
			w.truncated = true
		} else {
			w.buffer.Write(b)
		}
	} else if len(b) > 0 {
		w.truncated = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriterWrapper) StatusCode() int {
	return w.statusCode
}

func (w *responseWriterWrapper) Body() string {
	body := string(bytes.TrimSpace(w.buffer.Bytes()))
	if w.truncated {
		body += "..."
	}
	return body
}
