package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// auditLogMiddleware records every mutating request, i.e. every operator
// action relayed to the backend.
func (s *Server) auditLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		entry := AuditLogEntry{
			Timestamp: time.Now(),
			Method:    r.Method,
			Path:      r.URL.Path,
			Handler:   handlerName(r),
			RequestID: r.Header.Get("X-Request-ID"),
			OrderID:   mux.Vars(r)["id"],
		}

		if r.Body != nil {
			requestBody, _ := io.ReadAll(io.LimitReader(r.Body, maxAuditBody+1))
			rest := r.Body
			r.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(requestBody), rest), rest}
			entry.Request = string(bytes.TrimSpace(requestBody))

			if entry.OrderID != "" && entry.Handler == "updateStatus" {
				var req statusRequest
				if err := json.Unmarshal(requestBody, &req); err == nil {
					entry.NewStatus = req.Status
				}
			}
		}
		if entry.OrderID != "" {
			if order, found := s.orders.Get(entry.OrderID); found {
				entry.OldStatus = string(order.Status)
			}
		}

		wrw := newResponseWriterWrapper(w)

		next.ServeHTTP(wrw, r)

		entry.StatusCode = wrw.StatusCode()
		entry.Response = wrw.Body()

		s.AuditManager.LogEntry(r.Context(), entry)
	})
}

func handlerName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
		return route.GetName()
	}
	return "unknown"
}
