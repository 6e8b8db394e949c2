package server

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// AuditLogEntry records one operator action relayed to the backend.
type AuditLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Handler    string    `json:"handler"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	RequestID  string    `json:"request_id,omitempty"`
	StatusCode int       `json:"status_code"`
	OrderID    string    `json:"order_id,omitempty"`
	OldStatus  string    `json:"old_status,omitempty"`
	NewStatus  string    `json:"new_status,omitempty"`
	Request    string    `json:"request,omitempty"`
	Response   string    `json:"response,omitempty"`
}

func (e AuditLogEntry) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddTime("timestamp", e.Timestamp)
	enc.AddString("handler", e.Handler)
	enc.AddString("method", e.Method)
	enc.AddString("path", e.Path)
	if e.RequestID != "" {
		enc.AddString("request_id", e.RequestID)
	}
	enc.AddInt("status_code", e.StatusCode)
	if e.OrderID != "" {
		enc.AddString("order_id", e.OrderID)
	}
	if e.OldStatus != "" {
		enc.AddString("old_status", e.OldStatus)
	}
	if e.NewStatus != "" {
		enc.AddString("new_status", e.NewStatus)
	}
	if e.Request != "" {
		enc.AddString("request", e.Request)
	}
	if e.Response != "" {
		enc.AddString("response", e.Response)
	}
	return nil
}

type auditBatch []AuditLogEntry

func (b auditBatch) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, e := range b {
		if err := enc.AppendObject(e); err != nil {
			return err
		}
	}
	return nil
}
