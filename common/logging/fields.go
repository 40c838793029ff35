package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across the webhook services.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldProvider  = "provider"
	FieldEventID   = "event_id"
	FieldStage     = "stage"
	FieldReason    = "reason"
	FieldBlobKey   = "blob_key"
	FieldIP        = "ip"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

func Service(name string) slog.Attr { return slog.String(FieldService, name) }

func RequestID(id string) slog.Attr { return slog.String(FieldRequestID, id) }

func Provider(name string) slog.Attr { return slog.String(FieldProvider, name) }

func EventID(id string) slog.Attr { return slog.String(FieldEventID, id) }

// Stage returns an attribute naming the pipeline stage reached.
func Stage(stage string) slog.Attr { return slog.String(FieldStage, stage) }

// Reason carries a verification failure reason. Server-side only.
func Reason(reason string) slog.Attr { return slog.String(FieldReason, reason) }

func BlobKey(key string) slog.Attr { return slog.String(FieldBlobKey, key) }

func IP(ip string) slog.Attr { return slog.String(FieldIP, ip) }

func Method(method string) slog.Attr { return slog.String(FieldMethod, method) }

func Path(path string) slog.Attr { return slog.String(FieldPath, path) }

func Status(code int) slog.Attr { return slog.Int(FieldStatus, code) }

// Duration returns the elapsed time in milliseconds.
func Duration(d time.Duration) slog.Attr { return slog.Int64(FieldDuration, d.Milliseconds()) }

// Error returns an attribute for err. A nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
