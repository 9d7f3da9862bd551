package internal

import (
	"context"
	"sync"
	"time"
)

// Lightweight telemetry hooks for the document engine. Callers may register
// a real metrics emitter (or a test stub) via RegisterTelemetryEmitter; the
// default emitter discards everything.

// TelemetryEmitter receives one named measurement with its labels.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl TelemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter installs fn; nil restores the no-op emitter.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitLatency records the duration of one engine operation in milliseconds.
// name: "docschema_operation_latency_ms" with labels {"collection", "operation"}
func EmitLatency(ctx context.Context, collection, operation string, started time.Time) {
	emit(ctx, "docschema_operation_latency_ms", map[string]string{
		"collection": collection,
		"operation":  operation,
	}, time.Since(started).Milliseconds())
}

// EmitValidationFailures records how many messages blocked a write.
// name: "docschema_validation_failures"
func EmitValidationFailures(ctx context.Context, collection string, count int) {
	emit(ctx, "docschema_validation_failures", map[string]string{"collection": collection}, int64(count))
}

// EmitHistoryFailure records a history entry that could not be written.
// name: "docschema_history_failures"
func EmitHistoryFailure(ctx context.Context, collection string) {
	emit(ctx, "docschema_history_failures", map[string]string{"collection": collection}, int64(1))
}
