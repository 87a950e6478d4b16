package ctxutil

import "context"

type traceDataKey struct{}

// TraceData correlates log lines. RunID is set for work executed inside a
// background extraction run.
type TraceData struct {
	TraceID   string
	RequestID string
	RunID     string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// WithRunID returns a context whose trace data carries runID. The caller's trace
// data is copied, not mutated.
func WithRunID(ctx context.Context, runID string) context.Context {
	td := TraceData{}
	if cur := GetTraceData(ctx); cur != nil {
		td = *cur
	}
	td.RunID = runID
	return WithTraceData(ctx, &td)
}

// LogFields returns trace_id/request_id/run_id pairs for structured logging, skipping empty values.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	var out []interface{}
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	if td.RunID != "" {
		out = append(out, "run_id", td.RunID)
	}
	return out
}
