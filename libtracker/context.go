package libtracker

import (
	"context"
	"fmt"
	"math/rand/v2"
)

type contextKey string

var (
	ContextKeyRequestID = contextKey("request_id")
	ContextKeyTraceID   = contextKey("trace_id")
	ContextKeySpanID    = contextKey("span_id")
)

// CopyTrackingValues carries request/trace/span IDs from one context into
// another, for handoffs between request contexts and background work.
func CopyTrackingValues(src context.Context, dst context.Context) context.Context {
	ctx := context.WithValue(dst, ContextKeyRequestID, src.Value(ContextKeyRequestID))
	ctx = context.WithValue(ctx, ContextKeyTraceID, src.Value(ContextKeyTraceID))
	ctx = context.WithValue(ctx, ContextKeySpanID, src.Value(ContextKeySpanID))
	return ctx
}

// WithNewRequestID stamps a fresh random request ID into ctx. Use at CLI
// command and goroutine entry points that have no inbound request ID.
func WithNewRequestID(ctx context.Context) context.Context {
	id := fmt.Sprintf("cli-%016x", rand.Uint64())
	return context.WithValue(ctx, ContextKeyRequestID, id)
}
