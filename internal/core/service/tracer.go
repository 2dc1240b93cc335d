package service

import "context"

// Tracer is a minimal span-emission seam background services can accept
// without the core depending on a concrete tracing library.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, func())
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

// NoopTracer discards every span.
var NoopTracer Tracer = noopTracer{}
