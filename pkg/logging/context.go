package logging

import "context"

type requestInfoKey struct{}

// RequestInfo identifies the HTTP request an operation runs on behalf of.
type RequestInfo struct {
	ID       string
	ClientIP string
}

// WithRequestInfo returns a copy of ctx carrying info.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the request info stored in ctx, or the zero value.
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}
