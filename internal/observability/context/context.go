// Package context carries correlation identifiers through request and job
// contexts so logs and spans can be joined.
package context

import "context"

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	runIDKey     ctxKey = "run_id"
	jobKey       ctxKey = "job"
	yearKey      ctxKey = "year"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithRunID tags the context with an allocation or import run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey)
}

func WithJob(ctx context.Context, job string) context.Context {
	if job == "" {
		return ctx
	}
	return context.WithValue(ctx, jobKey, job)
}

func JobFromContext(ctx context.Context) string {
	return stringValue(ctx, jobKey)
}

func WithYear(ctx context.Context, year int) context.Context {
	return context.WithValue(ctx, yearKey, year)
}

func YearFromContext(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	year, ok := ctx.Value(yearKey).(int)
	return year, ok
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
