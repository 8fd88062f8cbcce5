// Package requestctx carries request-scoped identity through contexts.
package requestctx

import "context"

type viewerIDContextKey struct{}

// WithViewerID stores the viewer identity of a connection in ctx.
func WithViewerID(ctx context.Context, viewerID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, viewerIDContextKey{}, viewerID)
}

// ViewerIDFromContext returns the viewer identity stored in ctx.
func ViewerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(viewerIDContextKey{}).(string)
	return value
}
