package requestctx

import (
	"context"
	"testing"
)

func TestViewerIDRoundTrip(t *testing.T) {
	ctx := WithViewerID(context.Background(), "viewer-42")
	if got := ViewerIDFromContext(ctx); got != "viewer-42" {
		t.Fatalf("ViewerIDFromContext = %q, want %q", got, "viewer-42")
	}
}

func TestViewerIDEmpty(t *testing.T) {
	if got := ViewerIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty viewer id, got %q", got)
	}
	if got := ViewerIDFromContext(nil); got != "" {
		t.Fatalf("expected empty viewer id for nil context, got %q", got)
	}
}

func TestWithViewerIDNilContext(t *testing.T) {
	ctx := WithViewerID(nil, "viewer-99")
	if got := ViewerIDFromContext(ctx); got != "viewer-99" {
		t.Fatalf("ViewerIDFromContext = %q, want %q", got, "viewer-99")
	}
}
