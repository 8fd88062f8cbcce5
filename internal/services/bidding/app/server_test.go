package server

import (
	"context"
	"testing"
	"time"
)

func TestNewServerValidatesConfig(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := NewServer(Config{}, rt); err == nil {
		t.Fatal("expected missing address error")
	}
	if _, err := NewServer(Config{HTTPAddr: "127.0.0.1:0"}, nil); err == nil {
		t.Fatal("expected missing runtime error")
	}
	srv, err := NewServer(Config{HTTPAddr: "127.0.0.1:0", JWTSecret: "s"}, rt)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if srv.httpServer.ReadHeaderTimeout <= 0 || srv.shutdownTimeout <= 0 {
		t.Fatal("expected default timeouts")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv, err := NewServer(Config{HTTPAddr: "127.0.0.1:0"}, newTestRuntime(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("listen and serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
