// Package server hosts the bidding HTTP and WebSocket boundary.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/bidstage/internal/platform/timeouts"
	"github.com/louisbranch/bidstage/internal/services/bidding/session"
)

const (
	maxFramePayloadBytes   = 4 * 1024
	maxFramesPerSecond     = 20
	maxDecodeErrorsPerConn = 3
)

// Inbound frame types.
const (
	frameAttach     = "session.attach"
	frameDetach     = "session.detach"
	frameStart      = "start"
	frameSupplement = "user.supplement"
	frameReaction   = "user.reaction"
	frameSupport    = "user.support"
	framePrediction = "user.prediction"
	frameHeartbeat  = "heartbeat"
)

// Outbound frame types written by the transport itself.
const (
	frameError = "error"
	framePong  = "heartbeat.pong"
)

// Config defines the inputs for the bidding transport boundary.
type Config struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	// JWTSecret enables viewer token verification when set.
	JWTSecret string
}

// Runtime is the session table the transport serves.
type Runtime interface {
	Session(submissionID string) (*session.Session, error)
	Snapshot(ctx context.Context, submissionID string) (session.Snapshot, error)
}

// Server hosts the bidding HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string            `json:"code"`
	Reason    string            `json:"reason,omitempty"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

type attachPayload struct {
	SubmissionID string `json:"submissionId"`
}

type startPayload struct {
	Idea            string `json:"idea"`
	CreativityScore int    `json:"creativityScore"`
}

type supplementPayload struct {
	Content string `json:"content"`
}

type pongPayload struct {
	ServerTime string `json:"serverTime"`
}

// NewServer builds the HTTP server around runtime.
func NewServer(config Config, runtime Runtime) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if runtime == nil {
		return nil, errors.New("session runtime is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	var verifier *TokenVerifier
	if strings.TrimSpace(config.JWTSecret) != "" {
		var err error
		verifier, err = NewTokenVerifier(config.JWTSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("init token verifier: %w", err)
		}
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           NewHandler(runtime, verifier),
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
	}, nil
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("bidding server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("bidding: server listening addr=%s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Run serves config until ctx ends.
func Run(ctx context.Context, config Config, runtime Runtime) error {
	server, err := NewServer(config, runtime)
	if err != nil {
		return fmt.Errorf("init bidding server: %w", err)
	}
	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve bidding: %w", err)
	}
	return nil
}
