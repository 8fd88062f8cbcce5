package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/louisbranch/bidstage/internal/platform/errors"
	"github.com/louisbranch/bidstage/internal/platform/id"
	"github.com/louisbranch/bidstage/internal/platform/requestctx"
	"github.com/louisbranch/bidstage/internal/platform/timeouts"
	"github.com/louisbranch/bidstage/internal/services/bidding/session"
)

// NewHandler creates the bidding routes. A nil verifier accepts anonymous
// viewers.
func NewHandler(runtime Runtime, verifier *TokenVerifier) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /sessions/{id}/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap, err := runtime.Snapshot(r.Context(), r.PathValue("id"))
		if err != nil {
			writeHTTPError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Printf("bidding: write snapshot response failed err=%v", err)
		}
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, runtime)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		submissionID := strings.TrimSpace(r.URL.Query().Get("session"))
		viewerID := strings.TrimSpace(r.URL.Query().Get("viewer"))
		if verifier != nil {
			claims, err := verifier.Verify(r.URL.Query().Get("token"), submissionID)
			if err != nil {
				log.Printf("bidding: websocket unauthorized remote=%s session=%q err=%v", r.RemoteAddr, submissionID, err)
				writeHTTPError(w, err)
				return
			}
			viewerID = claims.ViewerID
		}
		if viewerID == "" {
			generated, err := id.NewPrefixed("viewer")
			if err != nil {
				http.Error(w, "viewer id unavailable", http.StatusInternalServerError)
				return
			}
			viewerID = generated
		}

		wsHandler.ServeHTTP(w, r.WithContext(requestctx.WithViewerID(r.Context(), viewerID)))
	})

	return mux
}

type wsPeer struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	encoder *json.Encoder
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{conn: conn, encoder: json.NewEncoder(conn)}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.SetWriteDeadline(time.Now().Add(timeouts.SubscriberWrite))
	}
	return p.encoder.Encode(frame)
}

// wsSession binds one connection to at most one bidding session.
type wsSession struct {
	viewerID string
	peer     *wsPeer
	runtime  Runtime

	mu      sync.Mutex
	current *session.Session
	sub     *session.Subscription
	pumps   sync.WaitGroup
}

func newWSSession(viewerID string, peer *wsPeer, runtime Runtime) *wsSession {
	return &wsSession{
		viewerID: viewerID,
		peer:     peer,
		runtime:  runtime,
	}
}

func (c *wsSession) attach(submissionID string) error {
	submissionID = strings.TrimSpace(submissionID)
	sess, err := c.runtime.Session(submissionID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == sess && c.sub != nil {
		return nil
	}
	c.detachLocked()
	sub, err := sess.Attach(c.viewerID)
	if err != nil {
		return err
	}
	c.current = sess
	c.sub = sub
	c.pumps.Add(1)
	go c.pump(sess, sub)
	log.Printf("bidding: viewer attached session=%s viewer=%s", sess.ID(), c.viewerID)
	return nil
}

// pump forwards session events until the stream closes.
func (c *wsSession) pump(sess *session.Session, sub *session.Subscription) {
	defer c.pumps.Done()
	for ev := range sub.Events() {
		if err := c.peer.writeFrame(wsFrame{Type: ev.Type, Payload: mustJSON(ev.Payload)}); err != nil {
			sess.Detach(sub)
			for range sub.Events() {
			}
			break
		}
	}

	c.mu.Lock()
	stillCurrent := c.sub == sub
	if stillCurrent {
		c.current = nil
		c.sub = nil
	}
	c.mu.Unlock()
	if stillCurrent {
		_ = writeWSError(c.peer, "", apperrors.New(apperrors.CodeCommandNotAttached, "session stream closed"))
	}
}

func (c *wsSession) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachLocked()
}

func (c *wsSession) detachLocked() {
	if c.current == nil {
		return
	}
	sess, sub := c.current, c.sub
	c.current = nil
	c.sub = nil
	sess.Detach(sub)
}

func (c *wsSession) attached() (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, apperrors.New(apperrors.CodeCommandNotAttached, "attach to a session first")
	}
	return c.current, nil
}

func (c *wsSession) close() {
	c.detach()
	c.pumps.Wait()
}

func handleWSConn(conn *websocket.Conn, runtime Runtime) {
	defer func() {
		_ = conn.Close()
	}()

	viewerID := "viewer"
	submissionID := ""
	if request := conn.Request(); request != nil {
		if resolved := requestctx.ViewerIDFromContext(request.Context()); strings.TrimSpace(resolved) != "" {
			viewerID = resolved
		}
		submissionID = strings.TrimSpace(request.URL.Query().Get("session"))
	}
	peer := newWSPeer(conn)
	ws := newWSSession(viewerID, peer, runtime)
	defer ws.close()

	if submissionID != "" {
		if err := ws.attach(submissionID); err != nil {
			_ = writeWSError(peer, "", err)
			return
		}
	}

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", apperrors.New(apperrors.CodeCommandInvalidPayload, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			decoder = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, apperrors.New(apperrors.CodeCommandInvalidPayload, "payload too large"))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, frame.RequestID, apperrors.New(apperrors.CodeCommandRateLimited, "rate limit exceeded"))
			return
		}

		if err := handleFrame(ws, frame); err != nil {
			_ = writeWSError(peer, frame.RequestID, err)
		}
	}
}

func handleFrame(ws *wsSession, frame wsFrame) error {
	switch frame.Type {
	case frameHeartbeat:
		return ws.peer.writeFrame(wsFrame{
			Type:      framePong,
			RequestID: frame.RequestID,
			Payload:   mustJSON(pongPayload{ServerTime: time.Now().UTC().Format(time.RFC3339)}),
		})
	case frameAttach:
		var payload attachPayload
		if err := decodePayload(frame.Payload, &payload); err != nil {
			return err
		}
		return ws.attach(payload.SubmissionID)
	case frameDetach:
		ws.detach()
		return nil
	}

	sess, err := ws.attached()
	if err != nil {
		if isCommand(frame.Type) {
			return err
		}
		return unsupportedFrame(frame.Type)
	}

	switch frame.Type {
	case frameStart:
		var payload startPayload
		if err := decodePayload(frame.Payload, &payload); err != nil {
			return err
		}
		return sess.Start(session.StartInput{Idea: payload.Idea, CreativityScore: payload.CreativityScore})
	case frameSupplement:
		var payload supplementPayload
		if err := decodePayload(frame.Payload, &payload); err != nil {
			return err
		}
		return sess.Supplement(ws.viewerID, payload.Content)
	case frameReaction:
		return sess.Annotate(session.AnnotationReaction, ws.viewerID, frame.Payload)
	case frameSupport:
		return sess.Annotate(session.AnnotationSupport, ws.viewerID, frame.Payload)
	case framePrediction:
		return sess.Annotate(session.AnnotationPrediction, ws.viewerID, frame.Payload)
	default:
		return unsupportedFrame(frame.Type)
	}
}

func isCommand(frameType string) bool {
	switch frameType {
	case frameStart, frameSupplement, frameReaction, frameSupport, framePrediction:
		return true
	default:
		return false
	}
}

func unsupportedFrame(frameType string) error {
	return apperrors.WithMetadata(apperrors.CodeCommandUnsupported, "unsupported frame type", map[string]string{
		"type": frameType,
	})
}

func decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return apperrors.New(apperrors.CodeCommandInvalidPayload, "payload is required")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(apperrors.CodeCommandInvalidPayload, "invalid payload", err)
	}
	return nil
}

func writeWSError(peer *wsPeer, requestID string, err error) error {
	return peer.writeFrame(wsFrame{
		Type:      frameError,
		RequestID: requestID,
		Payload:   mustJSON(wsErrorEnvelope{Error: toWSError(err)}),
	})
}

func toWSError(err error) wsError {
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		log.Printf("bidding: command failed err=%v", err)
		return wsError{Code: apperrors.CodeUnknown.WireCode(), Message: "internal error"}
	}
	return wsError{
		Code:      domainErr.Code.WireCode(),
		Reason:    string(domainErr.Code),
		Message:   domainErr.Message,
		Retryable: domainErr.Code == apperrors.CodeCommandRateLimited,
		Details:   domainErr.Metadata,
	}
}

func writeHTTPError(w http.ResponseWriter, err error) {
	body := toWSError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.CodeOf(err).HTTPStatus())
	_ = json.NewEncoder(w).Encode(wsErrorEnvelope{Error: body})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("bidding: failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
