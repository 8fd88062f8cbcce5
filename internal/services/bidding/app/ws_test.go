package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/bidstage/internal/random"
	"github.com/louisbranch/bidstage/internal/services/bidding/dialogue"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/louisbranch/bidstage/internal/services/bidding/session"
	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
)

type wsTestFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsTestErrorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

type silentGenerator struct{}

func (silentGenerator) Generate(context.Context, dialogue.Context) dialogue.Result {
	return dialogue.Result{}
}

func newTestRuntime(t *testing.T) *session.Runtime {
	t.Helper()
	rt, err := session.NewRuntime(session.RuntimeConfig{
		Generator: silentGenerator{},
		Roster:    persona.Default(),
		Options: session.Options{
			Durations: session.Durations{
				stage.Warmup:     5,
				stage.Discussion: 5,
				stage.Bidding:    5,
				stage.Prediction: 5,
				stage.Result:     5,
			},
			Probabilities: session.Probabilities{},
			ManualTicks:   true,
			Schedule:      func(time.Duration, func()) {},
		},
		NewRandom: func() (random.Source, error) { return random.FromSeed(3), nil },
	})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func newTestServer(t *testing.T, rt *session.Runtime, verifier *TokenVerifier) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(rt, verifier))
	t.Cleanup(srv.Close)
	return srv
}

func dialWSWithServerURL(httpURL string, path string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + path
	return websocket.Dial(wsURL, "", httpURL)
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, err := dialWSWithServerURL(srv.URL, path)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wsTestFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got wsTestFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func readFrameOfType(t *testing.T, conn *websocket.Conn, frameType string) wsTestFrame {
	t.Helper()
	for i := 0; i < 50; i++ {
		frame := readFrame(t, conn)
		if frame.Type == frameType {
			return frame
		}
	}
	t.Fatalf("no %s frame received", frameType)
	return wsTestFrame{}
}

func readError(t *testing.T, conn *websocket.Conn) wsTestErrorPayload {
	t.Helper()
	frame := readFrameOfType(t, conn, frameError)
	var payload wsTestErrorPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return payload
}

func TestUpEndpoint(t *testing.T) {
	srv := newTestServer(t, newTestRuntime(t), nil)
	resp, err := http.Get(srv.URL + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAttachSendsInitSnapshot(t *testing.T) {
	srv := newTestServer(t, newTestRuntime(t), nil)
	conn := dialWS(t, srv, "/ws?session=sub-1&viewer=ana")

	frame := readFrame(t, conn)
	if frame.Type != session.EventSessionInit {
		t.Fatalf("first frame = %s", frame.Type)
	}
	var init session.InitPayload
	if err := json.Unmarshal(frame.Payload, &init); err != nil {
		t.Fatalf("decode init: %v", err)
	}
	if init.SubmissionID != "sub-1" || init.Phase != "warmup" || init.Started {
		t.Fatalf("init = %+v", init)
	}
}

func TestAttachFrameAndStart(t *testing.T) {
	rt := newTestRuntime(t)
	srv := newTestServer(t, rt, nil)
	conn := dialWS(t, srv, "/ws")

	writeFrame(t, conn, map[string]any{"type": "session.attach", "payload": map[string]any{"submissionId": "sub-2"}})
	if frame := readFrame(t, conn); frame.Type != session.EventSessionInit {
		t.Fatalf("frame = %s", frame.Type)
	}

	writeFrame(t, conn, map[string]any{"type": "start", "payload": map[string]any{"idea": "校园跑腿", "creativityScore": 70}})
	started := readFrameOfType(t, conn, session.EventStageStarted)
	if !strings.Contains(string(started.Payload), `"phase":"warmup"`) {
		t.Fatalf("stage.started payload = %s", started.Payload)
	}

	sess, ok := rt.Lookup("sub-2")
	if !ok {
		t.Fatal("session not created")
	}
	sess.Tick()
	timer := readFrameOfType(t, conn, session.EventTimerUpdate)
	if !strings.Contains(string(timer.Payload), `"remainingSeconds":4`) {
		t.Fatalf("timer payload = %s", timer.Payload)
	}
}

func TestHeartbeatPong(t *testing.T) {
	srv := newTestServer(t, newTestRuntime(t), nil)
	conn := dialWS(t, srv, "/ws")

	writeFrame(t, conn, map[string]any{"type": "heartbeat", "request_id": "hb-1"})
	frame := readFrame(t, conn)
	if frame.Type != framePong || frame.RequestID != "hb-1" {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestCommandBeforeAttachFails(t *testing.T) {
	srv := newTestServer(t, newTestRuntime(t), nil)
	conn := dialWS(t, srv, "/ws")

	writeFrame(t, conn, map[string]any{"type": "user.supplement", "payload": map[string]any{"content": "更多细节"}})
	payload := readError(t, conn)
	if payload.Error.Code != "FAILED_PRECONDITION" || payload.Error.Reason != "COMMAND_NOT_ATTACHED" {
		t.Fatalf("error = %+v", payload.Error)
	}
}

func TestUnsupportedFrameType(t *testing.T) {
	srv := newTestServer(t, newTestRuntime(t), nil)
	conn := dialWS(t, srv, "/ws?session=sub-1")
	readFrame(t, conn)

	writeFrame(t, conn, map[string]any{"type": "bid.place", "payload": map[string]any{"amount": 500}})
	payload := readError(t, conn)
	if payload.Error.Code != "INVALID_ARGUMENT" || payload.Error.Reason != "COMMAND_UNSUPPORTED" {
		t.Fatalf("error = %+v", payload.Error)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	srv := newTestServer(t, newTestRuntime(t), nil)
	conn := dialWS(t, srv, "/ws?session=sub-1")
	readFrame(t, conn)

	writeFrame(t, conn, map[string]any{"type": "user.supplement", "payload": map[string]any{"content": strings.Repeat("a", maxFramePayloadBytes)}})
	payload := readError(t, conn)
	if payload.Error.Message != "payload too large" {
		t.Fatalf("error = %+v", payload.Error)
	}
}

func TestAnnotationBroadcastToOtherViewers(t *testing.T) {
	srv := newTestServer(t, newTestRuntime(t), nil)
	a := dialWS(t, srv, "/ws?session=sub-3&viewer=a")
	b := dialWS(t, srv, "/ws?session=sub-3&viewer=b")
	readFrame(t, a)
	readFrame(t, b)

	writeFrame(t, a, map[string]any{"type": "user.support", "payload": map[string]any{"personaId": "artistic-lin"}})
	frame := readFrameOfType(t, b, session.EventSupportReceived)
	var payload session.AnnotationPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode annotation: %v", err)
	}
	if payload.ViewerID != "a" || !strings.Contains(string(payload.Data), "artistic-lin") {
		t.Fatalf("annotation = %+v", payload)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	rt := newTestRuntime(t)
	srv := newTestServer(t, rt, nil)
	sess, err := rt.Session("sub-4")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := sess.Start(session.StartInput{Idea: "二手书漂流"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := http.Get(srv.URL + "/sessions/sub-4/snapshot")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.SubmissionID != "sub-4" || snap.Idea != "二手书漂流" || !snap.Started {
		t.Fatalf("snapshot = %+v", snap)
	}

	missing, err := http.Get(srv.URL + "/sessions/nope/snapshot")
	if err != nil {
		t.Fatalf("get missing snapshot: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", missing.StatusCode)
	}
}

func TestWebSocketRequiresValidToken(t *testing.T) {
	verifier, err := NewTokenVerifier("test-secret", nil)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	srv := newTestServer(t, newTestRuntime(t), verifier)

	if _, err := dialWSWithServerURL(srv.URL, "/ws?session=sub-1"); err == nil {
		t.Fatal("expected dial without token to fail")
	}

	other, _ := verifier.Issue("viewer-7", "sub-other", time.Minute)
	if _, err := dialWSWithServerURL(srv.URL, "/ws?session=sub-1&token="+other); err == nil {
		t.Fatal("expected dial with token for another submission to fail")
	}

	token, err := verifier.Issue("viewer-7", "sub-1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	conn := dialWS(t, srv, "/ws?session=sub-1&token="+token)
	if frame := readFrame(t, conn); frame.Type != session.EventSessionInit {
		t.Fatalf("frame = %s", frame.Type)
	}

	writeFrame(t, conn, map[string]any{"type": "user.reaction", "payload": map[string]any{"emoji": "👏"}})
	reaction := readFrameOfType(t, conn, session.EventReactionReceived)
	if !strings.Contains(string(reaction.Payload), `"viewerId":"viewer-7"`) {
		t.Fatalf("reaction payload = %s", reaction.Payload)
	}
}

func TestRateLimitClosesConnection(t *testing.T) {
	srv := newTestServer(t, newTestRuntime(t), nil)
	conn := dialWS(t, srv, "/ws")

	for i := 0; i <= maxFramesPerSecond; i++ {
		writeFrame(t, conn, map[string]any{"type": "heartbeat"})
	}
	payload := readError(t, conn)
	if payload.Error.Code != "RESOURCE_EXHAUSTED" {
		t.Fatalf("error = %+v", payload.Error)
	}
}
