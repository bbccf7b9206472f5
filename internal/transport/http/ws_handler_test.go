package http

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/collabroom/collabroom-server/internal/auth"
	"github.com/collabroom/collabroom-server/internal/proto"
)

type outboundEnvelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func dialWS(t *testing.T, ctx context.Context, url string) (*websocket.Conn, int, error) {
	t.Helper()

	conn, resp, err := websocket.Dial(ctx, url, nil)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	}
	return conn, status, err
}

func sendMsg(t *testing.T, ctx context.Context, conn *websocket.Conn, text, sender string) {
	t.Helper()

	payload, _ := json.Marshal(proto.MsgData{Text: text, Sender: sender})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeMsg, Data: payload}); err != nil {
		t.Fatalf("write inbound: %v", err)
	}
}

func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) outboundEnvelope {
	t.Helper()

	var envelope outboundEnvelope
	if err := wsjson.Read(ctx, conn, &envelope); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	return envelope
}

func TestWSAdmissionRejectsMissingProjectID(t *testing.T) {
	env := newTestEnv(t, nil)
	_, token := env.createUser(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, status, err := dialWS(t, ctx, env.wsURL("", token))
	if err == nil {
		t.Fatalf("expected handshake rejection")
	}
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestWSAdmissionRejectsMalformedProjectID(t *testing.T) {
	env := newTestEnv(t, nil)
	_, token := env.createUser(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, status, err := dialWS(t, ctx, env.wsURL("not-a-number", token))
	if err == nil {
		t.Fatalf("expected handshake rejection")
	}
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestWSAdmissionRejectsUnknownProject(t *testing.T) {
	env := newTestEnv(t, nil)
	_, token := env.createUser(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, status, err := dialWS(t, ctx, env.wsURL("999", token))
	if err == nil {
		t.Fatalf("expected handshake rejection")
	}
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}

	// No broadcast manager state may be left behind.
	if members := env.hub.Members(999); len(members) != 0 {
		t.Fatalf("expected no room state, got %v", members)
	}
}

func TestWSAdmissionRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t, nil)
	user, _ := env.createUser(t, "alice")
	project := env.createProject(t, "orbit", user.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, status, err := dialWS(t, ctx, env.wsURL(strconv.FormatInt(project.ID, 10), ""))
	if err == nil {
		t.Fatalf("expected handshake rejection")
	}
	if status != 401 {
		t.Fatalf("expected 401, got %d", status)
	}
	if members := env.hub.Members(project.ID); len(members) != 0 {
		t.Fatalf("expected no room state, got %v", members)
	}
}

func TestWSAdmissionRejectsInvalidAndExpiredTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	user, _ := env.createUser(t, "alice")
	project := env.createProject(t, "orbit", user.ID)
	projectID := strconv.FormatInt(project.ID, 10)

	expiredCfg := &auth.JWTConfig{
		Secret:   env.jwtConfig.Secret,
		Issuer:   env.jwtConfig.Issuer,
		Audience: env.jwtConfig.Audience,
		TTL:      -time.Minute,
	}
	expired, err := auth.GenerateToken(expiredCfg, user.ID, user.Username)
	if err != nil {
		t.Fatalf("generate expired token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, token := range []string{"garbage", expired} {
		_, status, err := dialWS(t, ctx, env.wsURL(projectID, token))
		if err == nil {
			t.Fatalf("expected handshake rejection for token %q", token)
		}
		if status != 401 {
			t.Fatalf("expected 401 for token %q, got %d", token, status)
		}
	}

	if members := env.hub.Members(project.ID); len(members) != 0 {
		t.Fatalf("expected no room state, got %v", members)
	}
}

func TestWSAdmissionSucceedsAndJoinsRoomOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	user, token := env.createUser(t, "alice")
	project := env.createProject(t, "orbit", user.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := dialWS(t, ctx, env.wsURL(strconv.FormatInt(project.ID, 10), token))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	env.waitForMembers(t, project.ID, 1)
}

func TestWSDisconnectLeavesRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	user, token := env.createUser(t, "alice")
	project := env.createProject(t, "orbit", user.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dialWS(t, ctx, env.wsURL(strconv.FormatInt(project.ID, 10), token))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	env.waitForMembers(t, project.ID, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	env.waitForMembers(t, project.ID, 0)
}

func TestWSRoomScenarioWithAssistant(t *testing.T) {
	gen := &stubGenerator{response: `{"text": "summary of the plan", "fileTree": {}}`}
	env := newTestEnv(t, gen)

	alice, aliceToken := env.createUser(t, "alice")
	_, bobToken := env.createUser(t, "bob")
	project := env.createProject(t, "orbit", alice.ID)
	projectID := strconv.FormatInt(project.ID, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connA, _, err := dialWS(t, ctx, env.wsURL(projectID, aliceToken))
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	connB, _, err := dialWS(t, ctx, env.wsURL(projectID, bobToken))
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	env.waitForMembers(t, project.ID, 2)

	// A sends a plain message; only B receives it.
	sendMsg(t, ctx, connA, "hello", "alice")

	envelope := readEnvelope(t, ctx, connB)
	if envelope.Type != proto.OutboundTypeEvent || envelope.Event != proto.EventNameMessage {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	var event proto.EventMessage
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	if event.Text != "hello" || event.Sender != "alice" {
		t.Fatalf("unexpected event payload: %+v", event)
	}

	// A asks the assistant; both A and B eventually receive the reply.
	sendMsg(t, ctx, connA, "@ai summarize", "alice")

	for name, conn := range map[string]*websocket.Conn{"alice": connA, "bob": connB} {
		envelope := waitForEvent(t, ctx, conn, proto.EventNameAssistant)

		var reply struct {
			Text struct {
				Text     string         `json:"text"`
				FileTree map[string]any `json:"fileTree"`
			} `json:"text"`
			Sender string `json:"sender"`
		}
		if err := json.Unmarshal(envelope.Data, &reply); err != nil {
			t.Fatalf("%s: unmarshal assistant data: %v", name, err)
		}
		if reply.Sender != "Bevin" {
			t.Fatalf("%s: unexpected assistant sender %q", name, reply.Sender)
		}
		if reply.Text.Text != "summary of the plan" {
			t.Fatalf("%s: unexpected assistant text %q", name, reply.Text.Text)
		}
	}
}

func TestWSEmptyTextRejectedWithProtocolError(t *testing.T) {
	env := newTestEnv(t, nil)
	user, token := env.createUser(t, "alice")
	project := env.createProject(t, "orbit", user.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dialWS(t, ctx, env.wsURL(strconv.FormatInt(project.ID, 10), token))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	sendMsg(t, ctx, conn, "   ", "alice")

	envelope := readEnvelope(t, ctx, conn)
	if envelope.Type != proto.OutboundTypeError || envelope.Error == nil || envelope.Error.Code != "bad_request" {
		t.Fatalf("expected bad_request error, got %+v", envelope)
	}
}

// waitForEvent reads envelopes until one with the given event name arrives.
func waitForEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, eventName string) outboundEnvelope {
	t.Helper()

	for i := 0; i < 10; i++ {
		envelope := readEnvelope(t, ctx, conn)
		if envelope.Event == eventName {
			return envelope
		}
	}
	t.Fatalf("event %q not received", eventName)
	return outboundEnvelope{}
}
