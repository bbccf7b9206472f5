package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabroom/collabroom-server/internal/assistant"
	"github.com/collabroom/collabroom-server/internal/auth"
	"github.com/collabroom/collabroom-server/internal/config"
	"github.com/collabroom/collabroom-server/internal/core"
	"github.com/collabroom/collabroom-server/internal/service/chat"
	"github.com/collabroom/collabroom-server/internal/store"
	"github.com/collabroom/collabroom-server/internal/store/sqlite"
)

// stubGenerator returns a fixed raw response for every call.
type stubGenerator struct {
	response string
}

func (g *stubGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	return g.response, nil
}

// testEnv hosts a fully wired server over an in-memory store.
type testEnv struct {
	ts        *httptest.Server
	store     store.Store
	jwtConfig *auth.JWTConfig
	hub       *core.Hub
	router    *chat.Service
}

func newTestEnv(t *testing.T, gen assistant.Generator) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	logger := zerolog.Nop()
	cfg := config.Default()
	cfg.Assistant.AttemptTimeout = time.Second
	cfg.Assistant.RetryBackoff = time.Millisecond

	if gen == nil {
		gen = &stubGenerator{response: `{"text": "stub", "fileTree": {}}`}
	}
	assistantService := assistant.NewService(gen, cfg.Assistant, &logger)

	hub := core.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := chat.NewService(st, hub, assistantService, &logger)
	server := NewServer(hub, router, authService, st, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:        ts,
		store:     st,
		jwtConfig: jwtConfig,
		hub:       hub,
		router:    router,
	}
}

// createUser seeds a user and returns it with a valid token.
func (e *testEnv) createUser(t *testing.T, username string) (*store.User, string) {
	t.Helper()

	user, err := e.store.CreateUser(context.Background(), username, "hash")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	token, err := auth.GenerateToken(e.jwtConfig, user.ID, user.Username)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return user, token
}

// createProject seeds a project owned by the given user.
func (e *testEnv) createProject(t *testing.T, name string, ownerID int64) *store.Project {
	t.Helper()

	project, err := e.store.CreateProject(context.Background(), name, ownerID)
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	return project
}

// wsURL builds the gateway URL with handshake query parameters.
func (e *testEnv) wsURL(projectID, token string) string {
	url := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	sep := "?"
	if projectID != "" {
		url += sep + "projectId=" + projectID
		sep = "&"
	}
	if token != "" {
		url += sep + "token=" + token
	}
	return url
}

// waitForMembers polls the room registry until it has n members.
func (e *testEnv) waitForMembers(t *testing.T, projectID int64, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(e.hub.Members(projectID)) == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %d never reached %d members, have %v", projectID, n, e.hub.Members(projectID))
}
