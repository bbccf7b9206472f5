package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/collabroom/collabroom-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, username string) *store.User {
	t.Helper()

	user, err := s.CreateUser(context.Background(), username, "hash")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := newTestStore(t)

	seedUser(t, s, "alice")

	_, err := s.CreateUser(context.Background(), "alice", "hash")
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestProjectLifecycleAndMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	project, err := s.CreateProject(ctx, "orbit", alice.ID)
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if project.OwnerID != alice.ID {
		t.Fatalf("unexpected owner: %d", project.OwnerID)
	}

	// Owner becomes the first member.
	member, err := s.IsMember(ctx, project.ID, alice.ID)
	if err != nil || !member {
		t.Fatalf("owner should be a member, got member=%v err=%v", member, err)
	}

	member, err = s.IsMember(ctx, project.ID, bob.ID)
	if err != nil || member {
		t.Fatalf("bob should not be a member yet, got member=%v err=%v", member, err)
	}

	if err := s.AddMember(ctx, project.ID, bob.ID); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	// Idempotent.
	if err := s.AddMember(ctx, project.ID, bob.ID); err != nil {
		t.Fatalf("repeated AddMember failed: %v", err)
	}

	members, err := s.ListMembers(ctx, project.ID)
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}

	projects, err := s.ListProjects(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != project.ID {
		t.Fatalf("unexpected projects for bob: %+v", projects)
	}
}

func TestGetProjectByIDNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProjectByID(context.Background(), 404)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendAndListMessagesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	project, err := s.CreateProject(ctx, "orbit", alice.ID)
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	before := time.Now().UTC().Add(-time.Second)

	first := &store.Message{
		ProjectID: project.ID,
		SenderID:  &alice.ID,
		Body:      "hello",
		Kind:      store.MessageKindUser,
	}
	if err := s.AppendMessage(ctx, first); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("expected assigned ID")
	}
	if first.CreatedAt.Before(before) {
		t.Fatalf("CreatedAt %v before append call", first.CreatedAt)
	}

	second := &store.Message{
		ProjectID: project.ID,
		SenderID:  nil,
		Body:      "an answer",
		Kind:      store.MessageKindAssistant,
	}
	if err := s.AppendMessage(ctx, second); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	messages, err := s.ListMessagesByProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("ListMessagesByProject failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	got := messages[0]
	if got.Body != "hello" || got.Kind != store.MessageKindUser {
		t.Fatalf("unexpected first message: %+v", got)
	}
	if got.SenderID == nil || *got.SenderID != alice.ID {
		t.Fatalf("unexpected sender: %+v", got.SenderID)
	}

	reply := messages[1]
	if reply.Kind != store.MessageKindAssistant || reply.SenderID != nil {
		t.Fatalf("unexpected assistant message: %+v", reply)
	}
}

func TestListMessagesIsolatedPerProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	p1, _ := s.CreateProject(ctx, "one", alice.ID)
	p2, _ := s.CreateProject(ctx, "two", alice.ID)

	for i, projectID := range []int64{p1.ID, p2.ID, p1.ID} {
		msg := &store.Message{
			ProjectID: projectID,
			SenderID:  &alice.ID,
			Body:      "m",
			Kind:      store.MessageKindUser,
		}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	messages, err := s.ListMessagesByProject(ctx, p1.ID)
	if err != nil {
		t.Fatalf("ListMessagesByProject failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages in project one, got %d", len(messages))
	}
}
