// Package chat routes inbound message events: persist, broadcast, and
// optionally dispatch the assistant. Persistence happens on the caller's
// goroutine so one sender's messages keep their order; assistant invocations
// run on their own goroutines and rejoin the same persist-then-broadcast
// pipeline when done.
package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/collabroom/collabroom-server/internal/assistant"
	"github.com/collabroom/collabroom-server/internal/core"
	"github.com/collabroom/collabroom-server/internal/store"
)

// Service orchestrates message handling for admitted connections.
type Service struct {
	store     store.MessageStore
	hub       *core.Hub
	assistant *assistant.Service
	log       *zerolog.Logger

	wg sync.WaitGroup
}

// NewService creates a message router.
func NewService(messages store.MessageStore, hub *core.Hub, ai *assistant.Service, logger *zerolog.Logger) *Service {
	return &Service{
		store:     messages,
		hub:       hub,
		assistant: ai,
		log:       logger,
	}
}

// HandleMessage processes one inbound message event from an admitted client:
// append to the store, broadcast to the other room members, and dispatch the
// assistant when the message is assistant-directed. A failed append aborts
// the event; nothing is broadcast for it except an in-room error notice.
func (s *Service) HandleMessage(ctx context.Context, client *core.Client, text string) {
	msg := &store.Message{
		ProjectID: client.ProjectID,
		SenderID:  &client.UserID,
		Body:      text,
		Kind:      store.MessageKindUser,
	}

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		s.log.Error().Err(err).Int64("project_id", client.ProjectID).Msg("append message")
		s.hub.Broadcast(client.ProjectID, &core.Event{
			Kind:  core.EventError,
			Error: core.NewCoreError(core.ErrCodePersistenceFailed, "message could not be saved"),
		}, nil)
		return
	}

	s.hub.Broadcast(client.ProjectID, &core.Event{
		Kind: core.EventRoomMessage,
		Message: core.Message{
			ID:        msg.ID,
			ProjectID: msg.ProjectID,
			From:      client.Name,
			Text:      msg.Body,
			CreatedAt: msg.CreatedAt,
		},
	}, client)

	if s.assistant.Triggered(msg.Body, msg.Kind) {
		s.dispatchAssistant(ctx, client.ProjectID, s.assistant.Prompt(msg.Body))
	}
}

// dispatchAssistant invokes the assistant without blocking message handling.
// The reply outlives the triggering connection, so the task detaches from the
// connection's cancellation.
func (s *Service) dispatchAssistant(ctx context.Context, projectID int64, prompt string) {
	taskCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		result := s.assistant.Invoke(taskCtx, prompt)

		reply := &store.Message{
			ProjectID: projectID,
			SenderID:  nil,
			Body:      result.Text,
			Kind:      store.MessageKindAssistant,
		}
		if err := s.store.AppendMessage(taskCtx, reply); err != nil {
			s.log.Error().Err(err).Int64("project_id", projectID).Msg("append assistant reply")
			// Broadcast-only notice so the room is not left waiting.
			s.hub.Broadcast(projectID, &core.Event{
				Kind:  core.EventAssistantMessage,
				Reply: assistant.Fallback(),
				From:  s.assistant.Name(),
			}, nil)
			return
		}

		// Assistant replies go to the full room, original sender included.
		s.hub.Broadcast(projectID, &core.Event{
			Kind:  core.EventAssistantMessage,
			Reply: result,
			From:  s.assistant.Name(),
		}, nil)
	}()
}

// Wait blocks until all in-flight assistant dispatches complete. Used for
// graceful shutdown and tests.
func (s *Service) Wait() {
	s.wg.Wait()
}
