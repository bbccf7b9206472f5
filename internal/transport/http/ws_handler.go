package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/collabroom/collabroom-server/internal/auth"
	"github.com/collabroom/collabroom-server/internal/core"
	"github.com/collabroom/collabroom-server/internal/proto"
	"github.com/collabroom/collabroom-server/internal/service/chat"
	"github.com/collabroom/collabroom-server/internal/store"
)

// WSHandler admits connections into project rooms and bridges them to the
// chat router. Admission checks run before the WebSocket upgrade, so a
// rejected handshake leaves no partial room state behind.
type WSHandler struct {
	hub       *core.Hub
	router    *chat.Service
	auth      *auth.Service
	projects  store.ProjectStore
	rateLimit int
	log       *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, router *chat.Service, authService *auth.Service, projects store.ProjectStore, rateLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:       hub,
		router:    router,
		auth:      authService,
		projects:  projects,
		rateLimit: rateLimit,
		log:       logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	// Admission order: projectId shape, project existence, credential
	// presence, credential validity. Any failure terminates the handshake.
	rawProjectID := r.URL.Query().Get("projectId")
	if rawProjectID == "" {
		stdhttp.Error(w, "projectId is required", stdhttp.StatusBadRequest)
		return
	}
	projectID, err := strconv.ParseInt(rawProjectID, 10, 64)
	if err != nil || projectID <= 0 {
		stdhttp.Error(w, "invalid projectId", stdhttp.StatusBadRequest)
		return
	}

	if _, err := h.projects.GetProjectByID(ctx, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			stdhttp.Error(w, "project not found", stdhttp.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("project lookup failed")
		stdhttp.Error(w, "internal server error", stdhttp.StatusInternalServerError)
		return
	}

	token := bearerToken(r)
	if token == "" {
		stdhttp.Error(w, "authentication required", stdhttp.StatusUnauthorized)
		return
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(uuid.NewString(), claims.UserID, claims.Username, projectID)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	h.log.Info().
		Str("client_id", client.ID).
		Str("user", client.Name).
		Int64("project_id", projectID).
		Msg("connection admitted")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.rateLimit)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		protoErr := h.handleInbound(ctx, client, inbound, limiter)
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) handleInbound(ctx context.Context, client *core.Client, inbound proto.Inbound, limiter *rateLimiter) *proto.Error {
	switch inbound.Type {
	case proto.InboundTypeMsg:
		msg, protoErr := decodeMsgData(inbound.Data)
		if protoErr != nil {
			return protoErr
		}
		if !limiter.allow() {
			return &proto.Error{Code: "rate_limited", Msg: "too many messages"}
		}
		// Sequential handling here preserves this sender's message order.
		h.router.HandleMessage(ctx, client, msg.Text)
		return nil
	default:
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// bearerToken extracts the credential from the Authorization header or the
// token query parameter.
func bearerToken(r *stdhttp.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}
