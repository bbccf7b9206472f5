package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/collabroom/collabroom-server/internal/store"
)

// ProjectHandlers provides HTTP handlers for project and history endpoints.
type ProjectHandlers struct {
	store         store.Store
	assistantName string
	log           *zerolog.Logger
}

// NewProjectHandlers creates a new project handlers instance.
func NewProjectHandlers(st store.Store, assistantName string, logger *zerolog.Logger) *ProjectHandlers {
	return &ProjectHandlers{
		store:         st,
		assistantName: assistantName,
		log:           logger,
	}
}

// CreateProjectRequest represents the create project request body.
type CreateProjectRequest struct {
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// AddMemberRequest represents the add member request body.
type AddMemberRequest struct {
	Username string `json:"username" binding:"required"`
}

// ProjectResponse represents a project in API responses.
type ProjectResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	OwnerID   int64  `json:"owner_id"`
	CreatedAt string `json:"created_at"`
}

// MessageResponse represents a persisted message in history responses.
type MessageResponse struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

// CreateProject handles project creation. The creator becomes the first member.
// POST /api/projects
func (h *ProjectHandlers) CreateProject(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create project request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	project, err := h.store.CreateProject(c.Request.Context(), req.Name, userID)
	if err != nil {
		h.log.Error().Err(err).Str("project_name", req.Name).Msg("failed to create project")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("project_name", project.Name).Int64("project_id", project.ID).Int64("owner_id", userID).Msg("project created")
	c.JSON(http.StatusCreated, projectResponse(project))
}

// ListProjects handles listing the requester's projects.
// GET /api/projects
func (h *ProjectHandlers) ListProjects(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	projects, err := h.store.ListProjects(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list projects")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ProjectResponse, 0, len(projects))
	for _, project := range projects {
		response = append(response, projectResponse(project))
	}
	c.JSON(http.StatusOK, response)
}

// AddMember adds a user to a project by username. Only existing members may
// add new ones.
// POST /api/projects/:id/members
func (h *ProjectHandlers) AddMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	projectID, protoOK := h.projectParam(c)
	if !protoOK {
		return
	}

	member, err := h.store.IsMember(c.Request.Context(), projectID, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("membership check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a project member"})
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, err := h.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("user lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if err := h.store.AddMember(c.Request.Context(), projectID, user.ID); err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Int64("user_id", user.ID).Msg("failed to add member")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ListMessages returns the project's message history in creation order.
// Requires the requester to be a current project member, a stricter bar than
// socket admission.
// GET /api/projects/:id/messages
func (h *ProjectHandlers) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	projectID, protoOK := h.projectParam(c)
	if !protoOK {
		return
	}

	member, err := h.store.IsMember(c.Request.Context(), projectID, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("membership check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a project member"})
		return
	}

	messages, err := h.store.ListMessagesByProject(c.Request.Context(), projectID)
	if err != nil {
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	names := map[int64]string{}
	for _, msg := range messages {
		sender := h.assistantName
		if msg.SenderID != nil {
			name, cached := names[*msg.SenderID]
			if !cached {
				user, err := h.store.GetUserByID(c.Request.Context(), *msg.SenderID)
				if err != nil {
					name = "unknown"
				} else {
					name = user.Username
				}
				names[*msg.SenderID] = name
			}
			sender = name
		}
		response = append(response, MessageResponse{
			ID:        msg.ID,
			Text:      msg.Body,
			Sender:    sender,
			Kind:      string(msg.Kind),
			CreatedAt: msg.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, response)
}

// projectParam parses and validates the :id path parameter, verifying the
// project exists. Writes the error response itself on failure.
func (h *ProjectHandlers) projectParam(c *gin.Context) (int64, bool) {
	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || projectID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid project id"})
		return 0, false
	}

	if _, err := h.store.GetProjectByID(c.Request.Context(), projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "project not found"})
			return 0, false
		}
		h.log.Error().Err(err).Int64("project_id", projectID).Msg("project lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return 0, false
	}

	return projectID, true
}

func projectResponse(project *store.Project) ProjectResponse {
	return ProjectResponse{
		ID:        project.ID,
		Name:      project.Name,
		OwnerID:   project.OwnerID,
		CreatedAt: project.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
