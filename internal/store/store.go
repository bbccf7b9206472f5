package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an insert collides with a unique record.
var ErrAlreadyExists = errors.New("already exists")

// ErrPersistence wraps storage-level append failures.
var ErrPersistence = errors.New("persistence error")

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Project represents a collaborative workspace. Its set of members is the
// authoritative list of identities allowed into the project's chat room.
type Project struct {
	ID        int64
	Name      string
	OwnerID   int64
	CreatedAt time.Time
}

// MessageKind distinguishes human messages from assistant replies.
type MessageKind string

const (
	MessageKindUser      MessageKind = "user"
	MessageKindAssistant MessageKind = "assistant"
)

// Message represents a persisted chat message. SenderID is nil exactly when
// the message is assistant-authored.
type Message struct {
	ID        int64
	ProjectID int64
	SenderID  *int64
	Body      string
	Kind      MessageKind
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// ProjectStore handles project persistence and membership lookups.
type ProjectStore interface {
	// CreateProject creates a project and adds the owner as its first member.
	CreateProject(ctx context.Context, name string, ownerID int64) (*Project, error)

	// GetProjectByID retrieves a project by ID. Returns ErrNotFound when the
	// project does not exist.
	GetProjectByID(ctx context.Context, id int64) (*Project, error)

	// ListProjects lists projects the user is a member of.
	ListProjects(ctx context.Context, userID int64) ([]*Project, error)

	// AddMember adds a user to a project. Idempotent.
	AddMember(ctx context.Context, projectID, userID int64) error

	// IsMember checks whether the user is a member of the project.
	IsMember(ctx context.Context, projectID, userID int64) (bool, error)

	// ListMembers lists user IDs of all project members.
	ListMembers(ctx context.Context, projectID int64) ([]int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage persists a message, assigning its ID and CreatedAt.
	// Failures wrap ErrPersistence.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessagesByProject returns all messages of a project ordered by
	// creation, oldest first. One-shot snapshot used for history replay.
	ListMessagesByProject(ctx context.Context, projectID int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ProjectStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
