package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/collabroom/collabroom-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS projects (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	owner_id   INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (owner_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS project_members (
	project_id INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	joined_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (project_id, user_id),
	FOREIGN KEY (project_id) REFERENCES projects(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	sender_id  INTEGER,
	body       TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'user' CHECK (kind IN ('user', 'assistant')),
	created_at DATETIME NOT NULL,
	FOREIGN KEY (project_id) REFERENCES projects(id),
	FOREIGN KEY (sender_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_project_members_user ON project_members(user_id);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== ProjectStore implementation ====

// CreateProject creates a project and adds the owner as its first member.
func (s *SQLiteStore) CreateProject(ctx context.Context, name string, ownerID int64) (*store.Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO projects (name, owner_id)
		VALUES (?, ?)
	`, name, ownerID)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	projectID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id)
		VALUES (?, ?)
	`, projectID, ownerID); err != nil {
		return nil, fmt.Errorf("add owner to members: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetProjectByID(ctx, projectID)
}

// GetProjectByID retrieves a project by ID.
func (s *SQLiteStore) GetProjectByID(ctx context.Context, id int64) (*store.Project, error) {
	query := `
		SELECT id, name, owner_id, created_at
		FROM projects
		WHERE id = ?
	`
	var project store.Project
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&project.ID,
		&project.Name,
		&project.OwnerID,
		&project.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query project: %w", err)
	}

	return &project, nil
}

// ListProjects lists projects the user is a member of.
func (s *SQLiteStore) ListProjects(ctx context.Context, userID int64) ([]*store.Project, error) {
	query := `
		SELECT p.id, p.name, p.owner_id, p.created_at
		FROM projects p
		JOIN project_members pm ON p.id = pm.project_id
		WHERE pm.user_id = ?
		ORDER BY p.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []*store.Project
	for rows.Next() {
		var project store.Project
		if err := rows.Scan(&project.ID, &project.Name, &project.OwnerID, &project.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, &project)
	}

	return projects, rows.Err()
}

// AddMember adds a user to a project. Idempotent.
func (s *SQLiteStore) AddMember(ctx context.Context, projectID, userID int64) error {
	query := `
		INSERT OR IGNORE INTO project_members (project_id, user_id)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, projectID, userID); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// IsMember checks whether the user is a member of the project.
func (s *SQLiteStore) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	query := `
		SELECT 1 FROM project_members
		WHERE project_id = ? AND user_id = ?
	`
	var one int
	err := s.db.QueryRowContext(ctx, query, projectID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// ListMembers lists user IDs of all project members.
func (s *SQLiteStore) ListMembers(ctx context.Context, projectID int64) ([]int64, error) {
	query := `
		SELECT user_id FROM project_members
		WHERE project_id = ?
		ORDER BY joined_at
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, id)
	}

	return members, rows.Err()
}

// ==== MessageStore implementation ====

// AppendMessage persists a message, assigning its ID and CreatedAt.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (project_id, sender_id, body, kind, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	var senderID sql.NullInt64
	if msg.SenderID != nil {
		senderID = sql.NullInt64{Int64: *msg.SenderID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query, msg.ProjectID, senderID, msg.Body, string(msg.Kind), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w: %w", store.ErrPersistence, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w: %w", store.ErrPersistence, err)
	}

	msg.ID = id
	return nil
}

// ListMessagesByProject returns all messages of a project, oldest first.
func (s *SQLiteStore) ListMessagesByProject(ctx context.Context, projectID int64) ([]*store.Message, error) {
	query := `
		SELECT id, project_id, sender_id, body, kind, created_at
		FROM messages
		WHERE project_id = ?
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var senderID sql.NullInt64
		if err := rows.Scan(&msg.ID, &msg.ProjectID, &senderID, &msg.Body, &msg.Kind, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if senderID.Valid {
			msg.SenderID = &senderID.Int64
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}
