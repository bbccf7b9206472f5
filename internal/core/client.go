package core

// Client binds one transport session to an authenticated identity and the
// single project room it is admitted to. It is never persisted; rejoining
// requires a new connection.
type Client struct {
	ID        string
	UserID    int64
	Name      string
	ProjectID int64
	Events    chan *Event
}

// NewClient constructs an admitted client with an initialized event channel.
func NewClient(id string, userID int64, name string, projectID int64) *Client {
	return &Client{
		ID:        id,
		UserID:    userID,
		Name:      name,
		ProjectID: projectID,
		Events:    make(chan *Event, 16),
	}
}
