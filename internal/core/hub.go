package core

import "context"

// Hub owns the room registry. All join/leave/broadcast mutations go through
// its single Run goroutine, so rooms need no locking; the fan-out itself is
// in-memory and never blocks on storage or the network.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcasts chan broadcastOp
	members    chan membersOp
}

type broadcastOp struct {
	projectID int64
	event     *Event
	exclude   *Client
}

type membersOp struct {
	projectID int64
	reply     chan []string
}

// NewHub creates a new hub instance. Call Run before using it.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcasts: make(chan broadcastOp, 64),
		members:    make(chan membersOp),
	}
}

// Run processes hub operations until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	rooms := make(map[int64]*Room)
	joined := make(map[*Client]*Room)

	for {
		select {
		case client := <-h.register:
			room, ok := rooms[client.ProjectID]
			if !ok {
				room = NewRoom(client.ProjectID)
				rooms[client.ProjectID] = room
			}
			if room.AddClient(client) {
				joined[client] = room
			}

		case client := <-h.unregister:
			room, ok := joined[client]
			if !ok {
				// Already removed; leave is a no-op.
				continue
			}
			room.RemoveClient(client)
			delete(joined, client)
			close(client.Events)
			if room.Empty() {
				delete(rooms, room.ProjectID)
			}

		case op := <-h.broadcasts:
			if room, ok := rooms[op.projectID]; ok {
				room.Broadcast(op.event, op.exclude)
			}

		case op := <-h.members:
			var ids []string
			if room, ok := rooms[op.projectID]; ok {
				for client := range room.clients {
					ids = append(ids, client.ID)
				}
			}
			op.reply <- ids

		case <-ctx.Done():
			return
		}
	}
}

// RegisterClient admits a client into its project's room.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient removes a client from its room and closes its event
// channel. Safe to call for clients that were never registered.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Broadcast delivers an event to every client currently in the project's
// room, except an optional excluded sender.
func (h *Hub) Broadcast(projectID int64, event *Event, exclude *Client) {
	h.broadcasts <- broadcastOp{projectID: projectID, event: event, exclude: exclude}
}

// Members returns a snapshot of connection IDs currently in the room.
func (h *Hub) Members(projectID int64) []string {
	reply := make(chan []string, 1)
	h.members <- membersOp{projectID: projectID, reply: reply}
	return <-reply
}
