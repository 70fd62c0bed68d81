package broadcaster

import (
	"errors"
	"sync"

	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var ErrConnectionNotFound = errors.New("connection not found")

type Registry interface {
	Connect(connection *Connection)
	Join(conversationId string, connectionId string) error
	Leave(conversationId string, connectionId string)
	Disconnect(connectionId string) []string
	Broadcast(conversationId string, frame protocol.Frame, excludeConnectionId string)
	Members(conversationId string) []string
	Conversations(connectionId string) []string
	Stats() Stats
	CloseAll() int
}

type Stats struct {
	Connections   int `json:"connections"`
	Authenticated int `json:"authenticated"`
	Rooms         int `json:"rooms"`
}

type InMemoryRegistry struct {
	logger *zap.Logger
	mu     sync.RWMutex

	connections               map[string]*Connection
	connectionsByConversation map[string]map[string]struct{}
	conversationsByConnection map[string]map[string]struct{}
}

func NewInMemoryRegistry(
	logger *zap.Logger,
) *InMemoryRegistry {
	return &InMemoryRegistry{
		logger:                    logger,
		connections:               make(map[string]*Connection),
		connectionsByConversation: make(map[string]map[string]struct{}),
		conversationsByConnection: make(map[string]map[string]struct{}),
	}
}

func (r *InMemoryRegistry) Connect(connection *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[connection.Id] = connection
	r.conversationsByConnection[connection.Id] = make(map[string]struct{})
}

// Join subscribes the connection to the conversation's room. Joining a room
// the connection is already in is a no-op.
func (r *InMemoryRegistry) Join(conversationId string, connectionId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	connectionConversations, ok := r.conversationsByConnection[connectionId]
	if !ok {
		return ErrConnectionNotFound
	}

	if _, ok := r.connectionsByConversation[conversationId]; !ok {
		r.connectionsByConversation[conversationId] = make(map[string]struct{})
	}

	r.connectionsByConversation[conversationId][connectionId] = struct{}{}
	connectionConversations[conversationId] = struct{}{}

	return nil
}

func (r *InMemoryRegistry) Leave(conversationId string, connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connectionConversations, ok := r.conversationsByConnection[connectionId]
	if !ok {
		return
	}

	if _, ok := connectionConversations[conversationId]; !ok {
		return
	}

	delete(connectionConversations, conversationId)
	r.removeFromRoomLocked(conversationId, connectionId)
}

// Disconnect removes the connection from every room it joined, closes its
// outbound queue and returns the conversations it was in.
func (r *InMemoryRegistry) Disconnect(connectionId string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	connection, ok := r.connections[connectionId]
	if !ok {
		return nil
	}

	connectionConversations, ok := r.conversationsByConnection[connectionId]
	if !ok {
		panic("inconsistent state: connection not found in conversationsByConnection")
	}

	conversationIds := lo.Keys(connectionConversations)
	for _, conversationId := range conversationIds {
		r.removeFromRoomLocked(conversationId, connectionId)
	}

	delete(r.conversationsByConnection, connectionId)
	delete(r.connections, connectionId)
	connection.Close()

	return conversationIds
}

// Broadcast delivers the frame to every connection in the room except
// excludeConnectionId. A connection whose queue is full is closed; its reader
// then disconnects it through the usual path.
func (r *InMemoryRegistry) Broadcast(conversationId string, frame protocol.Frame, excludeConnectionId string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connectionIds, ok := r.connectionsByConversation[conversationId]
	if !ok {
		return
	}

	for connectionId := range connectionIds {
		if connectionId == excludeConnectionId {
			continue
		}

		connection, ok := r.connections[connectionId]
		if !ok {
			panic("inconsistent state: room member not found in connections")
		}

		err := connection.Deliver(frame)
		if errors.Is(err, ErrSendQueueFull) {
			r.logger.Warn("connection send queue is full, closing connection",
				zap.String("connectionId", connectionId))

			connection.Close()
		}
	}
}

func (r *InMemoryRegistry) Members(conversationId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.connectionsByConversation[conversationId])
}

func (r *InMemoryRegistry) Conversations(connectionId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.conversationsByConnection[connectionId])
}

func (r *InMemoryRegistry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticated := lo.CountBy(lo.Values(r.connections), func(connection *Connection) bool {
		return connection.IsAuthenticated()
	})

	return Stats{
		Connections:   len(r.connections),
		Authenticated: authenticated,
		Rooms:         len(r.connectionsByConversation),
	}
}

// CloseAll force-closes every connection and drops all room state. It returns
// the number of connections closed.
func (r *InMemoryRegistry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := len(r.connections)
	for _, connection := range r.connections {
		connection.Close()
	}

	r.connections = make(map[string]*Connection)
	r.connectionsByConversation = make(map[string]map[string]struct{})
	r.conversationsByConnection = make(map[string]map[string]struct{})

	return count
}

// IMPORTANT: It must be called only when a write lock is already held.
func (r *InMemoryRegistry) removeFromRoomLocked(conversationId string, connectionId string) {
	roomConnections, ok := r.connectionsByConversation[conversationId]
	if !ok {
		panic("inconsistent state: conversation not found in connectionsByConversation")
	}

	delete(roomConnections, connectionId)
	if len(roomConnections) == 0 {
		delete(r.connectionsByConversation, conversationId)
	}
}
