package handler

import (
	"context"
	"errors"

	"github.com/Odillon241/Chronodil-sub001/internal/auth"
	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/bus"
	"github.com/Odillon241/Chronodil-sub001/internal/ierr"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
	"go.uber.org/zap"
)

// Presence publishes user scoped room events: typing indicators and
// join/leave announcements. The origin connection never receives its own.
type Presence struct {
	logger *zap.Logger
	bus    bus.Bus
}

func NewPresence(
	logger *zap.Logger,
	bus bus.Bus,
) *Presence {
	return &Presence{
		logger,
		bus,
	}
}

func (p *Presence) Announce(
	ctx context.Context,
	eventType protocol.EventType,
	conversationId string,
	identity auth.Identity,
	originConnectionId string,
) error {
	frame, err := protocol.Encode(
		protocol.NewPresenceEvent(eventType, conversationId, identity.UserId, identity.UserName),
	)
	if err != nil {
		return err
	}

	return p.bus.Publish(ctx, bus.RoomEvent{
		ConversationId:      conversationId,
		ExcludeConnectionId: originConnectionId,
		Frame:               frame,
	})
}

// AnnounceDisconnect emits USER_LEFT to every room a closed connection had
// joined. Failures are logged, there is nobody left to report them to.
func (p *Presence) AnnounceDisconnect(
	ctx context.Context,
	identity auth.Identity,
	connectionId string,
	conversationIds []string,
) {
	if !identity.IsAuthenticated() {
		return
	}

	for _, conversationId := range conversationIds {
		err := p.Announce(ctx, protocol.EventUserLeft, conversationId, identity, connectionId)
		if err != nil {
			p.logger.Warn("failed to announce disconnect",
				zap.String("connectionId", connectionId),
				zap.String("conversationId", conversationId),
				zap.Error(err))
		}
	}
}

func authenticatedConnection(ctx context.Context) (*broadcaster.Connection, auth.Identity, error) {
	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return nil, auth.Identity{}, errors.New("connection not found in context")
	}

	identity := connection.Identity()
	if !identity.IsAuthenticated() {
		return nil, auth.Identity{},
			ierr.New(ierr.ErrorCodeNotAuthenticated, errors.New("Not authenticated"))
	}

	return connection, identity, nil
}
