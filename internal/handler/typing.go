package handler

import (
	"context"

	"github.com/Odillon241/Chronodil-sub001/internal/membership"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
)

type TypingHandlerInterface interface {
	Handle(ctx context.Context, req protocol.ConversationRequest, started bool) error
}

type TypingHandler struct {
	requestValidator *RequestValidator
	gate             *membership.Gate
	presence         *Presence
}

func NewTypingHandler(
	requestValidator *RequestValidator,
	gate *membership.Gate,
	presence *Presence,
) *TypingHandler {
	return &TypingHandler{
		requestValidator,
		gate,
		presence,
	}
}

// Handle relays a typing indicator to the other members of the room. Nothing
// is sent back to the origin on success.
func (h *TypingHandler) Handle(ctx context.Context, req protocol.ConversationRequest, started bool) error {
	connection, identity, err := authenticatedConnection(ctx)
	if err != nil {
		return err
	}

	err = h.requestValidator.Validate(req)
	if err != nil {
		return err
	}

	err = h.gate.Authorize(ctx, identity.UserId, req.ConversationId)
	if err != nil {
		return err
	}

	eventType := protocol.EventUserStoppedTyping
	if started {
		eventType = protocol.EventUserTyping
	}

	return h.presence.Announce(ctx, eventType, req.ConversationId, identity, connection.Id)
}
