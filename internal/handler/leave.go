package handler

import (
	"context"

	"github.com/Odillon241/Chronodil-sub001/internal/auth"
	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/ierr"
	"github.com/Odillon241/Chronodil-sub001/internal/membership"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type LeaveHandlerInterface interface {
	Handle(ctx context.Context, req protocol.ConversationRequest) (protocol.ConversationEvent, error)
}

type LeaveHandler struct {
	logger           *zap.Logger
	requestValidator *RequestValidator
	gate             *membership.Gate
	registry         broadcaster.Registry
	presence         *Presence
}

func NewLeaveHandler(
	logger *zap.Logger,
	requestValidator *RequestValidator,
	gate *membership.Gate,
	registry broadcaster.Registry,
	presence *Presence,
) *LeaveHandler {
	return &LeaveHandler{
		logger,
		requestValidator,
		gate,
		registry,
		presence,
	}
}

func (h *LeaveHandler) Handle(ctx context.Context, req protocol.ConversationRequest) (protocol.ConversationEvent, error) {
	connection, identity, err := authenticatedConnection(ctx)
	if err != nil {
		return protocol.ConversationEvent{}, err
	}

	err = h.requestValidator.Validate(req)
	if err != nil {
		return protocol.ConversationEvent{}, err
	}

	err = h.gate.Authorize(ctx, identity.UserId, req.ConversationId)
	if err != nil {
		// a revoked member still gets out of the room, only the ack is refused
		if ierr.CodeOf(err) == ierr.ErrorCodeNotMember {
			h.leave(ctx, connection, identity, req.ConversationId)
		}

		return protocol.ConversationEvent{}, err
	}

	h.leave(ctx, connection, identity, req.ConversationId)

	return protocol.NewConversationEvent(protocol.EventLeftConversation, req.ConversationId), nil
}

func (h *LeaveHandler) leave(ctx context.Context, connection *broadcaster.Connection, identity auth.Identity, conversationId string) {
	wasJoined := lo.Contains(h.registry.Conversations(connection.Id), conversationId)

	h.registry.Leave(conversationId, connection.Id)

	if !wasJoined {
		return
	}

	err := h.presence.Announce(ctx, protocol.EventUserLeft, conversationId, identity, connection.Id)
	if err != nil {
		h.logger.Warn("failed to announce leave",
			zap.String("conversationId", conversationId),
			zap.Error(err))
	}
}
