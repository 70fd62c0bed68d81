package handler

import (
	"context"

	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/membership"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type JoinHandlerInterface interface {
	Handle(ctx context.Context, req protocol.ConversationRequest) (protocol.ConversationEvent, error)
}

type JoinHandler struct {
	logger           *zap.Logger
	requestValidator *RequestValidator
	gate             *membership.Gate
	registry         broadcaster.Registry
	presence         *Presence
}

func NewJoinHandler(
	logger *zap.Logger,
	requestValidator *RequestValidator,
	gate *membership.Gate,
	registry broadcaster.Registry,
	presence *Presence,
) *JoinHandler {
	return &JoinHandler{
		logger,
		requestValidator,
		gate,
		registry,
		presence,
	}
}

func (h *JoinHandler) Handle(ctx context.Context, req protocol.ConversationRequest) (protocol.ConversationEvent, error) {
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
		return protocol.ConversationEvent{}, err
	}

	alreadyJoined := lo.Contains(h.registry.Conversations(connection.Id), req.ConversationId)

	err = h.registry.Join(req.ConversationId, connection.Id)
	if err != nil {
		return protocol.ConversationEvent{}, err
	}

	if !alreadyJoined {
		err = h.presence.Announce(ctx, protocol.EventUserJoined, req.ConversationId, identity, connection.Id)
		if err != nil {
			h.logger.Warn("failed to announce join",
				zap.String("conversationId", req.ConversationId),
				zap.Error(err))
		}
	}

	return protocol.NewConversationEvent(protocol.EventJoinedConversation, req.ConversationId), nil
}
