package handler

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/Odillon241/Chronodil-sub001/internal/auth"
	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/bus"
	"github.com/Odillon241/Chronodil-sub001/internal/chat"
	"github.com/Odillon241/Chronodil-sub001/internal/ierr"
	"github.com/Odillon241/Chronodil-sub001/internal/membership"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
	"go.uber.org/zap"
)

type SendMessageRequest struct {
	protocol.SendMessageRequest

	// SenderId is only read for API key callers. Connections always send as
	// their authenticated user.
	SenderId string `json:"senderId,omitempty" validate:"omitempty,max=128"`
}

type SendMessageHandlerInterface interface {
	Handle(ctx context.Context, req SendMessageRequest) (chat.Message, error)
}

type SendMessageOptions struct {
	PersistenceTimeout time.Duration
	MaxContentLength   int
}

type SendMessageHandler struct {
	logger           *zap.Logger
	requestValidator *RequestValidator
	gate             *membership.Gate
	messages         persistence.MessageStore
	bus              bus.Bus
	options          SendMessageOptions
}

func NewSendMessageHandler(
	logger *zap.Logger,
	requestValidator *RequestValidator,
	gate *membership.Gate,
	messages persistence.MessageStore,
	bus bus.Bus,
	options SendMessageOptions,
) *SendMessageHandler {
	return &SendMessageHandler{
		logger,
		requestValidator,
		gate,
		messages,
		bus,
		options,
	}
}

// Handle authorizes, persists and fans out a chat message. When called on
// behalf of a connection, MESSAGE_SENT is queued to it before NEW_MESSAGE is
// published to the room.
func (h *SendMessageHandler) Handle(ctx context.Context, req SendMessageRequest) (chat.Message, error) {
	connection, senderId, err := h.resolveSender(ctx, req)
	if err != nil {
		return chat.Message{}, err
	}

	err = h.validate(req)
	if err != nil {
		return chat.Message{}, err
	}

	err = h.gate.Authorize(ctx, senderId, req.ConversationId)
	if err != nil {
		return chat.Message{}, err
	}

	message, err := h.persist(ctx, senderId, req)
	if err != nil {
		return chat.Message{}, err
	}

	if connection != nil {
		err = connection.DeliverEvent(protocol.NewMessageSentEvent(message.Id))
		if err != nil {
			h.logger.Warn("failed to acknowledge message",
				zap.String("connectionId", connection.Id),
				zap.String("messageId", message.Id),
				zap.Error(err))
		}
	}

	frame, err := protocol.Encode(protocol.NewNewMessageEvent(message))
	if err != nil {
		return chat.Message{}, err
	}

	err = h.bus.Publish(ctx, bus.RoomEvent{
		ConversationId: message.ConversationId,
		Frame:          frame,
	})
	if err != nil {
		// the message is stored, clients will see it on their next fetch
		h.logger.Error("failed to publish message",
			zap.String("messageId", message.Id),
			zap.String("conversationId", message.ConversationId),
			zap.Error(err))
	}

	return message, nil
}

func (h *SendMessageHandler) resolveSender(ctx context.Context, req SendMessageRequest) (*broadcaster.Connection, string, error) {
	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if ok {
		identity := connection.Identity()
		if !identity.IsAuthenticated() {
			return nil, "", ierr.New(ierr.ErrorCodeNotAuthenticated, errors.New("Not authenticated"))
		}

		return connection, identity.UserId, nil
	}

	authentication, ok := auth.AuthenticationFromContext(ctx)
	if !ok || authentication == nil {
		return nil, "", ierr.New(ierr.ErrorCodeNotAuthenticated, errors.New("Not authenticated"))
	}

	if !authentication.IsAdmin {
		return nil, "", ierr.New(ierr.ErrorCodePermissionDenied, errors.New("caller may not send on behalf of users"))
	}

	if req.SenderId == "" {
		return nil, "", ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid senderId: failed on required"))
	}

	return nil, req.SenderId, nil
}

func (h *SendMessageHandler) validate(req SendMessageRequest) error {
	err := h.requestValidator.Validate(req)
	if err != nil {
		return err
	}

	err = h.requestValidator.ValidateContentLength(req.Content, h.options.MaxContentLength)
	if err != nil {
		return err
	}

	if req.Content == "" && !hasAttachments(req.Attachments) {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("content or attachments required"))
	}

	return nil
}

func (h *SendMessageHandler) persist(ctx context.Context, senderId string, req SendMessageRequest) (chat.Message, error) {
	persistCtx := ctx
	if h.options.PersistenceTimeout > 0 {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(ctx, h.options.PersistenceTimeout)
		defer cancel()
	}

	var attachments []byte
	if hasAttachments(req.Attachments) {
		attachments = req.Attachments
	}

	message, err := h.messages.CreateMessage(persistCtx, persistence.CreateMessageRequest{
		ConversationId: req.ConversationId,
		SenderId:       senderId,
		Content:        req.Content,
		Attachments:    attachments,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(persistCtx.Err(), context.DeadlineExceeded) {
			h.logger.Error("message persistence timed out",
				zap.String("conversationId", req.ConversationId),
				zap.Duration("timeout", h.options.PersistenceTimeout))

			return chat.Message{}, ierr.New(ierr.ErrorCodeTimeout, errors.New("message persistence timed out"))
		}

		h.logger.Error("failed to persist message",
			zap.String("conversationId", req.ConversationId),
			zap.Error(err))

		return chat.Message{}, ierr.New(ierr.ErrorCodePersistence, errors.New("failed to save message"))
	}

	return message, nil
}

func hasAttachments(attachments []byte) bool {
	trimmed := bytes.TrimSpace(attachments)

	return len(trimmed) > 0 &&
		!bytes.Equal(trimmed, []byte("null")) &&
		!bytes.Equal(trimmed, []byte("[]"))
}
