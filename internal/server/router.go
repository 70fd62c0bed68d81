package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/handler"
	"github.com/Odillon241/Chronodil-sub001/internal/ierr"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
	"go.uber.org/zap"
)

// Reply is what the transport writes back after an inbound event. Event may be
// nil when the handler already queued its own output.
type Reply struct {
	Event any
	Close bool
}

type Router struct {
	logger *zap.Logger

	heartbeatHandler   handler.HeartbeatHandlerInterface
	authHandler        handler.AuthHandlerInterface
	joinHandler        handler.JoinHandlerInterface
	leaveHandler       handler.LeaveHandlerInterface
	sendMessageHandler handler.SendMessageHandlerInterface
	typingHandler      handler.TypingHandlerInterface
}

func NewRouter(
	logger *zap.Logger,
	heartbeatHandler handler.HeartbeatHandlerInterface,
	authHandler handler.AuthHandlerInterface,
	joinHandler handler.JoinHandlerInterface,
	leaveHandler handler.LeaveHandlerInterface,
	sendMessageHandler handler.SendMessageHandlerInterface,
	typingHandler handler.TypingHandlerInterface,
) *Router {
	return &Router{
		logger,
		heartbeatHandler,
		authHandler,
		joinHandler,
		leaveHandler,
		sendMessageHandler,
		typingHandler,
	}
}

// Route decodes and dispatches one inbound frame.
func (r *Router) Route(ctx context.Context, payload []byte) Reply {
	eventType, err := protocol.DecodeType(payload)
	if err != nil {
		return Reply{
			Event: protocol.NewErrorEvent(protocol.EventError, "invalid payload", string(ierr.ErrorCodeInvalidPayload)),
		}
	}

	event, err := r.safeHandle(ctx, eventType, payload)
	if err != nil {
		return r.replyWithError(eventType, r.mapError(err))
	}

	return Reply{Event: event}
}

func (r *Router) safeHandle(ctx context.Context, eventType protocol.EventType, payload []byte) (event any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("panic in event handler",
				zap.String("type", string(eventType)),
				zap.Any("panic", recovered),
				zap.Stack("stack"))

			event = nil
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()

	return r.Handle(ctx, eventType, payload)
}

func (r *Router) Handle(ctx context.Context, eventType protocol.EventType, payload []byte) (any, error) {
	err := checkAuthentication(ctx, eventType)
	if err != nil {
		return nil, err
	}

	switch eventType {
	case protocol.EventPing:
		return r.heartbeatHandler.Handle(), nil
	case protocol.EventAuthenticate:
		var req protocol.AuthenticateRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}

		return r.authHandler.Handle(ctx, req)
	case protocol.EventJoinConversation:
		var req protocol.ConversationRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}

		return r.joinHandler.Handle(ctx, req)
	case protocol.EventLeaveConversation:
		var req protocol.ConversationRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}

		return r.leaveHandler.Handle(ctx, req)
	case protocol.EventSendMessage:
		var req protocol.SendMessageRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}

		_, err := r.sendMessageHandler.Handle(ctx, handler.SendMessageRequest{SendMessageRequest: req})

		return nil, err
	case protocol.EventTypingStart, protocol.EventTypingStop:
		var req protocol.ConversationRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}

		return nil, r.typingHandler.Handle(ctx, req, eventType == protocol.EventTypingStart)
	default:
		return nil, ierr.New(ierr.ErrorCodeUnknownEvent, errors.New("unknown event type: "+string(eventType)))
	}
}

func (r *Router) replyWithError(eventType protocol.EventType, err ierr.Error) Reply {
	switch {
	case eventType == protocol.EventAuthenticate && err.Code != ierr.ErrorCodeAlreadyAuthenticated:
		return Reply{
			Event: protocol.NewAuthErrorEvent(err.Message),
			Close: true,
		}
	case eventType == protocol.EventSendMessage && err.Code != ierr.ErrorCodeNotAuthenticated:
		return Reply{
			Event: protocol.NewErrorEvent(protocol.EventMessageError, err.Message, string(err.Code)),
		}
	default:
		return Reply{
			Event: protocol.NewErrorEvent(protocol.EventError, err.Message, string(err.Code)),
		}
	}
}

func (r *Router) mapError(err error) ierr.Error {
	var handlerErr ierr.Error
	if errors.As(err, &handlerErr) {
		return handlerErr
	}

	r.logger.Error("error in event handler", zap.Error(err))

	return ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
}

// checkAuthentication rejects an event on authentication state alone, before
// its payload is decoded.
func checkAuthentication(ctx context.Context, eventType protocol.EventType) error {
	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return nil
	}

	switch eventType {
	case protocol.EventAuthenticate:
		if connection.IsAuthenticated() {
			return ierr.New(ierr.ErrorCodeAlreadyAuthenticated, broadcaster.ErrAlreadyAuthenticated)
		}
	case protocol.EventJoinConversation, protocol.EventLeaveConversation, protocol.EventSendMessage,
		protocol.EventTypingStart, protocol.EventTypingStop:
		if !connection.IsAuthenticated() {
			return ierr.New(ierr.ErrorCodeNotAuthenticated, errors.New("Not authenticated"))
		}
	}

	return nil
}

func decodePayload(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return ierr.New(ierr.ErrorCodeInvalidPayload, errors.New("invalid payload: "+err.Error()))
	}

	return nil
}

// Authenticate runs the authentication step for a token presented during the
// WebSocket handshake, replying exactly as for an AUTHENTICATE event.
func (r *Router) Authenticate(ctx context.Context, token string) Reply {
	event, err := r.authHandler.Handle(ctx, protocol.AuthenticateRequest{Token: token})
	if err != nil {
		return r.replyWithError(protocol.EventAuthenticate, r.mapError(err))
	}

	return Reply{Event: event}
}
