package handler

import (
	"context"
	"errors"

	"github.com/Odillon241/Chronodil-sub001/internal/auth"
	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/ierr"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
	"go.uber.org/zap"
)

type AuthHandlerInterface interface {
	Handle(ctx context.Context, req protocol.AuthenticateRequest) (protocol.AuthenticatedEvent, error)
}

type AuthHandler struct {
	logger        *zap.Logger
	authenticator *auth.Authenticator
}

func NewAuthHandler(
	logger *zap.Logger,
	authenticator *auth.Authenticator,
) *AuthHandler {
	return &AuthHandler{
		logger,
		authenticator,
	}
}

func (h *AuthHandler) Handle(ctx context.Context, req protocol.AuthenticateRequest) (protocol.AuthenticatedEvent, error) {
	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return protocol.AuthenticatedEvent{}, errors.New("connection not found in context")
	}

	if connection.IsAuthenticated() {
		return protocol.AuthenticatedEvent{},
			ierr.New(ierr.ErrorCodeAlreadyAuthenticated, broadcaster.ErrAlreadyAuthenticated)
	}

	identity, err := h.authenticator.Authenticate(ctx, req.Token)
	if err != nil {
		return protocol.AuthenticatedEvent{}, err
	}

	err = connection.Authenticate(identity)
	if err != nil {
		return protocol.AuthenticatedEvent{},
			ierr.New(ierr.ErrorCodeAlreadyAuthenticated, err)
	}

	h.logger.Info("connection authenticated",
		zap.String("connectionId", connection.Id),
		zap.String("userId", identity.UserId))

	return protocol.NewAuthenticatedEvent(identity.UserId, identity.UserName), nil
}
