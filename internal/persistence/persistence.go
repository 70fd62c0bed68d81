package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Odillon241/Chronodil-sub001/internal/chat"
)

var ErrNotFound = errors.New("not found")

type UserStore interface {
	FindUser(ctx context.Context, userId string) (chat.User, error)
}

type MembershipStore interface {
	IsMember(ctx context.Context, userId string, conversationId string) (bool, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, request CreateMessageRequest) (chat.Message, error)
}

// Engine is a persistence backend for the chat core. Implementations must be
// safe for concurrent use.
type Engine interface {
	UserStore
	MembershipStore
	MessageStore

	Setup(ctx context.Context) error
	Close(ctx context.Context) error
}

type CreateMessageRequest struct {
	ConversationId string
	SenderId       string
	Content        string
	Attachments    json.RawMessage
	CreatedAt      time.Time
}
