package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Odillon241/Chronodil-sub001/internal/auth"
	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/bus"
	"github.com/Odillon241/Chronodil-sub001/internal/chat"
	"github.com/Odillon241/Chronodil-sub001/internal/ierr"
	"github.com/Odillon241/Chronodil-sub001/internal/membership"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	engine    *persistence.MockEngine
	registry  broadcaster.Registry
	validator *RequestValidator
	gate      *membership.Gate
	presence  *Presence
	bus       bus.Bus
}

func newFixture(t *testing.T, registry broadcaster.Registry) fixture {
	t.Helper()

	engine := persistence.NewMockEngine(t)
	localBus := bus.NewLocalBus(registry)

	return fixture{
		engine:    engine,
		registry:  registry,
		validator: NewRequestValidator(),
		gate:      membership.NewGate(engine),
		presence:  NewPresence(zap.NewNop(), localBus),
		bus:       localBus,
	}
}

func (f fixture) connect(t *testing.T, connectionId string, identity auth.Identity) (*broadcaster.Connection, context.Context) {
	t.Helper()

	connection := broadcaster.NewConnection(connectionId, 8)
	f.registry.Connect(connection)

	if identity.IsAuthenticated() {
		require.NoError(t, connection.Authenticate(identity))
	}

	return connection, broadcaster.WithConnection(context.Background(), connection)
}

func (f fixture) sendMessageHandler(options SendMessageOptions) *SendMessageHandler {
	return NewSendMessageHandler(zap.NewNop(), f.validator, f.gate, f.engine, f.bus, options)
}

func nextEvent(t *testing.T, connection *broadcaster.Connection) map[string]any {
	t.Helper()

	select {
	case frame := <-connection.Outbound():
		var event map[string]any
		require.NoError(t, json.Unmarshal(frame, &event))
		return event
	default:
		t.Fatalf("no event queued for connection %s", connection.Id)
		return nil
	}
}

var (
	alice = auth.Identity{UserId: "u1", UserName: "alice"}
	bob   = auth.Identity{UserId: "u2", UserName: "bob"}
	carol = auth.Identity{UserId: "u3", UserName: "carol"}
)

func TestJoinHandler_Handle(t *testing.T) {
	t.Run("member joins and peers are told", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		f.engine.On("IsMember", mock.Anything, "u1", "conv1").Return(true, nil)
		f.engine.On("IsMember", mock.Anything, "u2", "conv1").Return(true, nil).Once()

		joinHandler := NewJoinHandler(zap.NewNop(), f.validator, f.gate, f.registry, f.presence)
		connA, ctxA := f.connect(t, "a", alice)
		connB, ctxB := f.connect(t, "b", bob)

		_, err := joinHandler.Handle(ctxB, protocol.ConversationRequest{ConversationId: "conv1"})
		require.NoError(t, err)

		event, err := joinHandler.Handle(ctxA, protocol.ConversationRequest{ConversationId: "conv1"})
		require.NoError(t, err)
		assert.Equal(t, protocol.EventJoinedConversation, event.Type)
		assert.Equal(t, "conv1", event.ConversationId)

		assert.ElementsMatch(t, []string{"a", "b"}, f.registry.Members("conv1"))

		joined := nextEvent(t, connB)
		assert.Equal(t, "USER_JOINED", joined["type"])
		assert.Equal(t, "u1", joined["userId"])
		assert.Empty(t, connA.Outbound())

		// joining again changes nothing and is not announced twice
		_, err = joinHandler.Handle(ctxA, protocol.ConversationRequest{ConversationId: "conv1"})
		require.NoError(t, err)
		assert.Len(t, f.registry.Members("conv1"), 2)
		assert.Empty(t, connB.Outbound())
	})

	t.Run("unauthenticated connection", func(t *testing.T) {
		registry := broadcaster.NewMockRegistry(t)
		registry.On("Connect", mock.Anything).Return().Once()
		f := newFixture(t, registry)

		joinHandler := NewJoinHandler(zap.NewNop(), f.validator, f.gate, f.registry, f.presence)
		_, ctx := f.connect(t, "a", auth.Identity{})

		_, err := joinHandler.Handle(ctx, protocol.ConversationRequest{ConversationId: "conv1"})

		assert.Equal(t, ierr.ErrorCodeNotAuthenticated, ierr.CodeOf(err))
	})

	t.Run("not a member", func(t *testing.T) {
		registry := broadcaster.NewMockRegistry(t)
		registry.On("Connect", mock.Anything).Return().Once()
		f := newFixture(t, registry)
		f.engine.On("IsMember", mock.Anything, "u3", "conv1").Return(false, nil).Once()

		joinHandler := NewJoinHandler(zap.NewNop(), f.validator, f.gate, f.registry, f.presence)
		_, ctx := f.connect(t, "c", carol)

		_, err := joinHandler.Handle(ctx, protocol.ConversationRequest{ConversationId: "conv1"})

		assert.Equal(t, ierr.ErrorCodeNotMember, ierr.CodeOf(err))
		assert.EqualError(t, errors.Unwrap(err), "Not a member of this conversation")
	})

	t.Run("membership lookup fails", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		f.engine.On("IsMember", mock.Anything, "u1", "conv1").Return(false, errors.New("db down")).Once()

		joinHandler := NewJoinHandler(zap.NewNop(), f.validator, f.gate, f.registry, f.presence)
		_, ctx := f.connect(t, "a", alice)

		_, err := joinHandler.Handle(ctx, protocol.ConversationRequest{ConversationId: "conv1"})

		assert.Error(t, err)
		assert.Equal(t, ierr.ErrorCodeInternal, ierr.CodeOf(err))
		assert.Empty(t, f.registry.Members("conv1"))
	})

	t.Run("malformed conversation id", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))

		joinHandler := NewJoinHandler(zap.NewNop(), f.validator, f.gate, f.registry, f.presence)
		_, ctx := f.connect(t, "a", alice)

		for _, conversationId := range []string{"", "conv 1", "conv1:", strings.Repeat("x", 129)} {
			_, err := joinHandler.Handle(ctx, protocol.ConversationRequest{ConversationId: conversationId})

			assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err), conversationId)
		}
	})
}

func TestLeaveHandler_Handle(t *testing.T) {
	f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
	f.engine.On("IsMember", mock.Anything, "u1", "conv1").Return(true, nil)

	leaveHandler := NewLeaveHandler(zap.NewNop(), f.validator, f.gate, f.registry, f.presence)
	_, ctxA := f.connect(t, "a", alice)
	connB, _ := f.connect(t, "b", bob)
	require.NoError(t, f.registry.Join("conv1", "a"))
	require.NoError(t, f.registry.Join("conv1", "b"))

	event, err := leaveHandler.Handle(ctxA, protocol.ConversationRequest{ConversationId: "conv1"})

	require.NoError(t, err)
	assert.Equal(t, protocol.EventLeftConversation, event.Type)
	assert.ElementsMatch(t, []string{"b"}, f.registry.Members("conv1"))

	left := nextEvent(t, connB)
	assert.Equal(t, "USER_LEFT", left["type"])
	assert.Equal(t, "alice", left["userName"])

	// leaving a room that was not joined is acknowledged silently
	_, err = leaveHandler.Handle(ctxA, protocol.ConversationRequest{ConversationId: "conv1"})
	require.NoError(t, err)
	assert.Empty(t, connB.Outbound())
}

func TestLeaveHandler_RevokedMember(t *testing.T) {
	registry := broadcaster.NewMockRegistry(t)
	registry.On("Connect", mock.Anything).Return().Once()
	registry.On("Conversations", "a").Return([]string{"conv1"}).Once()
	registry.On("Leave", "conv1", "a").Return().Once()
	registry.On("Broadcast", "conv1", mock.MatchedBy(func(frame protocol.Frame) bool {
		return strings.Contains(string(frame), `"type":"USER_LEFT"`)
	}), "a").Return().Once()

	f := newFixture(t, registry)
	f.engine.On("IsMember", mock.Anything, "u1", "conv1").Return(false, nil).Once()

	leaveHandler := NewLeaveHandler(zap.NewNop(), f.validator, f.gate, f.registry, f.presence)
	_, ctx := f.connect(t, "a", alice)

	_, err := leaveHandler.Handle(ctx, protocol.ConversationRequest{ConversationId: "conv1"})

	assert.Equal(t, ierr.ErrorCodeNotMember, ierr.CodeOf(err))
}

func TestJoinHandler_RegistryFailure(t *testing.T) {
	registry := broadcaster.NewMockRegistry(t)
	registry.On("Connect", mock.Anything).Return().Once()
	registry.On("Conversations", "a").Return([]string{}).Once()
	registry.On("Join", "conv1", "a").Return(broadcaster.ErrConnectionNotFound).Once()

	f := newFixture(t, registry)
	f.engine.On("IsMember", mock.Anything, "u1", "conv1").Return(true, nil).Once()

	joinHandler := NewJoinHandler(zap.NewNop(), f.validator, f.gate, f.registry, f.presence)
	_, ctx := f.connect(t, "a", alice)

	_, err := joinHandler.Handle(ctx, protocol.ConversationRequest{ConversationId: "conv1"})

	assert.ErrorIs(t, err, broadcaster.ErrConnectionNotFound)
	registry.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything)
}

func TestTypingHandler_Handle(t *testing.T) {
	f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
	f.engine.On("IsMember", mock.Anything, "u1", "conv1").Return(true, nil)
	f.engine.On("IsMember", mock.Anything, "u3", "conv1").Return(false, nil)

	typingHandler := NewTypingHandler(f.validator, f.gate, f.presence)
	connA, ctxA := f.connect(t, "a", alice)
	connB, _ := f.connect(t, "b", bob)
	_, ctxC := f.connect(t, "c", carol)
	require.NoError(t, f.registry.Join("conv1", "a"))
	require.NoError(t, f.registry.Join("conv1", "b"))

	t.Run("typing reaches everyone but the typist", func(t *testing.T) {
		require.NoError(t, typingHandler.Handle(ctxA, protocol.ConversationRequest{ConversationId: "conv1"}, true))
		require.NoError(t, typingHandler.Handle(ctxA, protocol.ConversationRequest{ConversationId: "conv1"}, false))

		started := nextEvent(t, connB)
		assert.Equal(t, "USER_TYPING", started["type"])
		assert.Equal(t, "conv1", started["conversationId"])
		assert.Equal(t, "u1", started["userId"])

		stopped := nextEvent(t, connB)
		assert.Equal(t, "USER_STOPPED_TYPING", stopped["type"])

		assert.Empty(t, connA.Outbound())
	})

	t.Run("non members are gated", func(t *testing.T) {
		err := typingHandler.Handle(ctxC, protocol.ConversationRequest{ConversationId: "conv1"}, true)

		assert.Equal(t, ierr.ErrorCodeNotMember, ierr.CodeOf(err))
		assert.Empty(t, connA.Outbound())
		assert.Empty(t, connB.Outbound())
	})
}

func TestSendMessageHandler_Handle(t *testing.T) {
	options := SendMessageOptions{PersistenceTimeout: time.Second, MaxContentLength: 20}

	request := func(content string) SendMessageRequest {
		return SendMessageRequest{
			SendMessageRequest: protocol.SendMessageRequest{ConversationId: "conv1", Content: content},
		}
	}

	t.Run("persists then acknowledges then fans out", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		f.engine.On("IsMember", mock.Anything, "u1", "conv1").Return(true, nil).Once()
		f.engine.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req persistence.CreateMessageRequest) bool {
			return req.ConversationId == "conv1" && req.SenderId == "u1" && req.Content == "hi" && req.Attachments == nil
		})).Return(chat.Message{
			Id:             "m1",
			ConversationId: "conv1",
			SenderId:       "u1",
			SenderName:     "alice",
			Content:        "hi",
			CreatedAt:      time.Now(),
		}, nil).Once()

		connA, ctxA := f.connect(t, "a", alice)
		connB, _ := f.connect(t, "b", bob)
		require.NoError(t, f.registry.Join("conv1", "a"))
		require.NoError(t, f.registry.Join("conv1", "b"))

		message, err := f.sendMessageHandler(options).Handle(ctxA, request("hi"))
		require.NoError(t, err)
		assert.Equal(t, "m1", message.Id)

		sent := nextEvent(t, connA)
		assert.Equal(t, "MESSAGE_SENT", sent["type"])
		assert.Equal(t, "m1", sent["messageId"])

		for _, connection := range []*broadcaster.Connection{connA, connB} {
			newMessage := nextEvent(t, connection)
			assert.Equal(t, "NEW_MESSAGE", newMessage["type"])
			assert.Equal(t, "m1", newMessage["id"])
			assert.Equal(t, "alice", newMessage["senderName"])
			assert.Equal(t, "hi", newMessage["content"])
			assert.Empty(t, connection.Outbound())
		}
	})

	t.Run("unauthenticated connection", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		_, ctx := f.connect(t, "a", auth.Identity{})

		_, err := f.sendMessageHandler(options).Handle(ctx, request("hi"))

		assert.Equal(t, ierr.ErrorCodeNotAuthenticated, ierr.CodeOf(err))
	})

	t.Run("non member never reaches persistence", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		f.engine.On("IsMember", mock.Anything, "u3", "conv1").Return(false, nil).Once()

		connA, _ := f.connect(t, "a", alice)
		_, ctxC := f.connect(t, "c", carol)
		require.NoError(t, f.registry.Join("conv1", "a"))

		_, err := f.sendMessageHandler(options).Handle(ctxC, request("x"))

		assert.Equal(t, ierr.ErrorCodeNotMember, ierr.CodeOf(err))
		f.engine.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
		assert.Empty(t, connA.Outbound())
	})

	t.Run("invalid payloads", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		_, ctx := f.connect(t, "a", alice)
		handler := f.sendMessageHandler(options)

		_, err := handler.Handle(ctx, request(""))
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))

		_, err = handler.Handle(ctx, request(strings.Repeat("é", 21)))
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))

		_, err = handler.Handle(ctx, SendMessageRequest{SendMessageRequest: protocol.SendMessageRequest{Content: "hi"}})
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))
	})

	t.Run("attachments without content", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		f.engine.On("IsMember", mock.Anything, "u1", "conv1").Return(true, nil).Once()
		f.engine.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req persistence.CreateMessageRequest) bool {
			return req.Content == "" && string(req.Attachments) == `[{"url":"a.png"}]`
		})).Return(chat.Message{Id: "m2", ConversationId: "conv1"}, nil).Once()

		_, ctx := f.connect(t, "a", alice)
		req := request("")
		req.Attachments = json.RawMessage(`[{"url":"a.png"}]`)

		message, err := f.sendMessageHandler(options).Handle(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, "m2", message.Id)
	})

	t.Run("persistence failure", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		f.engine.On("IsMember", mock.Anything, "u1", "conv1").Return(true, nil).Once()
		f.engine.On("CreateMessage", mock.Anything, mock.Anything).
			Return(chat.Message{}, errors.New("disk full")).Once()

		connA, ctx := f.connect(t, "a", alice)
		require.NoError(t, f.registry.Join("conv1", "a"))

		_, err := f.sendMessageHandler(options).Handle(ctx, request("hi"))

		assert.Equal(t, ierr.ErrorCodePersistence, ierr.CodeOf(err))
		assert.Empty(t, connA.Outbound())
	})

	t.Run("persistence timeout", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		f.engine.On("IsMember", mock.Anything, "u1", "conv1").Return(true, nil).Once()
		f.engine.On("CreateMessage", mock.Anything, mock.Anything).
			Return(func(ctx context.Context, _ persistence.CreateMessageRequest) chat.Message {
				<-ctx.Done()
				return chat.Message{}
			}, func(ctx context.Context, _ persistence.CreateMessageRequest) error {
				return ctx.Err()
			}).Once()

		connA, ctx := f.connect(t, "a", alice)
		require.NoError(t, f.registry.Join("conv1", "a"))

		_, err := f.sendMessageHandler(SendMessageOptions{PersistenceTimeout: 20 * time.Millisecond}).
			Handle(ctx, request("hi"))

		assert.Equal(t, ierr.ErrorCodeTimeout, ierr.CodeOf(err))
		assert.Empty(t, connA.Outbound())
	})

	t.Run("api key caller sends on behalf of a user", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		f.engine.On("IsMember", mock.Anything, "u2", "conv1").Return(true, nil).Once()
		f.engine.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req persistence.CreateMessageRequest) bool {
			return req.SenderId == "u2"
		})).Return(chat.Message{Id: "m3", ConversationId: "conv1", SenderId: "u2"}, nil).Once()

		connA, _ := f.connect(t, "a", alice)
		require.NoError(t, f.registry.Join("conv1", "a"))

		ctx := auth.WithAuthentication(context.Background(), &auth.Authentication{Subject: "api", IsAdmin: true})
		req := request("from the web app")
		req.SenderId = "u2"

		message, err := f.sendMessageHandler(options).Handle(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, "m3", message.Id)
		assert.Equal(t, "NEW_MESSAGE", nextEvent(t, connA)["type"])
	})

	t.Run("api key caller without sender", func(t *testing.T) {
		f := newFixture(t, broadcaster.NewInMemoryRegistry(zap.NewNop()))
		ctx := auth.WithAuthentication(context.Background(), &auth.Authentication{Subject: "api", IsAdmin: true})

		_, err := f.sendMessageHandler(options).Handle(ctx, request("hi"))

		assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))
	})
}
