package server

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Odillon241/Chronodil-sub001/internal/auth"
	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/bus"
	"github.com/Odillon241/Chronodil-sub001/internal/chat"
	"github.com/Odillon241/Chronodil-sub001/internal/handler"
	"github.com/Odillon241/Chronodil-sub001/internal/membership"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence/sqlite"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	*httptest.Server

	engine        *sqlite.PersistenceEngine
	registry      *broadcaster.InMemoryRegistry
	authenticator *auth.Authenticator
}

var defaultTestOptions = WebSocketOptions{
	AuthTimeout:    5 * time.Second,
	PingInterval:   time.Minute,
	SendBufferSize: 16,
	ReadLimit:      64 * 1024,
}

// newTestServer wires the relay against an in-memory sqlite store holding
// alice (u1) and bob (u2) as members of conv1 and conv2, and carol (u3) as a
// member of nothing.
func newTestServer(t *testing.T, options WebSocketOptions) *testServer {
	t.Helper()

	ctx := context.Background()
	logger := zap.NewNop()

	engine, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, engine.Setup(ctx))
	t.Cleanup(func() { engine.Close(ctx) })

	for _, user := range []chat.User{
		{Id: "u1", Name: "alice"},
		{Id: "u2", Name: "bob"},
		{Id: "u3", Name: "carol"},
	} {
		require.NoError(t, engine.UpsertUser(ctx, user))
	}
	require.NoError(t, engine.AddMembers(ctx, "conv1", "u1", "u2"))
	require.NoError(t, engine.AddMembers(ctx, "conv2", "u1", "u2"))

	registry := broadcaster.NewInMemoryRegistry(logger)
	localBus := bus.NewLocalBus(registry)
	authenticator := auth.NewAuthenticator(engine, auth.Options{
		Secret:  "test-secret",
		APIKeys: []string{"test-api-key"},
	})

	requestValidator := handler.NewRequestValidator()
	gate := membership.NewGate(engine)
	presence := handler.NewPresence(logger, localBus)

	sendMessageHandler := handler.NewSendMessageHandler(logger, requestValidator, gate, engine, localBus,
		handler.SendMessageOptions{PersistenceTimeout: 5 * time.Second, MaxContentLength: 10000})

	router := NewRouter(
		logger,
		handler.NewHeartbeatHandler(),
		handler.NewAuthHandler(logger, authenticator),
		handler.NewJoinHandler(logger, requestValidator, gate, registry, presence),
		handler.NewLeaveHandler(logger, requestValidator, gate, registry, presence),
		sendMessageHandler,
		handler.NewTypingHandler(requestValidator, gate, presence),
	)

	upgrader := &websocket.Upgrader{CheckOrigin: NewOriginChecker(nil).Check}
	websocketServer := NewWebSocketServer(logger, upgrader, registry, router, presence, options)
	restServer := NewRESTServer(logger, sendMessageHandler, registry, authenticator)

	mainRouter := mux.NewRouter()
	websocketServer.Register(mainRouter)
	restServer.Register(mainRouter)

	server := httptest.NewServer(mainRouter)
	t.Cleanup(server.Close)

	return &testServer{
		Server:        server,
		engine:        engine,
		registry:      registry,
		authenticator: authenticator,
	}
}

func (s *testServer) token(t *testing.T, userId string) string {
	t.Helper()

	token, err := s.authenticator.IssueToken(userId, time.Hour)
	require.NoError(t, err)

	return token
}
