package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/handler"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

type WebSocketOptions struct {
	AuthTimeout    time.Duration
	PingInterval   time.Duration
	SendBufferSize int
	ReadLimit      int64
}

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader
	registry broadcaster.Registry
	router   *Router
	presence *handler.Presence
	options  WebSocketOptions
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	registry broadcaster.Registry,
	router *Router,
	presence *handler.Presence,
	options WebSocketOptions,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		registry,
		router,
		presence,
		options,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/websocket", s.serve).Methods(http.MethodGet)
}

func (s *WebSocketServer) serve(w http.ResponseWriter, r *http.Request) {
	handshakeToken := tokenFromRequest(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connection := broadcaster.NewConnection(gonanoid.Must(), s.options.SendBufferSize)
	logger := s.logger.With(
		zap.String("connectionId", connection.Id),
		zap.String("clientIp", clientIp(r)))

	s.registry.Connect(connection)
	logger.Info("websocket connection established")

	writerDone := make(chan struct{})
	go s.writePump(conn, connection, logger, writerDone)

	ctx := broadcaster.WithConnection(r.Context(), connection)

	if handshakeToken != "" {
		reply := s.router.Authenticate(ctx, handshakeToken)
		if !s.deliver(connection, logger, reply) {
			s.disconnect(connection, logger, writerDone)
			return
		}
	}

	if !connection.IsAuthenticated() && s.options.AuthTimeout > 0 {
		authTimer := time.AfterFunc(s.options.AuthTimeout, func() {
			if connection.IsAuthenticated() {
				return
			}

			logger.Info("closing connection that did not authenticate in time")

			_ = connection.DeliverEvent(protocol.NewAuthErrorEvent("authentication timeout"))
			connection.Close()
		})
		defer authTimer.Stop()
	}

	s.readPump(ctx, conn, connection, logger)
	s.disconnect(connection, logger, writerDone)
}

// readPump processes inbound events one at a time, in the order received.
func (s *WebSocketServer) readPump(
	ctx context.Context,
	conn *websocket.Conn,
	connection *broadcaster.Connection,
	logger *zap.Logger,
) {
	pongWait := 2 * s.options.PingInterval

	if s.options.ReadLimit > 0 {
		conn.SetReadLimit(s.options.ReadLimit)
	}

	extendReadDeadline := func() {
		if pongWait > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}

	extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		extendReadDeadline()
		return nil
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				logger.Info("websocket read failed", zap.Error(err))
			}
			return
		}

		extendReadDeadline()

		if !s.deliver(connection, logger, s.router.Route(ctx, payload)) {
			return
		}
	}
}

// deliver queues the reply and reports whether the connection stays open.
func (s *WebSocketServer) deliver(connection *broadcaster.Connection, logger *zap.Logger, reply Reply) bool {
	if reply.Event != nil {
		err := connection.DeliverEvent(reply.Event)
		if err != nil {
			logger.Debug("failed to queue reply", zap.Error(err))
			return false
		}
	}

	if reply.Close {
		connection.Close()
		return false
	}

	return !connection.IsClosed()
}

// writePump is the only writer of conn. It exits, closing conn, once the
// outbound queue is closed or a write fails.
func (s *WebSocketServer) writePump(
	conn *websocket.Conn,
	connection *broadcaster.Connection,
	logger *zap.Logger,
	done chan<- struct{},
) {
	defer close(done)
	defer conn.Close()

	var pings <-chan time.Time
	if s.options.PingInterval > 0 {
		ticker := time.NewTicker(s.options.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case frame, ok := <-connection.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-pings:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *WebSocketServer) disconnect(connection *broadcaster.Connection, logger *zap.Logger, writerDone <-chan struct{}) {
	identity := connection.Identity()
	conversationIds := s.registry.Disconnect(connection.Id)
	// the registry may already have dropped it during shutdown
	connection.Close()

	s.presence.AnnounceDisconnect(context.Background(), identity, connection.Id, conversationIds)

	<-writerDone

	logger.Info("websocket connection closed", zap.Int("rooms", len(conversationIds)))
}

func tokenFromRequest(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	return r.URL.Query().Get("token")
}

func clientIp(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
