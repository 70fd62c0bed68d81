package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Odillon241/Chronodil-sub001/internal/auth"
	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/bus"
	"github.com/Odillon241/Chronodil-sub001/internal/handler"
	"github.com/Odillon241/Chronodil-sub001/internal/membership"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence"
	"github.com/Odillon241/Chronodil-sub001/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	engine          persistence.Engine
	bus             bus.Bus
	registry        broadcaster.Registry
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(ctx context.Context, logger *zap.Logger, settings Settings) (*App, error) {
	engine, err := openPersistenceEngine(ctx, settings)
	if err != nil {
		return nil, err
	}

	err = engine.Setup(ctx)
	if err != nil {
		_ = engine.Close(ctx)
		return nil, err
	}

	registry := broadcaster.NewInMemoryRegistry(logger)

	roomBus, err := newBus(ctx, logger, settings, registry)
	if err != nil {
		_ = engine.Close(ctx)
		return nil, err
	}

	originChecker := server.NewOriginChecker(settings.AllowedOriginList())
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	authenticator := auth.NewAuthenticator(engine, auth.Options{
		Secret:   settings.JWTSecret,
		Audience: settings.JWTAudience,
		Issuer:   settings.JWTIssuer,
		APIKeys:  settings.APIKeyList(),
	})

	requestValidator := handler.NewRequestValidator()
	gate := membership.NewGate(engine)
	presence := handler.NewPresence(logger, roomBus)

	heartbeatHandler := handler.NewHeartbeatHandler()
	authHandler := handler.NewAuthHandler(logger, authenticator)
	joinHandler := handler.NewJoinHandler(logger, requestValidator, gate, registry, presence)
	leaveHandler := handler.NewLeaveHandler(logger, requestValidator, gate, registry, presence)
	typingHandler := handler.NewTypingHandler(requestValidator, gate, presence)
	sendMessageHandler := handler.NewSendMessageHandler(
		logger,
		requestValidator,
		gate,
		engine,
		roomBus,
		handler.SendMessageOptions{
			PersistenceTimeout: settings.PersistenceTimeout,
			MaxContentLength:   settings.MaxContentLength,
		},
	)

	router := server.NewRouter(
		logger,
		heartbeatHandler,
		authHandler,
		joinHandler,
		leaveHandler,
		sendMessageHandler,
		typingHandler,
	)

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		registry,
		router,
		presence,
		server.WebSocketOptions{
			AuthTimeout:    settings.AuthTimeout,
			PingInterval:   settings.PingInterval,
			SendBufferSize: settings.SendBufferSize,
			ReadLimit:      int64(settings.ReadLimit),
		},
	)
	restServer := server.NewRESTServer(
		logger,
		sendMessageHandler,
		registry,
		authenticator,
	)

	return &App{
		logger,
		settings,
		engine,
		roomBus,
		registry,
		websocketServer,
		restServer,
	}, nil
}

func newBus(ctx context.Context, logger *zap.Logger, settings Settings, registry broadcaster.Registry) (bus.Bus, error) {
	if settings.RedisURL == "" {
		return bus.NewLocalBus(registry), nil
	}

	client, err := bus.Connect(ctx, settings.RedisURL)
	if err != nil {
		return nil, err
	}

	logger.Info("sharing room events through redis",
		zap.String("channel", settings.RedisChannel))

	return bus.NewRedisBus(logger, client, settings.RedisChannel, registry), nil
}

// Run serves until SIGINT or SIGTERM, then shuts down.
func (a *App) Run(ctx context.Context) error {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	busErr := make(chan error, 1)
	go func() {
		busErr <- a.bus.Run(notifyCtx)
	}()

	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("starting http server",
		zap.String("address", address),
		zap.String("basePath", a.settings.BasePath),
		zap.String("persistenceDriver", a.settings.PersistenceDriver))

	serverErr := make(chan error, 1)
	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error

	select {
	case <-notifyCtx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	case err := <-busErr:
		if notifyCtx.Err() == nil {
			if err == nil {
				err = errors.New("bus stopped")
			}
			runErr = fmt.Errorf("room event bus failed: %w", err)
		}
	}

	return errors.Join(runErr, a.shutdown(httpServer))
}

// shutdown is a hard stop: live connections are closed without draining.
func (a *App) shutdown(httpServer *http.Server) error {
	a.logger.Info("stopping http server")

	closed := a.registry.CloseAll()
	a.logger.Info("closed live connections", zap.Int("connections", closed))

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http server shutdown failed",
			zap.Error(err))
	}

	err = errors.Join(err, a.bus.Close(), a.engine.Close(shutdownCtx))

	a.logger.Info("http server stopped")

	return err
}

func main() {
	err := newRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
