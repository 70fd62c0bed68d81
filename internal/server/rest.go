package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Odillon241/Chronodil-sub001/internal/auth"
	"github.com/Odillon241/Chronodil-sub001/internal/broadcaster"
	"github.com/Odillon241/Chronodil-sub001/internal/handler"
	"github.com/Odillon241/Chronodil-sub001/internal/ierr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RESTServer struct {
	logger *zap.Logger

	sendMessageHandler handler.SendMessageHandlerInterface
	registry           broadcaster.Registry
	authenticator      *auth.Authenticator
}

func NewRESTServer(
	logger *zap.Logger,
	sendMessageHandler handler.SendMessageHandlerInterface,
	registry broadcaster.Registry,
	authenticator *auth.Authenticator,
) *RESTServer {
	return &RESTServer{
		logger,
		sendMessageHandler,
		registry,
		authenticator,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(mux.CORSMethodMiddleware(api), s.cors, s.requireAPIKey)

	api.HandleFunc("/messages", s.sendMessage).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.registry.Stats())
	}).Methods(http.MethodGet, http.MethodOptions)
}

func (s *RESTServer) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req handler.SendMessageRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		s.writeError(w, ierr.New(ierr.ErrorCodeInvalidPayload, errors.New("invalid request body")))
		return
	}

	message, err := s.sendMessageHandler.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, message)
}

func (s *RESTServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		// preflight never reaches the API key check
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *RESTServer) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

		authentication, err := s.authenticator.AuthenticateAPIKey(apiKey)
		if err != nil {
			s.writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithAuthentication(r.Context(), authentication)))
	})
}

func (s *RESTServer) writeError(w http.ResponseWriter, err error) {
	var handlerErr ierr.Error
	if !errors.As(err, &handlerErr) {
		s.logger.Error("error in rest handler", zap.Error(err))
		handlerErr = ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
	}

	s.writeJSON(w, statusOf(handlerErr.Code), handlerErr)
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func statusOf(code ierr.ErrorCode) int {
	switch code {
	case ierr.ErrorCodeInvalidArgument, ierr.ErrorCodeInvalidPayload:
		return http.StatusBadRequest
	case ierr.ErrorCodeUnauthenticated, ierr.ErrorCodeNotAuthenticated:
		return http.StatusUnauthorized
	case ierr.ErrorCodeNotMember, ierr.ErrorCodePermissionDenied:
		return http.StatusForbidden
	case ierr.ErrorCodeUnknownSubject:
		return http.StatusNotFound
	case ierr.ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	case ierr.ErrorCodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
