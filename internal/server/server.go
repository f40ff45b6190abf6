package server

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"net/http"
	"sessionchat/internal/chat"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	afterShutdown []func()
}

// NewServer returns Server exposing chat.Service operations as JSON over HTTP POST endpoints
func NewServer(logger *zap.SugaredLogger, svc *chat.Service, opts ...Option) (*Server, error) {
	h := &handler{logger: logger, svc: svc}

	c := &config{
		httpServer: &http.Server{Addr: EnvConfig{Host: "0.0.0.0", Port: 9000}.addr()},
		handlers: map[string]http.Handler{
			"/users/add":       http.HandlerFunc(h.createUser),
			"/users/me":        http.HandlerFunc(h.currentUser),
			"/users/logout":    http.HandlerFunc(h.logoutUser),
			"/users/presence":  http.HandlerFunc(h.updatePresence),
			"/users/online":    http.HandlerFunc(h.onlineUsers),
			"/groups/add":      http.HandlerFunc(h.createGroup),
			"/groups/join":     http.HandlerFunc(h.joinGroup),
			"/groups/leave":    http.HandlerFunc(h.leaveGroup),
			"/groups/public":   http.HandlerFunc(h.publicGroups),
			"/groups/mine":     http.HandlerFunc(h.userGroups),
			"/messages/add":    http.HandlerFunc(h.sendMessage),
			"/messages/seen":   http.HandlerFunc(h.markChatSeen),
			"/messages/get":    http.HandlerFunc(h.chatHistory),
			"/messages/unread": http.HandlerFunc(h.unreadCount),
			"/chats/get":       http.HandlerFunc(h.activeChats),
			"/typing/set":      http.HandlerFunc(h.setTyping),
			"/typing/get":      http.HandlerFunc(h.typingIndicators),
		},
	}

	for _, opt := range opts {
		opt.apply(c)
	}

	// order matters: log wraps enforcePostJson so rejected requests are logged too
	for _, opt := range []Option{applyEnforcePostJson(), applyLog(logger.Desugar()), registerHandlers()} {
		opt.apply(c)
	}

	return &Server{
		logger:        logger,
		httpServer:    c.httpServer,
		afterShutdown: c.afterShutdown,
	}, nil
}

// Handler returns the root http.Handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and shuts it down gracefully once ctx is done
func (s *Server) Start(ctx context.Context) error {
	idleConnsClosed := make(chan struct{})

	go func() {
		<-ctx.Done()

		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		for _, f := range s.afterShutdown {
			f()
		}

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	return nil
}
