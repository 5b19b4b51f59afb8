package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/chatdepot/chatdepot/internal/chat"
	"github.com/chatdepot/chatdepot/internal/config"
	"github.com/gorilla/handlers"
)

type ChatDepotApp struct {
	log  *log.Logger
	chat chat.RoomService
	mux  *http.Server
}

func NewChatDepotApp(mux *http.ServeMux, logger *log.Logger, svc chat.RoomService, cfg *config.Config) *ChatDepotApp {
	s := &ChatDepotApp{
		log:  logger,
		chat: svc,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/rooms/{room}/ensure", s.ensureRoom)
	mux.HandleFunc("GET /api/rooms/approve", s.approveRoom)
	mux.HandleFunc("GET /api/rooms/deny", s.denyRoom)
	mux.HandleFunc("GET /api/verify", s.confirmDevice)
	mux.HandleFunc("POST /api/rooms/{room}/messages", s.sendMessage)
	mux.HandleFunc("GET /api/rooms/{room}/messages", s.getHistory)
	mux.HandleFunc("DELETE /api/rooms/{room}/messages/{id}", s.deleteMessage)
	mux.HandleFunc("POST /api/rooms/{room}/heartbeat", s.heartbeat)
	mux.HandleFunc("GET /api/rooms/{room}/online", s.onlineCount)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatDepotApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatDepotApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
