package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/studyhive/studyroom/internal/config"
	"github.com/studyhive/studyroom/internal/coordinator"
	"github.com/studyhive/studyroom/internal/database"
	"github.com/studyhive/studyroom/internal/session"
	"github.com/studyhive/studyroom/internal/stats"
)

type StudyRoomApp struct {
	log            *log.Logger
	db             database.StudyRoomRepository
	mux            *http.Server
	co             *coordinator.Coordinator
	directory      *session.Directory
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewStudyRoomApp(mux *http.ServeMux, logger *log.Logger, co *coordinator.Coordinator,
	directory *session.Directory, db database.StudyRoomRepository, sp stats.StatsProvider, cfg *config.Config) *StudyRoomApp {
	s := &StudyRoomApp{
		log:            logger,
		db:             db,
		co:             co,
		directory:      directory,
		stats:          sp,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("POST /api/sessions", s.authMiddleware(s.createSession))
	mux.Handle("DELETE /api/sessions", s.authMiddleware(s.closeSession))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRoom))
	mux.Handle("POST /api/rooms/join", s.authMiddleware(s.joinRoom))
	mux.Handle("POST /api/rooms/leave", s.authMiddleware(s.leaveRoom))
	mux.Handle("GET /api/participants", s.authMiddleware(s.getParticipants))
	mux.Handle("POST /api/attendance/status", s.authMiddleware(s.setStatus))
	mux.Handle("POST /api/attendance/focus-target", s.authMiddleware(s.setFocusTarget))
	mux.Handle("GET /api/attendance/history", s.authMiddleware(s.getAttendanceHistory))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *StudyRoomApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *StudyRoomApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
