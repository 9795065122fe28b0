package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"codedrop-go/internal/auth"
	"codedrop-go/internal/code"
	"codedrop-go/internal/compress"
	"codedrop-go/internal/config"
	"codedrop-go/internal/database"
	"codedrop-go/internal/session"
	"codedrop-go/internal/storage"
	"codedrop-go/internal/sweeper"
	"codedrop-go/internal/transfer"
	"codedrop-go/internal/user"
)

// Server wires the repositories, services and handlers behind one router.
type Server struct {
	config  *config.Config
	db      *database.DB
	store   storage.Provider
	sweeper *sweeper.Sweeper

	authService *auth.Service

	userHandler     *user.Handler
	codeHandler     *code.Handler
	transferHandler *transfer.Handler
}

// New builds the full dependency graph. The sweeper is constructed here but
// started by the caller, which also owns stopping it.
func New(cfg *config.Config, db *database.DB, store storage.Provider) (*Server, error) {
	userRepo := user.NewPostgresRepository(db.DB)
	codeRepo := code.NewPostgresRepository(db.DB)
	sessionRepo := session.NewPostgresRepository(db.DB)
	fileRepo := transfer.NewPostgresFileRepository(db.DB)
	tokenRepo := transfer.NewPostgresTokenRepository(db.DB)

	authService := auth.NewService(cfg.Secret)
	userService := user.NewService(userRepo)
	codeService := code.NewService(codeRepo)
	sessionService := session.NewService(sessionRepo, codeService)
	transferService := transfer.NewService(db, sessionService, sessionRepo,
		codeService, fileRepo, tokenRepo, store, cfg.PresignTTL, cfg.UploadMaxSize)
	compressService := compress.NewService(codeRepo, fileRepo, store, cfg.PresignTTL)

	sweep := sweeper.New(sessionRepo, codeRepo, fileRepo, store, cfg.SweepInterval)

	return &Server{
		config:          cfg,
		db:              db,
		store:           store,
		sweeper:         sweep,
		authService:     authService,
		userHandler:     user.NewHandler(userService, authService),
		codeHandler:     code.NewHandler(codeService),
		transferHandler: transfer.NewHandler(sessionService, transferService, compressService),
	}, nil
}

// Sweeper exposes the owned cleanup scheduler so the process boot can start
// and stop it.
func (s *Server) Sweeper() *sweeper.Sweeper {
	return s.sweeper
}

// Start builds the http.Server. Listening is left to the caller so shutdown
// stays in one place.
func (s *Server) Start() *http.Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	log.Info().
		Int("port", s.config.Port).
		Str("env", s.config.Env).
		Msg("starting server")

	return srv
}
