package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"

	"codedrop-go/internal/storage"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	tokenAuth := s.authService.GetAuth()
	r.Use(jwtauth.Verifier(tokenAuth))

	if s.config.Env == "dev" || s.config.Env == "development" {
		r.Use(middleware.NoCache)
	}

	// The transfer surface rides on the session cookie, so credentialed
	// cross-origin requests must be allowed.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(s.handleNotFound)

	// Public routes: anonymous transfer traffic plus account entry points.
	r.Group(func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/api/sweeper/status", s.handleSweeperStatus)

		r.Post("/api/auth/register", s.userHandler.HandleRegister)
		r.Post("/api/auth/login", s.userHandler.HandleLogin)

		r.Route("/api/transfer", func(r chi.Router) {
			r.Post("/verify", s.transferHandler.HandleVerify)
			r.Post("/heartbeat", s.transferHandler.HandleHeartbeat)
			r.Get("/files", s.transferHandler.HandleListFiles)

			r.Route("/upload", func(r chi.Router) {
				r.Post("/start", s.transferHandler.HandleStartUpload)
				r.Post("/url", s.transferHandler.HandleUploadURL)
				r.Post("/file", s.transferHandler.HandleCreateFile)
				r.Post("/complete", s.transferHandler.HandleCompleteUpload)
			})

			r.Post("/config", s.transferHandler.HandleConfig)

			r.Route("/download", func(r chi.Router) {
				r.Post("/urls", s.transferHandler.HandleDownloadURLs)
				r.Post("/compress", s.transferHandler.HandleCompress)
			})
		})

		// The local storage provider serves its own pre-signed destinations;
		// minio deployments handle these on the object store itself.
		if local, ok := s.store.(*storage.LocalProvider); ok {
			r.Post("/objects", local.HandlePut)
			r.Get("/objects", local.HandleGet)
		}
	})

	// Owner routes: code management behind JWT authentication.
	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Authenticator(tokenAuth))

		r.Route("/api/codes", func(r chi.Router) {
			r.Post("/", s.codeHandler.HandleCreate)
			r.Get("/", s.codeHandler.HandleList)
			r.Delete("/{codeID}", s.codeHandler.HandleDisable)
		})
	})

	return r
}
