package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pulpit-ai/pulpit/internal/api/handlers"
	appMiddleware "github.com/pulpit-ai/pulpit/internal/api/middlewares"
	"github.com/pulpit-ai/pulpit/internal/chat"
	"github.com/pulpit-ai/pulpit/internal/config"
	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/sermon"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, obj core.ObjectClient, pipeline *sermon.Pipeline, chatRouter *chat.Router) *Server {
	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	pipelineHandler := handlers.NewPipelineHandler(pipeline, cfg.MaxUploadBytes)
	sermonHandler := handlers.NewSermonHandler(db, obj, cfg.BucketName)
	chatHandler := handlers.NewChatHandler(chatRouter)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWT(cfg.JWTSecret))

			protected.Post("/upload", pipelineHandler.Upload)
			protected.Post("/process-sermon/{id}/parse", pipelineHandler.Parse)
			protected.Post("/process-sermon/{id}/vectorize", pipelineHandler.Vectorize)
			protected.Post("/process-sermon/{id}/store", pipelineHandler.Store)

			protected.Get("/sermons", sermonHandler.List)
			protected.Get("/sermons/{id}", sermonHandler.Get)
			protected.Patch("/sermons/{id}", sermonHandler.Patch)
			protected.Delete("/sermons/{id}", sermonHandler.Delete)
			protected.Get("/pdf", sermonHandler.SignedPDF)

			protected.Post("/chat", chatHandler.Chat)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
