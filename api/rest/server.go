// Package rest provides the REST API server for the orchestration engine.
package rest

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/paperforge/orchestrator/internal/config"
	"github.com/paperforge/orchestrator/internal/orchestrator"
)

// Server is the REST API server over an orchestrator.
type Server struct {
	app *fiber.App
	orc *orchestrator.Orchestrator
	cfg config.ServerConfig
}

// NewServer creates a REST API server.
func NewServer(orc *orchestrator.Orchestrator, cfg config.ServerConfig) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorHandler: errorHandler,
		AppName:      "Orchestrator API",
	})

	s := &Server{app: app, orc: orc, cfg: cfg}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	if s.cfg.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,DELETE,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept",
			MaxAge:       86400,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)
	s.app.Get("/ready", s.readyCheck)

	api := s.app.Group("/api/v1")

	api.Get("/status", s.getStatus)
	api.Get("/agents", s.listAgents)

	api.Post("/tasks", s.submitTask)
	api.Get("/tasks/:id", s.getTask)

	api.Post("/workflows", s.runWorkflow)
	api.Get("/workflows/:id/context", s.getWorkflowContext)
}

// Start starts the server and blocks until it exits.
func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Address)
}

// StartWithContext starts the server and shuts it down when ctx is cancelled.
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.app.Listen(s.cfg.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
