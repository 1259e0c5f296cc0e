package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	mid "github.com/graphmill/graphmill/internal/server/middleware"
	"github.com/graphmill/graphmill/pkg/logger"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// Server is the HTTP surface over the queue. Dependencies arrive fully
// constructed; the server owns nothing but the echo instance.
//
// A Server should be created using NewServer.
type Server struct {
	echo *echo.Echo
	port string
}

// NewServerParams contains the dependencies of a Server.
type NewServerParams struct {
	App  *mid.App
	Port string
}

// NewServer creates a server with all middleware and routes registered.
func NewServer(params NewServerParams) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(params.App))
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestLogger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.BodyLimit("8M"))

	RegisterRoutes(e)

	port := params.Port
	if port == "" {
		port = "8080"
	}

	return &Server{echo: e, port: port}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", s.port)
		if err := s.echo.Start(":" + s.port); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
		return err
	}
	return nil
}
