package syncft

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/driveline/syncd/pkg/clog"
	"github.com/driveline/syncd/pkg/syncft/ft"
	"github.com/driveline/syncd/pkg/syncft/webapi"
	"github.com/driveline/syncd/pkg/syncft/webapi/apimiddleware"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type ServerOptions struct {
	Session      ft.SessionOptions
	IdleTimeout  time.Duration
	ResolveOwner apimiddleware.ResolveOwnerFN
	Logger       *clog.ContextLogger
}

// Server mounts the transfer endpoints on an echo instance. Init registers the
// routes, Start serves, Stop shuts the listener down and then closes every open
// session.
type Server struct {
	e       *echo.Echo
	storage *ft.StorageContext
	opts    ServerOptions
	ctx     context.Context
	cancel  context.CancelFunc
	ws      *webapi.WSController
}

func NewServer(e *echo.Echo, storage *ft.StorageContext, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = clog.Default()
	}

	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = ft.DefaultIdleTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		e:       e,
		storage: storage,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		ws:      webapi.NewWSController(ctx, storage, opts.Session, opts.IdleTimeout),
	}
}

func (s *Server) Init() error {
	if s.opts.ResolveOwner == nil {
		return errors.New("an owner resolver is required")
	}

	s.e.Use(middleware.Recover())
	s.e.Use(apimiddleware.RequestLogger())

	s.e.GET("/hello", func(c echo.Context) error {
		return c.String(http.StatusOK, "hello")
	})

	g := s.e.Group("/api", apimiddleware.OwnerAuth(apimiddleware.OwnerAuthConfig{
		ResolveOwner: s.opts.ResolveOwner,
	}))

	g.GET("/ws", s.ws.HandleTransferConnection)

	logController := webapi.NewLogController(s.opts.Logger)
	g.POST("/set-logging-level", logController.SetLogLevelHandler)
	g.POST("/set-logging-output", logController.SetLogOutputHandler)
	g.POST("/set-logging", logController.SetLoggingHandler)
	g.GET("/show-logging", logController.ShowCurrentLoggingHandler)

	filesController := webapi.NewFilesController(s.storage)
	g.GET("/files", filesController.IndexFiles)
	g.GET("/files/content", filesController.GetFileContent)

	transfersController := webapi.NewTransfersController(s.storage.Progress)
	g.GET("/transfers", transfersController.IndexTransfers)

	return nil
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop refuses new requests, closes every session so it records its progress,
// and waits for them.
func (s *Server) Stop(ctx context.Context) error {
	err := s.e.Shutdown(ctx)
	s.cancel()
	s.ws.Wait()
	return err
}
