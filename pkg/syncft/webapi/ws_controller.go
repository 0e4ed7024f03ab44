package webapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/driveline/syncd/pkg/clog"
	"github.com/driveline/syncd/pkg/syncft/ft"
	"github.com/driveline/syncd/pkg/syncft/webapi/apimiddleware"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WSController upgrades authenticated requests to websockets and runs one
// transfer session per connection.
type WSController struct {
	ctx         context.Context
	storage     *ft.StorageContext
	opts        ft.SessionOptions
	idleTimeout time.Duration
	upgrader    websocket.Upgrader
	sessions    sync.WaitGroup
}

// NewWSController ties session lifetimes to ctx: cancelling it closes every open
// connection.
func NewWSController(ctx context.Context, storage *ft.StorageContext, opts ft.SessionOptions, idleTimeout time.Duration) *WSController {
	if idleTimeout <= 0 {
		idleTimeout = ft.DefaultIdleTimeout
	}

	return &WSController{
		ctx:         ctx,
		storage:     storage,
		opts:        opts,
		idleTimeout: idleTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 4 << 10,
		},
	}
}

func (c *WSController) HandleTransferConnection(ctx echo.Context) error {
	owner, ok := apimiddleware.OwnerFromContext(ctx)
	if !ok {
		return echo.ErrUnauthorized
	}

	c.sessions.Add(1)
	defer c.sessions.Done()

	ws, err := c.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// The upgrader has already answered the request.
		clog.UsingCtx(clog.HTTPCtx).WithError(err).Warn("Websocket upgrade failed")
		return nil
	}

	conn := ft.NewKeepaliveConn(ws, c.idleTimeout)
	defer conn.Close()

	session, err := ft.NewSession(owner, conn, c.storage, c.opts)
	if err != nil {
		clog.UsingCtx(clog.TransferCtx).WithError(err).Error("Unable to start session")
		return nil
	}

	if err := session.Run(c.ctx); err != nil && !errors.Is(err, ft.ErrDisconnected) {
		clog.UsingCtx(clog.TransferCtx).WithError(err).WithField("session", session.ID).Error("Session failed")
	}

	return nil
}

// Wait blocks until every session has ended.
func (c *WSController) Wait() {
	c.sessions.Wait()
}
