package webapi

import (
	"net/http"

	"github.com/driveline/syncd/pkg/syncft/ft"
	"github.com/labstack/echo/v4"
)

// TransfersController reports in-flight transfers. It only reads the progress
// tracker.
type TransfersController struct {
	tracker *ft.ProgressTracker
}

func NewTransfersController(tracker *ft.ProgressTracker) *TransfersController {
	return &TransfersController{tracker: tracker}
}

func (c *TransfersController) IndexTransfers(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.tracker.List())
}
