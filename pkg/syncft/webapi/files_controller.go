package webapi

import (
	"errors"
	"net/http"
	"path"

	"github.com/driveline/syncd/pkg/syncdb/stor"
	"github.com/driveline/syncd/pkg/syncft/ft"
	"github.com/driveline/syncd/pkg/syncft/webapi/apimiddleware"
	"github.com/driveline/syncd/pkg/syncft/wire"
	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"
)

type FilesController struct {
	storage *ft.StorageContext
}

func NewFilesController(storage *ft.StorageContext) *FilesController {
	return &FilesController{storage: storage}
}

func (c *FilesController) IndexFiles(ctx echo.Context) error {
	owner, ok := apimiddleware.OwnerFromContext(ctx)
	if !ok {
		return echo.ErrUnauthorized
	}

	records, err := c.storage.ListFiles(ctx.Request().Context(), owner)
	if err != nil {
		return pkgerrors.Wrapf(err, "listing files for %s", owner)
	}

	return ctx.JSON(http.StatusOK, records)
}

// GetFileContent streams a fully synced file. Range requests are honoured.
func (c *FilesController) GetFileContent(ctx echo.Context) error {
	owner, ok := apimiddleware.OwnerFromContext(ctx)
	if !ok {
		return echo.ErrUnauthorized
	}

	name := ctx.QueryParam("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	dir := wire.CleanDirectory(ctx.QueryParam("directory"))

	record, r, err := c.storage.OpenBlob(ctx.Request().Context(), owner, dir, name)
	switch {
	case errors.Is(err, stor.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ft.ErrNotReady):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return pkgerrors.Wrapf(err, "opening %s for %s", path.Join(dir, name), owner)
	}
	defer r.Close()

	ctx.Response().Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	ctx.Response().Header().Set("X-Content-Hash", record.ContentHash)
	http.ServeContent(ctx.Response(), ctx.Request(), record.Name, record.RecordCreateTime, r)

	return nil
}
