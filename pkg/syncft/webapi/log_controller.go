package webapi

import (
	"net/http"
	"sync"

	"github.com/driveline/syncd/pkg/clog"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// LogController changes logging levels and outputs at runtime. Requests name a
// logging context ("global", "transfer", "http", ...); an empty context means
// global.
type LogController struct {
	mu     sync.Mutex
	logger *clog.ContextLogger
}

func NewLogController(logger *clog.ContextLogger) *LogController {
	return &LogController{logger: logger}
}

type loggingRequest struct {
	Context   string `json:"context"`
	LogLevel  string `json:"log_level"`
	LogOutput string `json:"log_output"`
}

func (r *loggingRequest) ctx() string {
	if r.Context == "" {
		return clog.GlobalLoggerCtx
	}
	return r.Context
}

func (c *LogController) SetLoggingHandler(ctx echo.Context) error {
	var req loggingRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if req.LogLevel == "" && req.LogOutput == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "log_level or log_output is required")
	}

	if req.LogLevel != "" {
		if err := c.setLoggingLevel(req.ctx(), req.LogLevel); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	if req.LogOutput != "" {
		if err := c.setLoggingOutput(req.ctx(), req.LogOutput); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	return ctx.JSON(http.StatusOK, c.logger.Contexts())
}

func (c *LogController) SetLogLevelHandler(ctx echo.Context) error {
	var req loggingRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setLoggingLevel(req.ctx(), req.LogLevel); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ctx.JSON(http.StatusOK, c.logger.Contexts())
}

func (c *LogController) SetLogOutputHandler(ctx echo.Context) error {
	var req loggingRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setLoggingOutput(req.ctx(), req.LogOutput); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ctx.JSON(http.StatusOK, c.logger.Contexts())
}

func (c *LogController) ShowCurrentLoggingHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.logger.Contexts())
}

func (c *LogController) setLoggingLevel(logCtx, logLevel string) error {
	if err := c.logger.SetLevelFromString(logCtx, logLevel); err != nil {
		return errors.Wrapf(err, "invalid log level %s", logLevel)
	}

	return nil
}

func (c *LogController) setLoggingOutput(logCtx, logOutput string) error {
	if logOutput == "" {
		return errors.New("log_output is required")
	}

	w, err := clog.OpenOutput(logOutput)
	if err != nil {
		return errors.Wrapf(err, "failed to open log output %s", logOutput)
	}

	if err := c.logger.SetOutput(logCtx, w, logOutput); err != nil {
		if logOutput != "stdout" && logOutput != "stderr" {
			_ = w.Close()
		}
		return errors.Wrapf(err, "failed to set output for %s", logCtx)
	}

	return nil
}
