package apimiddleware

import (
	"github.com/apex/log"
	"github.com/driveline/syncd/pkg/clog"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RequestLogger logs one line per request to the http logging context.
func RequestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := clog.UsingCtx(clog.HTTPCtx).WithFields(log.Fields{
				"method":  v.Method,
				"path":    v.URIPath,
				"status":  v.Status,
				"latency": v.Latency,
				"remote":  v.RemoteIP,
			})

			if owner, ok := OwnerFromContext(c); ok {
				entry = entry.WithField("owner", owner)
			}

			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}

			entry.Info("request")
			return nil
		},
	})
}
