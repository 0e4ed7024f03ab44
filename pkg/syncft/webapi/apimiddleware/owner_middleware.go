package apimiddleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	DefaultTokenName = "auth-token"
	ownerKey         = "owner"
)

// ResolveOwnerFN maps an auth token to an owner id. An empty owner means the
// token is not recognised.
type ResolveOwnerFN func(token string) (string, error)

type OwnerAuthConfig struct {
	Skipper      middleware.Skipper
	TokenName    string
	ResolveOwner ResolveOwnerFN
}

// OwnerAuth rejects a request with 401 unless its token resolves to an owner.
// The token is looked for in a cookie, then a header, then a query parameter,
// all named TokenName.
func OwnerAuth(config OwnerAuthConfig) echo.MiddlewareFunc {
	if config.Skipper == nil {
		config.Skipper = middleware.DefaultSkipper
	}

	if config.TokenName == "" {
		config.TokenName = DefaultTokenName
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			token, err := getTokenFromRequest(config.TokenName, c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			owner, err := config.ResolveOwner(token)
			switch {
			case err != nil:
				return echo.ErrUnauthorized
			case owner == "":
				return echo.ErrUnauthorized
			default:
				c.Set(ownerKey, owner)
				return next(c)
			}
		}
	}
}

// OwnerFromContext returns the owner OwnerAuth resolved for this request.
func OwnerFromContext(c echo.Context) (string, bool) {
	owner, ok := c.Get(ownerKey).(string)
	return owner, ok && owner != ""
}

// StaticTokens resolves owners from a fixed token table.
func StaticTokens(tokens map[string]string) ResolveOwnerFN {
	return func(token string) (string, error) {
		owner, ok := tokens[token]
		if !ok {
			return "", fmt.Errorf("unknown token")
		}
		return owner, nil
	}
}

func getTokenFromRequest(key string, c echo.Context) (string, error) {
	if cookie, err := c.Cookie(key); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if value := c.Request().Header.Get(key); value != "" {
		return value, nil
	}

	if value := c.QueryParam(key); value != "" {
		return value, nil
	}

	return "", fmt.Errorf("no token '%s' as cookie, header or query param", key)
}
