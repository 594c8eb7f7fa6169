// Package auth admits or rejects calls to protected endpoints based on a
// shared secret presented in the X-Api-Token header.
package auth

import (
	"crypto/subtle"
	"net/http"

	"seventweets/pkg/types"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Gate checks the API token of incoming requests. A gate created with an
// empty token admits every call.
type Gate struct {
	token  []byte
	logger *zap.Logger
}

func NewGate(token string, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}

	if token == "" {
		logger.Warn("No API token configured, protected endpoints are open to everyone")
	}

	return &Gate{token: []byte(token), logger: logger}
}

// Open reports whether the gate admits every call
func (g *Gate) Open() bool {
	return len(g.token) == 0
}

// Admit reports whether presented matches the configured token
func (g *Gate) Admit(presented string) bool {
	if g.Open() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), g.token) == 1
}

// Middleware rejects requests without a valid token with 401 and an empty
// JSON object
func (g *Gate) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if g.Admit(c.Request().Header.Get(types.HeaderAPIToken)) {
				return next(c)
			}

			g.logger.Debug("Rejected unauthenticated request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.String("remote", c.RealIP()))
			return c.JSON(http.StatusUnauthorized, struct{}{})
		}
	}
}
