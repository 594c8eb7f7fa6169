// Package api is the HTTP boundary of a node. It decodes requests, applies
// the admission gate and maps core outcomes to status codes; it holds no
// state of its own.
package api

import (
	"net/http"
	"time"

	"seventweets/pkg/auth"
	"seventweets/pkg/client"
	"seventweets/pkg/federation"
	"seventweets/pkg/registry"
	"seventweets/pkg/storage"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Deps are the collaborators the boundary dispatches to
type Deps struct {
	Peers    *registry.PeerSet
	Store    storage.Store
	Search   *federation.FanoutSearch
	Join     *federation.JoinCoordinator
	Gate     *auth.Gate
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger

	// ProtectRegistry puts the registry endpoints behind the gate
	ProtectRegistry bool

	// RegistryRateLimit is the per client IP limit on POST /registry in
	// requests per second. Zero disables the limiter.
	RegistryRateLimit float64
}

// Server holds the echo instance with every route registered
type Server struct {
	Echo *echo.Echo

	peers  *registry.PeerSet
	store  storage.Store
	search *federation.FanoutSearch
	join   *federation.JoinCoordinator
	logger *zap.Logger

	started time.Time
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := deps.Gate
	if gate == nil {
		gate = auth.NewGate("", logger)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Echo:    e,
		peers:   deps.Peers,
		store:   deps.Store,
		search:  deps.Search,
		join:    deps.Join,
		logger:  logger,
		started: time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(client.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(s.requestLogger())

	protected := gate.Middleware()

	var registryMiddleware []echo.MiddlewareFunc
	if deps.ProtectRegistry {
		registryMiddleware = append(registryMiddleware, protected)
	}
	registerMiddleware := registryMiddleware
	if deps.RegistryRateLimit > 0 {
		registerMiddleware = append(registerMiddleware, registryRateLimiter(deps.RegistryRateLimit))
	}

	e.GET("/tweets", s.listTweets)
	e.GET("/tweets/:id", s.getTweet)
	e.POST("/tweets", s.saveTweet, protected)
	e.DELETE("/tweets/:id", s.deleteTweet, protected)

	e.POST("/registry", s.register, registerMiddleware...)
	e.DELETE("/registry/:name", s.unregister, registryMiddleware...)

	e.GET("/search", s.searchTweets)
	e.POST("/join_network", s.joinNetwork, protected)
	e.GET("/private/nodes", s.knownNodes, protected)

	e.GET("/health", s.health)
	e.GET("/health/live", s.liveness)
	e.GET("/health/ready", s.readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				s.logger.Warn("Request failed", fields...)
				return nil
			}
			s.logger.Debug("Request handled", fields...)
			return nil
		},
	})
}

func registryRateLimiter(limit float64) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(limit)),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return writeJSON(c, http.StatusForbidden, struct{}{})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return writeJSON(c, http.StatusTooManyRequests, struct{}{})
		},
	})
}

// writeJSON answers with the charset-qualified JSON content type used by
// every endpoint
func writeJSON(c echo.Context, code int, v interface{}) error {
	c.Response().Header().Set(echo.HeaderContentType, contentTypeJSON)
	return c.JSON(code, v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func badRequest(c echo.Context, err error) error {
	return writeJSON(c, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func (s *Server) internalError(c echo.Context, msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return writeJSON(c, http.StatusInternalServerError, errorResponse{Error: msg})
}
