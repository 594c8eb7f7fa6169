package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"seventweets/pkg/client"
	"seventweets/pkg/federation"
	"seventweets/pkg/storage"
	"seventweets/pkg/types"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func parseTweetID(c echo.Context) (types.TweetID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return types.TweetID(id), true
}

func (s *Server) listTweets(c echo.Context) error {
	tweets, err := s.store.All(c.Request().Context())
	if err != nil {
		return s.internalError(c, "failed to list tweets", err)
	}
	return writeJSON(c, http.StatusOK, tweets)
}

func (s *Server) getTweet(c echo.Context) error {
	id, ok := parseTweetID(c)
	if !ok {
		return writeJSON(c, http.StatusNotFound, struct{}{})
	}

	t, err := s.store.Get(c.Request().Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return writeJSON(c, http.StatusNotFound, struct{}{})
	}
	if err != nil {
		return s.internalError(c, "failed to get tweet", err)
	}
	return writeJSON(c, http.StatusOK, t)
}

type saveTweetRequest struct {
	Tweet string `json:"tweet"`
}

func (s *Server) saveTweet(c echo.Context) error {
	var req saveTweetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, fmt.Errorf("invalid body: %w", err))
	}
	if strings.TrimSpace(req.Tweet) == "" {
		return badRequest(c, errors.New("tweet cannot be empty"))
	}

	t, err := s.store.Save(c.Request().Context(), req.Tweet)
	if err != nil {
		return s.internalError(c, "failed to save tweet", err)
	}
	return writeJSON(c, http.StatusCreated, t)
}

func (s *Server) deleteTweet(c echo.Context) error {
	id, ok := parseTweetID(c)
	if !ok {
		return writeJSON(c, http.StatusNotFound, struct{}{})
	}

	err := s.store.Delete(c.Request().Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return writeJSON(c, http.StatusNotFound, struct{}{})
	}
	if err != nil {
		return s.internalError(c, "failed to delete tweet", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func bindPeer(c echo.Context) (types.PeerIdentity, error) {
	var p types.PeerIdentity
	if err := c.Bind(&p); err != nil {
		return p, fmt.Errorf("invalid body: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// register records the calling node and hands back everything we know,
// ourselves included
func (s *Server) register(c echo.Context) error {
	peer, err := bindPeer(c)
	if err != nil {
		return badRequest(c, err)
	}

	if s.peers.Register(peer) {
		s.logger.Info("Registered peer", zap.String("peer", peer.String()))
	}
	return writeJSON(c, http.StatusOK, s.peers.Snapshot())
}

func (s *Server) unregister(c echo.Context) error {
	name := c.Param("name")
	if s.peers.Delete(name) {
		s.logger.Info("Deregistered peer", zap.String("name", name))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) searchTweets(c echo.Context) error {
	criteria, err := types.ParseSearchCriteria(c.QueryParams())
	if err != nil {
		return badRequest(c, err)
	}

	// peer calls already issued finish even if the client hangs up
	ctx := context.WithoutCancel(c.Request().Context())

	tweets, err := s.search.Search(ctx, criteria)
	if err != nil {
		return s.internalError(c, "failed to search tweets", err)
	}
	return writeJSON(c, http.StatusOK, tweets)
}

func (s *Server) joinNetwork(c echo.Context) error {
	seed, err := bindPeer(c)
	if err != nil {
		return badRequest(c, err)
	}

	// the handshake outlives a client that hangs up
	ctx := context.WithoutCancel(c.Request().Context())

	result, err := s.join.Join(ctx, seed)
	if errors.Is(err, federation.ErrSeedUnreachable) {
		return writeJSON(c, http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
	if err != nil {
		return badRequest(c, err)
	}

	return writeJSON(c, http.StatusOK, client.JoinResponse{
		Status:      "joined",
		Seed:        result.Seed,
		Peers:       result.Peers,
		Unreachable: result.Unreachable,
	})
}

func (s *Server) knownNodes(c echo.Context) error {
	return writeJSON(c, http.StatusOK, s.peers.Snapshot())
}

type healthResponse struct {
	Status    string `json:"status"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Peers     int    `json:"peers"`
	Storage   string `json:"storage"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) health(c echo.Context) error {
	self := s.peers.Self()

	resp := healthResponse{
		Status:    "healthy",
		Name:      self.Name,
		Address:   self.Address,
		Peers:     s.peers.Len(),
		Storage:   "ok",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	code := http.StatusOK
	if err := s.store.Ping(c.Request().Context()); err != nil {
		resp.Status = "degraded"
		resp.Storage = err.Error()
		code = http.StatusServiceUnavailable
	}
	return writeJSON(c, code, resp)
}

// liveness answers as long as the process can serve requests
func (s *Server) liveness(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// readiness requires a reachable storage backend
func (s *Server) readiness(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Warn("Readiness check failed", zap.Error(err))
		return c.String(http.StatusServiceUnavailable, "NOT READY")
	}
	return c.String(http.StatusOK, "READY")
}
