// Package client talks to other seventweets nodes over their HTTP API. The
// node uses it for peer calls (registry, search) and the CLI uses it to drive
// a running node (join, known nodes, post).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"seventweets/pkg/types"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single call when no timeout is configured
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps how much of a failed response ends up in a StatusError
const maxErrorBody = 512

// StatusError is returned when a node answers with a non-2xx status
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client issues JSON calls against node endpoints. It is safe for concurrent use.
type Client struct {
	http   *http.Client
	token  string
	logger *zap.Logger
}

// NewClient creates a client whose calls are bounded by timeout. A non-empty
// token is presented in the X-Api-Token header on every call.
func NewClient(timeout time.Duration, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		http:   &http.Client{Timeout: timeout},
		token:  token,
		logger: logger,
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id that is forwarded on outbound calls
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id set by WithRequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Register announces self to peer and returns the peer's registry snapshot
func (c *Client) Register(ctx context.Context, peer, self types.PeerIdentity) ([]types.PeerIdentity, error) {
	var snapshot []types.PeerIdentity
	if err := c.do(ctx, http.MethodPost, peer.URL("/registry"), self, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Deregister asks peer to forget the node called name
func (c *Client) Deregister(ctx context.Context, peer types.PeerIdentity, name string) error {
	return c.do(ctx, http.MethodDelete, peer.URL("/registry/"+url.PathEscape(name)), nil, nil)
}

// Search runs criteria against peer's local data. The global flag is never
// forwarded, so the peer does not fan out any further.
func (c *Client) Search(ctx context.Context, peer types.PeerIdentity, criteria types.SearchCriteria) ([]types.Tweet, error) {
	return c.search(ctx, peer, criteria.Values())
}

// GlobalSearch asks node to search its whole one-hop network
func (c *Client) GlobalSearch(ctx context.Context, node types.PeerIdentity, criteria types.SearchCriteria) ([]types.Tweet, error) {
	q := criteria.Values()
	q.Set(types.ParamAll, "1")
	return c.search(ctx, node, q)
}

func (c *Client) search(ctx context.Context, node types.PeerIdentity, q url.Values) ([]types.Tweet, error) {
	target := node.URL("/search")
	if encoded := q.Encode(); encoded != "" {
		target += "?" + encoded
	}

	var tweets []types.Tweet
	if err := c.do(ctx, http.MethodGet, target, nil, &tweets); err != nil {
		return nil, err
	}
	return tweets, nil
}

// JoinResponse is the body of a successful join_network call
type JoinResponse struct {
	Status      string               `json:"status"`
	Seed        types.PeerIdentity   `json:"seed"`
	Peers       []types.PeerIdentity `json:"peers"`
	Unreachable []types.PeerIdentity `json:"unreachable,omitempty"`
}

// Join instructs node to join the network through seed
func (c *Client) Join(ctx context.Context, node, seed types.PeerIdentity) (*JoinResponse, error) {
	var resp JoinResponse
	if err := c.do(ctx, http.MethodPost, node.URL("/join_network"), seed, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// KnownNodes returns node's registry snapshot, node itself included
func (c *Client) KnownNodes(ctx context.Context, node types.PeerIdentity) ([]types.PeerIdentity, error) {
	var nodes []types.PeerIdentity
	if err := c.do(ctx, http.MethodGet, node.URL("/private/nodes"), nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// PostTweet stores content as a new tweet on node
func (c *Client) PostTweet(ctx context.Context, node types.PeerIdentity, content string) (*types.Tweet, error) {
	var t types.Tweet
	body := map[string]string{"tweet": content}
	if err := c.do(ctx, http.MethodPost, node.URL("/tweets"), body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Tweets lists every tweet stored on node
func (c *Client) Tweets(ctx context.Context, node types.PeerIdentity) ([]types.Tweet, error) {
	var tweets []types.Tweet
	if err := c.do(ctx, http.MethodGet, node.URL("/tweets"), nil, &tweets); err != nil {
		return nil, err
	}
	return tweets, nil
}

func (c *Client) do(ctx context.Context, method, target string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if c.token != "" {
		req.Header.Set(types.HeaderAPIToken, c.token)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		req.Header.Set(types.HeaderRequestID, id)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Peer call finished",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return nil
}
