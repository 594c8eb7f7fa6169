package types

import (
	"fmt"
	"strings"
	"time"
)

// Headers shared by the node's endpoints and its outbound client
const (
	HeaderAPIToken  = "X-Api-Token"
	HeaderRequestID = "X-Request-Id"
)

type TweetID int64

// PeerIdentity identifies a node in the network. Name is the logical
// network identity, Address is host:port or an FQDN used for outbound calls.
type PeerIdentity struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// ParsePeerIdentity parses the name@address form used on the command line
// (e.g. alice@alice.example.com:8000).
func ParsePeerIdentity(s string) (PeerIdentity, error) {
	if s == "" {
		return PeerIdentity{}, fmt.Errorf("peer cannot be empty")
	}

	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 {
		return PeerIdentity{}, fmt.Errorf("invalid peer format %q: expected name@address", s)
	}

	p := PeerIdentity{Name: parts[0], Address: parts[1]}
	if err := p.Validate(); err != nil {
		return PeerIdentity{}, err
	}
	return p, nil
}

// Validate checks that both the name and the address are present
func (p PeerIdentity) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("peer name cannot be empty")
	}
	if strings.TrimSpace(p.Address) == "" {
		return fmt.Errorf("peer address cannot be empty")
	}
	if strings.ContainsAny(p.Name, "/@") {
		return fmt.Errorf("peer name cannot contain '/' or '@'")
	}
	return nil
}

// String returns the name@address form
func (p PeerIdentity) String() string {
	return p.Name + "@" + p.Address
}

// URL builds an outbound URL for path on this peer. Addresses without a
// scheme are reached over plain http.
func (p PeerIdentity) URL(path string) string {
	base := strings.TrimSuffix(p.Address, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return base + path
}

// Tweet is the record a node serves. Name is the name of the node the tweet
// originates from.
type Tweet struct {
	ID        TweetID   `json:"id"`
	Name      string    `json:"name"`
	Tweet     string    `json:"tweet"`
	CreatedAt time.Time `json:"created_at"`
}

func (t Tweet) String() string {
	return t.Tweet
}
