package federation

import (
	"context"

	"seventweets/pkg/types"
)

// PeerClient is the outbound side of the peer protocol. client.Client
// implements it over HTTP.
type PeerClient interface {
	// Register announces self to peer and returns the peer's registry snapshot
	Register(ctx context.Context, peer, self types.PeerIdentity) ([]types.PeerIdentity, error)

	// Deregister asks peer to forget the node called name
	Deregister(ctx context.Context, peer types.PeerIdentity, name string) error

	// Search runs criteria against the peer's local data only
	Search(ctx context.Context, peer types.PeerIdentity, criteria types.SearchCriteria) ([]types.Tweet, error)
}
