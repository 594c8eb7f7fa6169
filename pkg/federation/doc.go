// Package federation holds the network side of a seventweets node: joining
// an existing network through a seed, fanning searches out to every known
// peer, and deregistering from peers on shutdown. Membership itself lives in
// the registry package; outbound calls go through a PeerClient.
package federation
