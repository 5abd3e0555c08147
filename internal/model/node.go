// Package model defines the core data structures shared across the
// matchmaker: stream nodes, client sessions, the node control protocol
// envelope, and the HTTP response envelope.
package model

import "time"

// StreamNode represents a single pixel-streaming server registered with the
// matchmaker over the TCP control channel.
//
// A node serves at most one client at a time. It is eligible for a new
// assignment only when the streamer side is up, no client is attached, and
// its assignment cooldown has elapsed.
type StreamNode struct {
	// ID is the opaque identifier assigned at registration.
	ID string `json:"id"`

	// Address and Port form the endpoint clients connect to.
	// (Address, Port) is unique across the registry.
	Address string `json:"address"`
	Port    int    `json:"port"`

	// Secure indicates clients should use an encrypted transport (wss/https).
	Secure bool `json:"secure"`

	// ConnectedClients counts clients currently assigned or attached.
	// Never negative.
	ConnectedClients int `json:"connectedClients"`

	// LastPingAt is the time of the last keepalive from the node.
	LastPingAt time.Time `json:"lastPingAt"`

	// Ready is true iff the streamer process on the node is up.
	Ready bool `json:"ready"`

	// CooldownUntil blocks new assignments until this instant. Set when the
	// node is handed to a client so a second client cannot race onto it
	// before its clientConnected arrives.
	CooldownUntil time.Time `json:"cooldownUntil"`

	// Metadata carries opaque node-supplied key/value pairs.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// EligibleAt reports whether the node can accept a new assignment at now.
func (n *StreamNode) EligibleAt(now time.Time) bool {
	return n.Ready && n.ConnectedClients == 0 && !now.Before(n.CooldownUntil)
}

// Endpoint returns the "address:port" string clients dial.
func (n *StreamNode) Endpoint() string {
	return joinHostPort(n.Address, n.Port)
}
