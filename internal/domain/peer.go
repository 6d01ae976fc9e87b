package domain

import (
	ocpi "github.com/julianfickerseq/ocpi-server"
)

// Peer is one registered counterparty, keyed by the token this party issued
// to it. Exactly one record exists per local token, and at most one active
// record per peer URL; tokens are never reused after deletion.
type Peer struct {
	// Token is the locally issued credential the peer presents on inbound
	// calls.
	Token string `json:"token"`
	// URL is the peer's versions endpoint.
	URL string `json:"url"`
	// OutboundToken is the credential this party presents when calling the
	// peer. Empty until the handshake completed.
	OutboundToken string `json:"outbound_token"`
	// Endpoints is the peer's advertised module catalogue, unique by
	// identifier. May be empty when version discovery failed during
	// registration; resolution then degrades until re-registration.
	Endpoints []ocpi.Endpoint `json:"endpoints"`
	// Role is the privilege class granted to the peer.
	Role ocpi.Role `json:"role"`
	// AllowedLocations restricts visibility for scoped roles. Nil means
	// unrestricted.
	AllowedLocations []string `json:"allowed_locations,omitempty"`
}

// ModuleEndpoint returns the peer's advertised URL for a module.
func (p Peer) ModuleEndpoint(module ocpi.ModuleID) (string, bool) {
	for _, ep := range p.Endpoints {
		if ep.Identifier == module {
			return ep.URL, true
		}
	}
	return "", false
}

// Scoped reports whether the peer's visibility is restricted to named
// locations. Only SCSP tokens carry a location scope; unrestricted roles
// bypass the check entirely.
func (p Peer) Scoped() bool {
	return p.Role == ocpi.RoleSCSP
}

// LocationAllowed reports whether the peer may address the given location.
// A scoped peer without named locations is unrestricted, matching the list
// filter.
func (p Peer) LocationAllowed(locationID string) bool {
	if !p.Scoped() || len(p.AllowedLocations) == 0 {
		return true
	}
	for _, id := range p.AllowedLocations {
		if id == locationID {
			return true
		}
	}
	return false
}

// VisibleLocations returns the location filter to apply to list queries for
// this peer. Nil means unrestricted.
func (p Peer) VisibleLocations() []string {
	if !p.Scoped() || len(p.AllowedLocations) == 0 {
		return nil
	}
	return p.AllowedLocations
}
