package domain

import (
	"testing"

	ocpi "github.com/julianfickerseq/ocpi-server"
)

func TestScopedPeerWithoutLocationsIsUnrestricted(t *testing.T) {
	peer := Peer{Token: "scsp-token", Role: ocpi.RoleSCSP}

	if !peer.LocationAllowed("LOC1") {
		t.Fatalf("expected item access without a named scope to be unrestricted")
	}
	if visible := peer.VisibleLocations(); visible != nil {
		t.Fatalf("expected no list filter without a named scope, got %v", visible)
	}
}

func TestScopedPeerFiltersToNamedLocations(t *testing.T) {
	peer := Peer{Token: "scsp-token", Role: ocpi.RoleSCSP, AllowedLocations: []string{"LOC1"}}

	if !peer.LocationAllowed("LOC1") {
		t.Fatalf("expected access to a named location")
	}
	if peer.LocationAllowed("LOC2") {
		t.Fatalf("expected access outside the named scope to be denied")
	}
	if visible := peer.VisibleLocations(); len(visible) != 1 || visible[0] != "LOC1" {
		t.Fatalf("unexpected list filter: %v", visible)
	}
}

func TestUnscopedRolesBypassLocationScope(t *testing.T) {
	peer := Peer{Token: "emsp-token", Role: ocpi.RoleEMSP, AllowedLocations: []string{"LOC1"}}

	if !peer.LocationAllowed("LOC2") {
		t.Fatalf("expected unscoped roles to ignore the location list")
	}
	if visible := peer.VisibleLocations(); visible != nil {
		t.Fatalf("expected no list filter for unscoped roles, got %v", visible)
	}
}
