package usecase

import (
	"context"
	"time"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
)

// PeerRepository is the durable token registry. Implementations must
// serialize read-modify-write sequences so concurrent registrations cannot
// lose a rotation.
type PeerRepository interface {
	Get(ctx context.Context, token string) (domain.Peer, error)
	GetByURL(ctx context.Context, url string) (domain.Peer, error)
	List(ctx context.Context) ([]domain.Peer, error)
	Create(ctx context.Context, peer domain.Peer) error
	// ReplaceByURL atomically purges every record registered for peer.URL
	// and stores peer in their place.
	ReplaceByURL(ctx context.Context, peer domain.Peer) error
	// Delete reports whether a record actually existed.
	Delete(ctx context.Context, token string) (bool, error)
}

// LocationRepository stores location aggregates split into their nodes.
type LocationRepository interface {
	List(ctx context.Context, from, to time.Time, offset, limit int, visible []string) ([]ocpi.Location, int64, error)
	Get(ctx context.Context, ref domain.LocationRef) (ocpi.Location, error)
	Put(ctx context.Context, ref domain.LocationRef, location ocpi.Location) error
	Patch(ctx context.Context, ref domain.LocationRef, patch map[string]any) error
	GetEVSE(ctx context.Context, ref domain.LocationRef) (ocpi.EVSE, error)
	PutEVSE(ctx context.Context, ref domain.LocationRef, evse ocpi.EVSE) error
	PatchEVSE(ctx context.Context, ref domain.LocationRef, patch map[string]any) error
	GetConnector(ctx context.Context, ref domain.LocationRef) (ocpi.Connector, error)
	PutConnector(ctx context.Context, ref domain.LocationRef, connector ocpi.Connector) error
	PatchConnector(ctx context.Context, ref domain.LocationRef, patch map[string]any) error
}

// SessionRepository stores charging-session records.
type SessionRepository interface {
	List(ctx context.Context, from, to time.Time, offset, limit int, visible []string) ([]ocpi.Session, int64, error)
	Get(ctx context.Context, ref domain.SessionRef) (ocpi.Session, error)
	Put(ctx context.Context, ref domain.SessionRef, session ocpi.Session) error
	Patch(ctx context.Context, ref domain.SessionRef, patch map[string]any) error
}

// PeerClient performs the outbound protocol calls.
type PeerClient interface {
	GetVersionDetails(ctx context.Context, peerURL, version, token string) ([]ocpi.Endpoint, error)
	// PostCredentials falls back to PUT when the peer answers 405.
	PostCredentials(ctx context.Context, peerURL, version, token string, credentials ocpi.Credentials) (ocpi.Credentials, error)
	GetLocation(ctx context.Context, endpointURL, token, locationID string) (ocpi.Location, error)
	PushObject(ctx context.Context, method, url, token string, object any) error
}

// UpdateSignal fans resource updates out towards subscribed peers. The
// origin token identifies the peer the update came from, so the fan-out can
// skip echoing it back. A nil signal disables the fan-out.
type UpdateSignal interface {
	ResourceUpdated(ctx context.Context, module ocpi.ModuleID, countryCode, partyID, id, originToken string)
}
