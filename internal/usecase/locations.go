package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
)

// LocationUsecase serves the locations module. Reads and partial updates
// addressed to aggregates the local store does not know are retried once
// after a pull-through fetch from the peer assumed to own them.
type LocationUsecase struct {
	repo   LocationRepository
	client PeerClient
	signal UpdateSignal
}

func NewLocationUsecase(
	repo LocationRepository,
	client PeerClient,
	signal UpdateSignal,
) *LocationUsecase {
	return &LocationUsecase{
		repo:   repo,
		client: client,
		signal: signal,
	}
}

func (uc *LocationUsecase) List(ctx context.Context, peer domain.Peer, from, to time.Time, offset, limit int) ([]ocpi.Location, int64, error) {
	return uc.repo.List(ctx, from, to, offset, limit, peer.VisibleLocations())
}

func (uc *LocationUsecase) Get(ctx context.Context, peer domain.Peer, ref domain.LocationRef) (ocpi.Location, error) {
	var location ocpi.Location
	err := uc.withReplication(ctx, peer, ref, func() error {
		var err error
		location, err = uc.repo.Get(ctx, ref)
		return err
	})
	return location, err
}

func (uc *LocationUsecase) GetEVSE(ctx context.Context, peer domain.Peer, ref domain.LocationRef) (ocpi.EVSE, error) {
	var evse ocpi.EVSE
	err := uc.withReplication(ctx, peer, ref, func() error {
		var err error
		evse, err = uc.repo.GetEVSE(ctx, ref)
		return err
	})
	return evse, err
}

func (uc *LocationUsecase) GetConnector(ctx context.Context, peer domain.Peer, ref domain.LocationRef) (ocpi.Connector, error) {
	var connector ocpi.Connector
	err := uc.withReplication(ctx, peer, ref, func() error {
		var err error
		connector, err = uc.repo.GetConnector(ctx, ref)
		return err
	})
	return connector, err
}

// Put inserts or replaces a whole location aggregate. The id embedded in the
// payload must equal the id in the request path; nothing is stored when they
// differ.
func (uc *LocationUsecase) Put(ctx context.Context, peer domain.Peer, ref domain.LocationRef, location ocpi.Location) error {
	if location.ID != ref.LocationID {
		return domain.MalformedError{Reason: "id in the location object does not match the id in the URL"}
	}
	if err := uc.repo.Put(ctx, ref, location); err != nil {
		return err
	}
	uc.publish(ctx, peer, ref)
	return nil
}

// PutEVSE requires the parent location to be locally known, pulling it from
// the owning peer when it is not.
func (uc *LocationUsecase) PutEVSE(ctx context.Context, peer domain.Peer, ref domain.LocationRef, evse ocpi.EVSE) error {
	if evse.UID != ref.EVSEUID {
		return domain.MalformedError{Reason: "uid in the evse object does not match the uid in the URL"}
	}
	err := uc.withReplication(ctx, peer, ref, func() error {
		parent := ref
		parent.EVSEUID = ""
		parent.ConnectorID = ""
		if _, err := uc.repo.Get(ctx, parent); err != nil {
			return err
		}
		return uc.repo.PutEVSE(ctx, ref, evse)
	})
	if err != nil {
		return err
	}
	uc.publish(ctx, peer, ref)
	return nil
}

// PutConnector requires the parent EVSE to be locally known.
func (uc *LocationUsecase) PutConnector(ctx context.Context, peer domain.Peer, ref domain.LocationRef, connector ocpi.Connector) error {
	if connector.ID != ref.ConnectorID {
		return domain.MalformedError{Reason: "id in the connector object does not match the id in the URL"}
	}
	err := uc.withReplication(ctx, peer, ref, func() error {
		parent := ref
		parent.ConnectorID = ""
		if _, err := uc.repo.GetEVSE(ctx, parent); err != nil {
			return err
		}
		return uc.repo.PutConnector(ctx, ref, connector)
	})
	if err != nil {
		return err
	}
	uc.publish(ctx, peer, ref)
	return nil
}

func (uc *LocationUsecase) Patch(ctx context.Context, peer domain.Peer, ref domain.LocationRef, patch map[string]any) error {
	err := uc.withReplication(ctx, peer, ref, func() error {
		return uc.repo.Patch(ctx, ref, patch)
	})
	if err != nil {
		return err
	}
	uc.publish(ctx, peer, ref)
	return nil
}

func (uc *LocationUsecase) PatchEVSE(ctx context.Context, peer domain.Peer, ref domain.LocationRef, patch map[string]any) error {
	err := uc.withReplication(ctx, peer, ref, func() error {
		return uc.repo.PatchEVSE(ctx, ref, patch)
	})
	if err != nil {
		return err
	}
	uc.publish(ctx, peer, ref)
	return nil
}

func (uc *LocationUsecase) PatchConnector(ctx context.Context, peer domain.Peer, ref domain.LocationRef, patch map[string]any) error {
	err := uc.withReplication(ctx, peer, ref, func() error {
		return uc.repo.PatchConnector(ctx, ref, patch)
	})
	if err != nil {
		return err
	}
	uc.publish(ctx, peer, ref)
	return nil
}

// withReplication runs op and, on a local not-found, fetches the whole
// location aggregate from the calling peer and retries op exactly once. A
// failed fetch surfaces the original not-found; there is never a second
// fetch and never a partial import.
func (uc *LocationUsecase) withReplication(ctx context.Context, peer domain.Peer, ref domain.LocationRef, op func() error) error {
	err := op()
	if !isNotFound(err) {
		return err
	}

	if rerr := uc.replicate(ctx, peer, ref); rerr != nil {
		slog.Warn("replication fetch failed",
			slog.String("location", ref.LocationID),
			slog.String("peer", peer.URL),
			slog.String("error", rerr.Error()),
			slog.String("module", "locations"),
		)
		return err
	}

	return op()
}

// replicate pulls the top-level location aggregate from the peer, even when
// only a nested EVSE or connector was missing: the aggregate is the unit of
// replication.
func (uc *LocationUsecase) replicate(ctx context.Context, peer domain.Peer, ref domain.LocationRef) error {
	ctx, span := tracer.Start(ctx, "Location.Usecase.Replicate")
	defer span.End()
	span.SetAttributes(
		attribute.String("locationID", ref.LocationID),
		attribute.String("peer", peer.URL),
	)

	endpoint, ok := peer.ModuleEndpoint(ocpi.ModuleLocations)
	if !ok || peer.OutboundToken == "" {
		return domain.UpstreamError{Peer: peer.URL}
	}

	location, err := uc.client.GetLocation(ctx, endpoint, peer.OutboundToken, ref.LocationID)
	if err != nil {
		span.RecordError(err)
		return domain.UpstreamError{Peer: peer.URL, Err: err}
	}

	root := domain.LocationRef{
		CountryCode: ref.CountryCode,
		PartyID:     ref.PartyID,
		LocationID:  ref.LocationID,
	}
	// imported through the same put path used for direct client writes, but
	// below the usecase so the import is not fanned back out
	return uc.repo.Put(ctx, root, location)
}

func (uc *LocationUsecase) publish(ctx context.Context, peer domain.Peer, ref domain.LocationRef) {
	if uc.signal == nil {
		return
	}
	uc.signal.ResourceUpdated(ctx, ocpi.ModuleLocations, ref.CountryCode, ref.PartyID, ref.LocationID, peer.Token)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
