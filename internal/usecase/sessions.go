package usecase

import (
	"context"
	"time"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
)

// SessionUsecase serves the sessions module. Sessions are flat records, so
// there is no pull-through here; a missing session is simply not found.
type SessionUsecase struct {
	repo   SessionRepository
	signal UpdateSignal
}

func NewSessionUsecase(repo SessionRepository, signal UpdateSignal) *SessionUsecase {
	return &SessionUsecase{
		repo:   repo,
		signal: signal,
	}
}

// List returns sessions last updated within [from, to), ordered by start
// timestamp ascending so offset paging stays stable as long as no earlier
// record is deleted.
func (uc *SessionUsecase) List(ctx context.Context, peer domain.Peer, from, to time.Time, offset, limit int) ([]ocpi.Session, int64, error) {
	return uc.repo.List(ctx, from, to, offset, limit, peer.VisibleLocations())
}

func (uc *SessionUsecase) Get(ctx context.Context, ref domain.SessionRef) (ocpi.Session, error) {
	return uc.repo.Get(ctx, ref)
}

// Put inserts or replaces a session. The body id must equal the path id.
func (uc *SessionUsecase) Put(ctx context.Context, peer domain.Peer, ref domain.SessionRef, session ocpi.Session) error {
	if session.ID != ref.SessionID {
		return domain.MalformedError{Reason: "id in the session object does not match the id in the URL"}
	}
	if err := uc.repo.Put(ctx, ref, session); err != nil {
		return err
	}
	uc.publish(ctx, peer, ref)
	return nil
}

// Patch merges the given fields into an existing session.
func (uc *SessionUsecase) Patch(ctx context.Context, peer domain.Peer, ref domain.SessionRef, patch map[string]any) error {
	if err := uc.repo.Patch(ctx, ref, patch); err != nil {
		return err
	}
	uc.publish(ctx, peer, ref)
	return nil
}

func (uc *SessionUsecase) publish(ctx context.Context, peer domain.Peer, ref domain.SessionRef) {
	if uc.signal == nil {
		return
	}
	uc.signal.ResourceUpdated(ctx, ocpi.ModuleSessions, ref.CountryCode, ref.PartyID, ref.SessionID, peer.Token)
}
