package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
	"github.com/julianfickerseq/ocpi-server/internal/usecase"
)

var tracer = otel.Tracer("push")

const pushMaxRetries = 3

// PushService consumes update events and forwards the changed object to
// every registered peer that advertises the module, except the peer the
// change originated from. Delivery to one peer never blocks delivery to the
// others; failures are logged and dropped.
type PushService struct {
	rdb       *redis.Client
	peers     usecase.PeerRepository
	locations usecase.LocationRepository
	sessions  usecase.SessionRepository
	client    usecase.PeerClient
	workers   int
}

func NewPushService(
	redisClient *redis.Client,
	peers usecase.PeerRepository,
	locations usecase.LocationRepository,
	sessions usecase.SessionRepository,
	client usecase.PeerClient,
	workers int,
) *PushService {
	if workers < 1 {
		workers = 1
	}
	return &PushService{
		rdb:       redisClient,
		peers:     peers,
		locations: locations,
		sessions:  sessions,
		client:    client,
		workers:   workers,
	}
}

// Run blocks until ctx is cancelled.
func (s *PushService) Run(ctx context.Context) error {
	pubsub := s.rdb.Subscribe(ctx, domain.UpdateChannel)
	defer pubsub.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)

	channel := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			group.Wait()
			return ctx.Err()
		case msg, ok := <-channel:
			if !ok {
				return group.Wait()
			}

			var event domain.UpdateEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(
					ctx, "Failed to decode update event",
					slog.String("error", err.Error()),
					slog.String("module", "push"),
				)
				continue
			}

			group.Go(func() error {
				s.fanOut(ctx, event)
				return nil
			})
		}
	}
}

func (s *PushService) fanOut(ctx context.Context, event domain.UpdateEvent) {
	ctx, span := tracer.Start(ctx, "Push.Service.FanOut")
	defer span.End()

	object, locationID, err := s.loadObject(ctx, event)
	if err != nil {
		span.RecordError(errors.Wrap(err, "PushService.fanOut: loadObject failed"))
		slog.ErrorContext(
			ctx, "Failed to load object for push",
			slog.String("error", err.Error()),
			slog.String("module", "push"),
		)
		return
	}

	peers, err := s.peers.List(ctx)
	if err != nil {
		span.RecordError(errors.Wrap(err, "PushService.fanOut: peers.List failed"))
		return
	}

	for _, peer := range peers {
		if peer.Token == event.OriginToken {
			continue
		}
		if !peer.LocationAllowed(locationID) {
			continue
		}

		endpoint, ok := peer.ModuleEndpoint(event.Module)
		if !ok || peer.OutboundToken == "" {
			continue
		}

		url := ocpi.JoinURL(endpoint, event.CountryCode, event.PartyID, event.ID)

		operation := func() error {
			return s.client.PushObject(ctx, "PUT", url, peer.OutboundToken, object)
		}
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), pushMaxRetries), ctx)

		if err := backoff.Retry(operation, policy); err != nil {
			span.RecordError(err)
			slog.WarnContext(
				ctx, "Failed to push update to peer",
				slog.String("url", url),
				slog.String("error", err.Error()),
				slog.String("module", "push"),
			)
		}
	}
}

// loadObject fetches the current state of the changed object together with
// the location id used for peer scope checks.
func (s *PushService) loadObject(ctx context.Context, event domain.UpdateEvent) (any, string, error) {
	switch event.Module {
	case ocpi.ModuleLocations:
		location, err := s.locations.Get(ctx, domain.LocationRef{
			CountryCode: event.CountryCode,
			PartyID:     event.PartyID,
			LocationID:  event.ID,
		})
		if err != nil {
			return nil, "", err
		}
		return location, location.ID, nil
	case ocpi.ModuleSessions:
		session, err := s.sessions.Get(ctx, domain.SessionRef{
			CountryCode: event.CountryCode,
			PartyID:     event.PartyID,
			SessionID:   event.ID,
		})
		if err != nil {
			return nil, "", err
		}
		return session, session.Location.ID, nil
	default:
		return nil, "", errors.Errorf("unknown module: %s", event.Module)
	}
}
