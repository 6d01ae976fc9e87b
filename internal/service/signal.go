package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
)

// SignalService announces resource updates over redis pub/sub. Publishing
// is best effort; a failed announcement never fails the write it belongs to.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) ResourceUpdated(ctx context.Context, module ocpi.ModuleID, countryCode, partyID, id, originToken string) {
	event := domain.UpdateEvent{
		Module:      module,
		CountryCode: countryCode,
		PartyID:     partyID,
		ID:          id,
		OriginToken: originToken,
	}

	jsonstr, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(
			ctx, "Failed to encode update event",
			slog.String("error", err.Error()),
			slog.String("module", "signal"),
		)
		return
	}

	err = s.rdb.Publish(ctx, domain.UpdateChannel, jsonstr).Err()
	if err != nil {
		slog.ErrorContext(
			ctx, "Failed to publish update event",
			slog.String("error", err.Error()),
			slog.String("module", "signal"),
		)
	}
}
