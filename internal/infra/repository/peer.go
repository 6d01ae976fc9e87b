package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"gorm.io/gorm"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
	"github.com/julianfickerseq/ocpi-server/internal/infra/database/models"
)

// PeerRepository persists the token registry. Creation, rotation and
// deletion are serialized behind a single mutex so concurrent registrations
// cannot interleave reads and writes and lose a rotation.
type PeerRepository struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewPeerRepository(db *gorm.DB) *PeerRepository {
	return &PeerRepository{db: db}
}

func (r *PeerRepository) Get(ctx context.Context, token string) (domain.Peer, error) {
	var record models.Peer
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Peer{}, domain.NotFoundError{Resource: "peer"}
		}
		return domain.Peer{}, err
	}
	return unmarshalPeer(record)
}

func (r *PeerRepository) GetByURL(ctx context.Context, url string) (domain.Peer, error) {
	var record models.Peer
	err := r.db.WithContext(ctx).
		Where("url = ?", url).
		Order("c_date DESC").
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Peer{}, domain.NotFoundError{Resource: "peer"}
		}
		return domain.Peer{}, err
	}
	return unmarshalPeer(record)
}

func (r *PeerRepository) List(ctx context.Context) ([]domain.Peer, error) {
	var records []models.Peer
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}
	peers := make([]domain.Peer, 0, len(records))
	for _, record := range records {
		peer, err := unmarshalPeer(record)
		if err != nil {
			return nil, err
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

func (r *PeerRepository) Create(ctx context.Context, peer domain.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := marshalPeer(peer)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&record).Error
}

func (r *PeerRepository) ReplaceByURL(ctx context.Context, peer domain.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := marshalPeer(peer)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("url = ?", peer.URL).Delete(&models.Peer{}).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
}

func (r *PeerRepository) Delete(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&models.Peer{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func marshalPeer(peer domain.Peer) (models.Peer, error) {
	endpoints, err := json.Marshal(peer.Endpoints)
	if err != nil {
		return models.Peer{}, err
	}
	allowed, err := json.Marshal(peer.AllowedLocations)
	if err != nil {
		return models.Peer{}, err
	}
	return models.Peer{
		Token:            peer.Token,
		URL:              peer.URL,
		OutboundToken:    peer.OutboundToken,
		Endpoints:        string(endpoints),
		Role:             string(peer.Role),
		AllowedLocations: string(allowed),
	}, nil
}

func unmarshalPeer(record models.Peer) (domain.Peer, error) {
	peer := domain.Peer{
		Token:         record.Token,
		URL:           record.URL,
		OutboundToken: record.OutboundToken,
	}

	role, err := ocpi.ParseRole(record.Role)
	if err != nil {
		return domain.Peer{}, err
	}
	peer.Role = role

	if record.Endpoints != "" {
		if err := json.Unmarshal([]byte(record.Endpoints), &peer.Endpoints); err != nil {
			return domain.Peer{}, err
		}
	}
	if record.AllowedLocations != "" {
		if err := json.Unmarshal([]byte(record.AllowedLocations), &peer.AllowedLocations); err != nil {
			return domain.Peer{}, err
		}
	}
	return peer, nil
}
