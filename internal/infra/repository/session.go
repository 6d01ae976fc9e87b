package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
	"github.com/julianfickerseq/ocpi-server/internal/infra/database/models"
)

// SessionRepository stores charging-session documents. The location id and
// timestamps are lifted into columns so listings can filter and order
// without decoding every document.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) List(ctx context.Context, from, to time.Time, offset, limit int, visible []string) ([]ocpi.Session, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("last_updated >= ? AND last_updated < ?", from, to)
	if visible != nil {
		query = query.Where("location_id IN ?", visible)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.Session
	err := query.
		Order("start_datetime ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	sessions := make([]ocpi.Session, 0, len(records))
	for _, record := range records {
		var session ocpi.Session
		if err := json.Unmarshal([]byte(record.Document), &session); err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, session)
	}
	return sessions, total, nil
}

func (r *SessionRepository) Get(ctx context.Context, ref domain.SessionRef) (ocpi.Session, error) {
	var record models.Session
	err := r.db.WithContext(ctx).
		Where("country_code = ? AND party_id = ? AND id = ?", ref.CountryCode, ref.PartyID, ref.SessionID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ocpi.Session{}, domain.NotFoundError{Resource: "session"}
		}
		return ocpi.Session{}, err
	}
	var session ocpi.Session
	if err := json.Unmarshal([]byte(record.Document), &session); err != nil {
		return ocpi.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) Put(ctx context.Context, ref domain.SessionRef, session ocpi.Session) error {
	document, err := json.Marshal(session)
	if err != nil {
		return err
	}
	record := models.Session{
		CountryCode:   ref.CountryCode,
		PartyID:       ref.PartyID,
		ID:            session.ID,
		LocationID:    session.Location.ID,
		StartDatetime: session.StartDatetime,
		LastUpdated:   session.LastUpdated,
		Document:      string(document),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
}

func (r *SessionRepository) Patch(ctx context.Context, ref domain.SessionRef, patch map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.Session
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("country_code = ? AND party_id = ? AND id = ?", ref.CountryCode, ref.PartyID, ref.SessionID).
			Take(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundError{Resource: "session"}
			}
			return err
		}

		var document map[string]any
		if err := json.Unmarshal([]byte(record.Document), &document); err != nil {
			return err
		}
		merged := ocpi.MergeDocument(document, patch)
		raw, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		var session ocpi.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			return err
		}

		record.Document = string(raw)
		record.LocationID = session.Location.ID
		record.StartDatetime = session.StartDatetime
		record.LastUpdated = session.LastUpdated
		return tx.Save(&record).Error
	})
}
