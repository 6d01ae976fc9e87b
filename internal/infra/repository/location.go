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

// LocationRepository stores location aggregates split into one row per
// node. Parent documents are stored without their children, so a child can
// be replaced or patched without rewriting the whole aggregate.
type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

func (r *LocationRepository) List(ctx context.Context, from, to time.Time, offset, limit int, visible []string) ([]ocpi.Location, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Location{}).
		Where("last_updated >= ? AND last_updated < ?", from, to)
	if visible != nil {
		query = query.Where("id IN ?", visible)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.Location
	err := query.
		Order("last_updated ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	locations := make([]ocpi.Location, 0, len(records))
	for _, record := range records {
		location, err := r.assemble(ctx, r.db, record)
		if err != nil {
			return nil, 0, err
		}
		locations = append(locations, location)
	}
	return locations, total, nil
}

func (r *LocationRepository) Get(ctx context.Context, ref domain.LocationRef) (ocpi.Location, error) {
	var record models.Location
	err := r.db.WithContext(ctx).
		Where("country_code = ? AND party_id = ? AND id = ?", ref.CountryCode, ref.PartyID, ref.LocationID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ocpi.Location{}, domain.NotFoundError{Resource: "location"}
		}
		return ocpi.Location{}, err
	}
	return r.assemble(ctx, r.db, record)
}

// Put replaces the whole aggregate. Children absent from the new document
// are removed.
func (r *LocationRepository) Put(ctx context.Context, ref domain.LocationRef, location ocpi.Location) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		document, err := stripDocument(location, "evses")
		if err != nil {
			return err
		}

		record := models.Location{
			CountryCode: ref.CountryCode,
			PartyID:     ref.PartyID,
			ID:          location.ID,
			Document:    document,
			LastUpdated: location.LastUpdated,
		}
		err = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
		if err != nil {
			return err
		}

		err = tx.Where("country_code = ? AND party_id = ? AND location_id = ?",
			ref.CountryCode, ref.PartyID, location.ID).
			Delete(&models.EVSE{}).Error
		if err != nil {
			return err
		}
		err = tx.Where("country_code = ? AND party_id = ? AND location_id = ?",
			ref.CountryCode, ref.PartyID, location.ID).
			Delete(&models.Connector{}).Error
		if err != nil {
			return err
		}

		childRef := ref
		childRef.LocationID = location.ID
		for _, evse := range location.EVSEs {
			if err := putEVSE(tx, childRef, evse); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *LocationRepository) Patch(ctx context.Context, ref domain.LocationRef, patch map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.Location
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("country_code = ? AND party_id = ? AND id = ?", ref.CountryCode, ref.PartyID, ref.LocationID).
			Take(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundError{Resource: "location"}
			}
			return err
		}

		// Children are addressed through their own routes.
		delete(patch, "evses")

		document, lastUpdated, err := mergeRecordDocument(record.Document, patch, record.LastUpdated)
		if err != nil {
			return err
		}
		record.Document = document
		record.LastUpdated = lastUpdated
		return tx.Save(&record).Error
	})
}

func (r *LocationRepository) GetEVSE(ctx context.Context, ref domain.LocationRef) (ocpi.EVSE, error) {
	var record models.EVSE
	err := r.db.WithContext(ctx).
		Where("country_code = ? AND party_id = ? AND location_id = ? AND uid = ?",
			ref.CountryCode, ref.PartyID, ref.LocationID, ref.EVSEUID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ocpi.EVSE{}, domain.NotFoundError{Resource: "evse"}
		}
		return ocpi.EVSE{}, err
	}
	return r.assembleEVSE(ctx, r.db, record)
}

func (r *LocationRepository) PutEVSE(ctx context.Context, ref domain.LocationRef, evse ocpi.EVSE) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return putEVSE(tx, ref, evse)
	})
}

func (r *LocationRepository) PatchEVSE(ctx context.Context, ref domain.LocationRef, patch map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.EVSE
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("country_code = ? AND party_id = ? AND location_id = ? AND uid = ?",
				ref.CountryCode, ref.PartyID, ref.LocationID, ref.EVSEUID).
			Take(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundError{Resource: "evse"}
			}
			return err
		}

		delete(patch, "connectors")

		document, lastUpdated, err := mergeRecordDocument(record.Document, patch, record.LastUpdated)
		if err != nil {
			return err
		}
		record.Document = document
		record.LastUpdated = lastUpdated
		return tx.Save(&record).Error
	})
}

func (r *LocationRepository) GetConnector(ctx context.Context, ref domain.LocationRef) (ocpi.Connector, error) {
	var record models.Connector
	err := r.db.WithContext(ctx).
		Where("country_code = ? AND party_id = ? AND location_id = ? AND evse_uid = ? AND id = ?",
			ref.CountryCode, ref.PartyID, ref.LocationID, ref.EVSEUID, ref.ConnectorID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ocpi.Connector{}, domain.NotFoundError{Resource: "connector"}
		}
		return ocpi.Connector{}, err
	}
	var connector ocpi.Connector
	if err := json.Unmarshal([]byte(record.Document), &connector); err != nil {
		return ocpi.Connector{}, err
	}
	return connector, nil
}

func (r *LocationRepository) PutConnector(ctx context.Context, ref domain.LocationRef, connector ocpi.Connector) error {
	return putConnector(r.db.WithContext(ctx), ref, connector)
}

func (r *LocationRepository) PatchConnector(ctx context.Context, ref domain.LocationRef, patch map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.Connector
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("country_code = ? AND party_id = ? AND location_id = ? AND evse_uid = ? AND id = ?",
				ref.CountryCode, ref.PartyID, ref.LocationID, ref.EVSEUID, ref.ConnectorID).
			Take(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundError{Resource: "connector"}
			}
			return err
		}

		document, lastUpdated, err := mergeRecordDocument(record.Document, patch, record.LastUpdated)
		if err != nil {
			return err
		}
		record.Document = document
		record.LastUpdated = lastUpdated
		return tx.Save(&record).Error
	})
}

func putEVSE(tx *gorm.DB, ref domain.LocationRef, evse ocpi.EVSE) error {
	document, err := stripDocument(evse, "connectors")
	if err != nil {
		return err
	}

	record := models.EVSE{
		CountryCode: ref.CountryCode,
		PartyID:     ref.PartyID,
		LocationID:  ref.LocationID,
		UID:         evse.UID,
		Document:    document,
		LastUpdated: evse.LastUpdated,
	}
	err = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
	if err != nil {
		return err
	}

	err = tx.Where("country_code = ? AND party_id = ? AND location_id = ? AND evse_uid = ?",
		ref.CountryCode, ref.PartyID, ref.LocationID, evse.UID).
		Delete(&models.Connector{}).Error
	if err != nil {
		return err
	}

	childRef := ref
	childRef.EVSEUID = evse.UID
	for _, connector := range evse.Connectors {
		if err := putConnector(tx, childRef, connector); err != nil {
			return err
		}
	}
	return nil
}

func putConnector(tx *gorm.DB, ref domain.LocationRef, connector ocpi.Connector) error {
	document, err := json.Marshal(connector)
	if err != nil {
		return err
	}
	record := models.Connector{
		CountryCode: ref.CountryCode,
		PartyID:     ref.PartyID,
		LocationID:  ref.LocationID,
		EVSEUID:     ref.EVSEUID,
		ID:          connector.ID,
		Document:    string(document),
		LastUpdated: connector.LastUpdated,
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
}

func (r *LocationRepository) assemble(ctx context.Context, tx *gorm.DB, record models.Location) (ocpi.Location, error) {
	var location ocpi.Location
	if err := json.Unmarshal([]byte(record.Document), &location); err != nil {
		return ocpi.Location{}, err
	}

	var evseRecords []models.EVSE
	err := tx.WithContext(ctx).
		Where("country_code = ? AND party_id = ? AND location_id = ?",
			record.CountryCode, record.PartyID, record.ID).
		Order("uid ASC").
		Find(&evseRecords).Error
	if err != nil {
		return ocpi.Location{}, err
	}

	for _, evseRecord := range evseRecords {
		evse, err := r.assembleEVSE(ctx, tx, evseRecord)
		if err != nil {
			return ocpi.Location{}, err
		}
		location.EVSEs = append(location.EVSEs, evse)
	}
	return location, nil
}

func (r *LocationRepository) assembleEVSE(ctx context.Context, tx *gorm.DB, record models.EVSE) (ocpi.EVSE, error) {
	var evse ocpi.EVSE
	if err := json.Unmarshal([]byte(record.Document), &evse); err != nil {
		return ocpi.EVSE{}, err
	}

	var connectorRecords []models.Connector
	err := tx.WithContext(ctx).
		Where("country_code = ? AND party_id = ? AND location_id = ? AND evse_uid = ?",
			record.CountryCode, record.PartyID, record.LocationID, record.UID).
		Order("id ASC").
		Find(&connectorRecords).Error
	if err != nil {
		return ocpi.EVSE{}, err
	}

	for _, connectorRecord := range connectorRecords {
		var connector ocpi.Connector
		if err := json.Unmarshal([]byte(connectorRecord.Document), &connector); err != nil {
			return ocpi.EVSE{}, err
		}
		evse.Connectors = append(evse.Connectors, connector)
	}
	return evse, nil
}

// stripDocument serializes v to a JSON document with the named child key
// removed.
func stripDocument(v any, childKey string) (string, error) {
	document, err := ocpi.ToDocument(v)
	if err != nil {
		return "", err
	}
	delete(document, childKey)
	raw, err := json.Marshal(document)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// mergeRecordDocument applies patch on top of the stored document and
// returns the new document together with its last_updated timestamp.
func mergeRecordDocument(stored string, patch map[string]any, fallback time.Time) (string, time.Time, error) {
	var document map[string]any
	if err := json.Unmarshal([]byte(stored), &document); err != nil {
		return "", time.Time{}, err
	}

	merged := ocpi.MergeDocument(document, patch)
	raw, err := json.Marshal(merged)
	if err != nil {
		return "", time.Time{}, err
	}

	lastUpdated := fallback
	if value, ok := merged["last_updated"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			lastUpdated = parsed
		}
	}
	return string(raw), lastUpdated, nil
}
