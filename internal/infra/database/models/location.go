package models

import (
	"time"
)

// Location holds the aggregate root document without its EVSEs; children
// live in their own tables so nested nodes can be addressed and patched
// individually, the way the aggregate is addressed on the wire.
type Location struct {
	CountryCode string    `json:"country_code" gorm:"primaryKey;type:text"`
	PartyID     string    `json:"party_id" gorm:"primaryKey;type:text"`
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	Document    string    `json:"document" gorm:"type:text"`
	LastUpdated time.Time `json:"last_updated" gorm:"type:timestamp with time zone;index"`
}

// EVSE holds one EVSE document without its connectors.
type EVSE struct {
	CountryCode string    `json:"country_code" gorm:"primaryKey;type:text"`
	PartyID     string    `json:"party_id" gorm:"primaryKey;type:text"`
	LocationID  string    `json:"location_id" gorm:"primaryKey;type:text;index"`
	UID         string    `json:"uid" gorm:"primaryKey;type:text"`
	Document    string    `json:"document" gorm:"type:text"`
	LastUpdated time.Time `json:"last_updated" gorm:"type:timestamp with time zone"`
}

type Connector struct {
	CountryCode string    `json:"country_code" gorm:"primaryKey;type:text"`
	PartyID     string    `json:"party_id" gorm:"primaryKey;type:text"`
	LocationID  string    `json:"location_id" gorm:"primaryKey;type:text;index"`
	EVSEUID     string    `json:"evse_uid" gorm:"primaryKey;type:text"`
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	Document    string    `json:"document" gorm:"type:text"`
	LastUpdated time.Time `json:"last_updated" gorm:"type:timestamp with time zone"`
}
