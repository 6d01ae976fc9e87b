package models

import (
	"time"
)

// Session holds one charging-session document. LocationID and the two
// timestamps are lifted out of the document for filtering and stable
// ordering of time-ranged listings.
type Session struct {
	CountryCode   string    `json:"country_code" gorm:"primaryKey;type:text"`
	PartyID       string    `json:"party_id" gorm:"primaryKey;type:text"`
	ID            string    `json:"id" gorm:"primaryKey;type:text"`
	LocationID    string    `json:"location_id" gorm:"type:text;index"`
	StartDatetime time.Time `json:"start_datetime" gorm:"type:timestamp with time zone;index"`
	LastUpdated   time.Time `json:"last_updated" gorm:"type:timestamp with time zone;index"`
	Document      string    `json:"document" gorm:"type:text"`
}
