package models

import (
	"time"
)

// Peer is one registered counterparty, keyed by the locally issued token.
// Endpoints and AllowedLocations are stored as serialized JSON.
type Peer struct {
	Token            string    `json:"token" gorm:"primaryKey;type:text"`
	URL              string    `json:"url" gorm:"type:text;index"`
	OutboundToken    string    `json:"outbound_token" gorm:"type:text"`
	Endpoints        string    `json:"endpoints" gorm:"type:text"`
	Role             string    `json:"role" gorm:"type:text"`
	AllowedLocations string    `json:"allowed_locations" gorm:"type:text"`
	CDate            time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
