package domain

// LocationRef addresses a node of a location aggregate. Country code and
// party id scope the aggregate; EVSEUID and ConnectorID narrow the target,
// empty meaning "the level above". Child ids are unique only within their
// immediate parent.
type LocationRef struct {
	CountryCode string
	PartyID     string
	LocationID  string
	EVSEUID     string
	ConnectorID string
}

// SessionRef addresses a charging-session record.
type SessionRef struct {
	CountryCode string
	PartyID     string
	SessionID   string
}
