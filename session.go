package ocpi

import "time"

// Session statuses.
const (
	SessionActive    = "ACTIVE"
	SessionCompleted = "COMPLETED"
	SessionInvalid   = "INVALID"
	SessionPending   = "PENDING"
)

// Session is a charging-session record. Location carries only the relevant
// EVSE and connector of the location the session took place at.
type Session struct {
	ID              string           `json:"id"`
	StartDatetime   time.Time        `json:"start_datetime"`
	EndDatetime     *time.Time       `json:"end_datetime,omitempty"`
	KWh             float64          `json:"kwh"`
	AuthID          string           `json:"auth_id"`
	AuthMethod      string           `json:"auth_method"`
	Location        Location         `json:"location"`
	MeterID         string           `json:"meter_id,omitempty"`
	Currency        string           `json:"currency"`
	ChargingPeriods []ChargingPeriod `json:"charging_periods,omitempty"`
	TotalCost       *float64         `json:"total_cost,omitempty"`
	Status          string           `json:"status"`
	LastUpdated     time.Time        `json:"last_updated"`
}

type ChargingPeriod struct {
	StartDateTime time.Time      `json:"start_date_time"`
	Dimensions    []CdrDimension `json:"dimensions"`
}

type CdrDimension struct {
	Type   string  `json:"type"`
	Volume float64 `json:"volume"`
}
