package ocpi

import "time"

// Location is the top-level aggregate of the locations module. A location
// with its nested EVSEs and connectors is the atomic unit of replication
// between parties.
type Location struct {
	ID                 string                  `json:"id"`
	Type               string                  `json:"type,omitempty"`
	Name               string                  `json:"name,omitempty"`
	Address            string                  `json:"address"`
	City               string                  `json:"city"`
	PostalCode         string                  `json:"postal_code"`
	Country            string                  `json:"country"`
	Coordinates        GeoLocation             `json:"coordinates"`
	RelatedLocations   []AdditionalGeoLocation `json:"related_locations,omitempty"`
	EVSEs              []EVSE                  `json:"evses,omitempty"`
	Directions         []DisplayText           `json:"directions,omitempty"`
	Operator           *BusinessDetails        `json:"operator,omitempty"`
	Suboperator        *BusinessDetails        `json:"suboperator,omitempty"`
	Owner              *BusinessDetails        `json:"owner,omitempty"`
	Facilities         []string                `json:"facilities,omitempty"`
	TimeZone           string                  `json:"time_zone,omitempty"`
	OpeningTimes       *Hours                  `json:"opening_times,omitempty"`
	ChargingWhenClosed *bool                   `json:"charging_when_closed,omitempty"`
	Images             []Image                 `json:"images,omitempty"`
	EnergyMix          *EnergyMix              `json:"energy_mix,omitempty"`
	LastUpdated        time.Time               `json:"last_updated"`
}

type EVSE struct {
	UID                 string           `json:"uid"`
	EVSEID              string           `json:"evse_id,omitempty"`
	Status              string           `json:"status"`
	StatusSchedule      []StatusSchedule `json:"status_schedule,omitempty"`
	Capabilities        []string         `json:"capabilities,omitempty"`
	Connectors          []Connector      `json:"connectors,omitempty"`
	FloorLevel          string           `json:"floor_level,omitempty"`
	Coordinates         *GeoLocation     `json:"coordinates,omitempty"`
	PhysicalReference   string           `json:"physical_reference,omitempty"`
	Directions          []DisplayText    `json:"directions,omitempty"`
	ParkingRestrictions []string         `json:"parking_restrictions,omitempty"`
	Images              []Image          `json:"images,omitempty"`
	LastUpdated         time.Time        `json:"last_updated"`
}

type Connector struct {
	ID                 string    `json:"id"`
	Standard           string    `json:"standard"`
	Format             string    `json:"format"`
	PowerType          string    `json:"power_type"`
	Voltage            int       `json:"voltage"`
	Amperage           int       `json:"amperage"`
	TariffID           string    `json:"tariff_id,omitempty"`
	TermsAndConditions string    `json:"terms_and_conditions,omitempty"`
	LastUpdated        time.Time `json:"last_updated"`
}

type GeoLocation struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

type AdditionalGeoLocation struct {
	Latitude  string       `json:"latitude"`
	Longitude string       `json:"longitude"`
	Name      *DisplayText `json:"name,omitempty"`
}

type DisplayText struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

type StatusSchedule struct {
	PeriodBegin time.Time  `json:"period_begin"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	Status      string     `json:"status"`
}

type Hours struct {
	RegularHours        []RegularHours      `json:"regular_hours,omitempty"`
	TwentyFourSeven     bool                `json:"twentyfourseven"`
	ExceptionalOpenings []ExceptionalPeriod `json:"exceptional_openings,omitempty"`
	ExceptionalClosings []ExceptionalPeriod `json:"exceptional_closings,omitempty"`
}

type RegularHours struct {
	Weekday     int    `json:"weekday"`
	PeriodBegin string `json:"period_begin"`
	PeriodEnd   string `json:"period_end"`
}

type ExceptionalPeriod struct {
	PeriodBegin time.Time `json:"period_begin"`
	PeriodEnd   time.Time `json:"period_end"`
}

type EnergyMix struct {
	IsGreenEnergy     bool                  `json:"is_green_energy"`
	EnergySources     []EnergySource        `json:"energy_sources,omitempty"`
	EnvironImpact     []EnvironmentalImpact `json:"environ_impact,omitempty"`
	SupplierName      string                `json:"supplier_name,omitempty"`
	EnergyProductName string                `json:"energy_product_name,omitempty"`
}

type EnergySource struct {
	Source     string  `json:"source"`
	Percentage float64 `json:"percentage"`
}

type EnvironmentalImpact struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}
