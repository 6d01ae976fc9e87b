package ocpi

import (
	"fmt"
	"time"
)

// VersionNumber is the protocol version this server implements.
const VersionNumber = "2.1.1"

// Status codes carried in the response envelope. Transport-level success with
// a domain-level failure code is the protocol convention: the status_code
// field, not the HTTP status, is authoritative for domain errors.
const (
	StatusSuccess         = 1000
	StatusClientError     = 2000
	StatusInvalidParams   = 2001
	StatusUnknownLocation = 2003
	StatusServerError     = 3000
	StatusClientAPIError  = 3001
)

// Response is the envelope wrapped around every protocol payload.
type Response struct {
	Data       any       `json:"data"`
	StatusCode int       `json:"status_code"`
	Timestamp  time.Time `json:"timestamp"`
}

// Role is the privilege class a registered party acts under.
type Role string

const (
	RoleCPO  Role = "CPO"  // charge point operator, owns locations
	RoleEMSP Role = "EMSP" // mobility service provider
	RoleNSP  Role = "NSP"  // navigation service provider
	RoleSCSP Role = "SCSP" // smart charging service provider, location-scoped
)

// ParseRole rejects unknown role strings instead of carrying them along.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCPO, RoleEMSP, RoleNSP, RoleSCSP:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// InterfaceRole describes which side of a module a party implements.
type InterfaceRole string

const (
	InterfaceSender   InterfaceRole = "SENDER"
	InterfaceReceiver InterfaceRole = "RECEIVER"
	InterfaceBoth     InterfaceRole = "BOTH"
)

// ModuleID names a resource family advertised in the endpoint catalogue.
type ModuleID string

const (
	ModuleCredentials ModuleID = "credentials"
	ModuleLocations   ModuleID = "locations"
	ModuleSessions    ModuleID = "sessions"
)

// Endpoint is one entry of a party's endpoint catalogue.
type Endpoint struct {
	Identifier ModuleID      `json:"identifier"`
	Role       InterfaceRole `json:"role"`
	URL        string        `json:"url"`
}

// Version is one entry of the version index.
type Version struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// VersionDetails is the catalogue returned by the version-details endpoint.
type VersionDetails struct {
	Version   string     `json:"version"`
	Endpoints []Endpoint `json:"endpoints"`
}

type Image struct {
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Category  string `json:"category,omitempty"`
	Type      string `json:"type,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

type BusinessDetails struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Logo    *Image `json:"logo,omitempty"`
}

// CredentialsRole identifies the business role a party provides.
type CredentialsRole struct {
	Role            Role            `json:"role"`
	BusinessDetails BusinessDetails `json:"business_details"`
	PartyID         string          `json:"party_id"`
	CountryCode     string          `json:"country_code"`
}

// Credentials is the object exchanged during the registration handshake.
// Token is the credential the receiving party must present on its
// subsequent calls to the issuing side.
type Credentials struct {
	Token string            `json:"token"`
	URL   string            `json:"url"`
	Roles []CredentialsRole `json:"roles"`
}

// RegisterRequest triggers an outbound registration towards a peer. When
// ClientToken is empty the outbound token already on file for ClientURL is
// reused for the exchange.
type RegisterRequest struct {
	ClientURL   string `json:"client_url"`
	Version     string `json:"version"`
	ClientToken string `json:"client_token,omitempty"`
}
