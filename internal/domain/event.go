package domain

import (
	ocpi "github.com/julianfickerseq/ocpi-server"
)

// UpdateChannel is the pub/sub channel resource updates are announced on.
const UpdateChannel = "ocpi:updates"

// UpdateEvent announces that a stored object changed. OriginToken names the
// peer the change came from so fan-out can avoid echoing it back.
type UpdateEvent struct {
	Module      ocpi.ModuleID `json:"module"`
	CountryCode string        `json:"country_code"`
	PartyID     string        `json:"party_id"`
	ID          string        `json:"id"`
	OriginToken string        `json:"origin_token"`
}
