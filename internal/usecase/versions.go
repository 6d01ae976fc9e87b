package usecase

import (
	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/config"
)

// VersionUsecase serves the version index and the endpoint catalogue other
// parties resolve during the handshake.
type VersionUsecase struct {
	conf config.Config
}

func NewVersionUsecase(conf config.Config) *VersionUsecase {
	return &VersionUsecase{conf: conf}
}

func (uc *VersionUsecase) Versions() []ocpi.Version {
	return []ocpi.Version{
		{
			Version: ocpi.VersionNumber,
			URL:     ocpi.JoinURL(uc.conf.Party.BaseURL, ocpi.VersionNumber),
		},
	}
}

func (uc *VersionUsecase) Details() ocpi.VersionDetails {
	return ocpi.VersionDetails{
		Version:   ocpi.VersionNumber,
		Endpoints: uc.conf.EndpointCatalogue(),
	}
}
