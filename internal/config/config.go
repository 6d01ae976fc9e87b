package config

import (
	"fmt"
	"os"

	"github.com/go-yaml/yaml"

	ocpi "github.com/julianfickerseq/ocpi-server"
)

type Config struct {
	Party  Party  `yaml:"party"`
	Server Server `yaml:"server"`
	// SeedTokens are pre-shared inbound tokens ("tokenA") handed out of
	// band, loaded into the peer registry at startup.
	SeedTokens []SeedToken `yaml:"seedTokens"`
}

type Party struct {
	// BaseURL is the externally advertised API root of this party. Next-page
	// links and the credentials URL are derived from it, never from the
	// inbound request, so they stay stable behind proxies.
	BaseURL         string            `yaml:"baseUrl"`
	PartyID         string            `yaml:"partyId"`
	CountryCode     string            `yaml:"countryCode"`
	Role            string            `yaml:"role"`
	BusinessName    string            `yaml:"businessName"`
	BusinessWebsite string            `yaml:"businessWebsite"`
	// Modules maps module identifier to the interface role this party
	// implements for it (SENDER, RECEIVER or BOTH).
	Modules map[string]string `yaml:"modules"`
}

type Server struct {
	Listen           string `yaml:"listen"`
	PostgresDsn      string `yaml:"postgresDsn"`
	RedisAddr        string `yaml:"redisAddr"`
	RedisDB          int    `yaml:"redisDB"`
	EnableTrace      bool   `yaml:"enableTrace"`
	TraceEndpoint    string `yaml:"traceEndpoint"`
	LocationPageSize int    `yaml:"locationPageSize"`
	SessionPageSize  int    `yaml:"sessionPageSize"`
	PushWorkers      int    `yaml:"pushWorkers"`
}

type SeedToken struct {
	Token            string   `yaml:"token"`
	URL              string   `yaml:"url"`
	Role             string   `yaml:"role"`
	AllowedLocations []string `yaml:"allowedLocations"`
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	if _, err := ocpi.ParseRole(config.Party.Role); err != nil {
		return Config{}, fmt.Errorf("party role: %w", err)
	}
	for _, seed := range config.SeedTokens {
		if _, err := ocpi.ParseRole(seed.Role); err != nil {
			return Config{}, fmt.Errorf("seed token %q: %w", seed.Token, err)
		}
	}

	if config.Server.LocationPageSize == 0 {
		config.Server.LocationPageSize = 50
	}
	if config.Server.SessionPageSize == 0 {
		config.Server.SessionPageSize = 100
	}
	if config.Server.PushWorkers == 0 {
		config.Server.PushWorkers = 4
	}

	return config, nil
}

// CredentialsRole is the business identity this party sends during the
// handshake.
func (c Config) CredentialsRole() ocpi.CredentialsRole {
	return ocpi.CredentialsRole{
		Role: ocpi.Role(c.Party.Role),
		BusinessDetails: ocpi.BusinessDetails{
			Name:    c.Party.BusinessName,
			Website: c.Party.BusinessWebsite,
		},
		PartyID:     c.Party.PartyID,
		CountryCode: c.Party.CountryCode,
	}
}

// EndpointCatalogue builds the endpoint list advertised by the version
// details endpoint from the configured modules.
func (c Config) EndpointCatalogue() []ocpi.Endpoint {
	endpoints := make([]ocpi.Endpoint, 0, len(c.Party.Modules))
	for _, id := range []ocpi.ModuleID{ocpi.ModuleCredentials, ocpi.ModuleLocations, ocpi.ModuleSessions} {
		role, ok := c.Party.Modules[string(id)]
		if !ok {
			continue
		}
		endpoints = append(endpoints, ocpi.Endpoint{
			Identifier: id,
			Role:       ocpi.InterfaceRole(role),
			URL:        ocpi.JoinURL(c.Party.BaseURL, ocpi.VersionNumber, string(id)),
		})
	}
	return endpoints
}
