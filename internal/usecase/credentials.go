package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/config"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
)

var tracer = otel.Tracer("usecase")

// CredentialsUsecase drives the three-token registration handshake and the
// token lifecycle around it.
type CredentialsUsecase struct {
	repo   PeerRepository
	client PeerClient
	conf   config.Config
}

func NewCredentialsUsecase(
	repo PeerRepository,
	client PeerClient,
	conf config.Config,
) *CredentialsUsecase {
	return &CredentialsUsecase{
		repo:   repo,
		client: client,
		conf:   conf,
	}
}

// mintToken returns a fresh opaque bearer token with 256 bits of entropy.
func mintToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not mint token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (uc *CredentialsUsecase) selfCredentials(token string) ocpi.Credentials {
	return ocpi.Credentials{
		Token: token,
		URL:   ocpi.JoinURL(uc.conf.Party.BaseURL, "versions"),
		Roles: []ocpi.CredentialsRole{uc.conf.CredentialsRole()},
	}
}

func peerRole(roles []ocpi.CredentialsRole) ocpi.Role {
	if len(roles) > 0 {
		if role, err := ocpi.ParseRole(string(roles[0].Role)); err == nil {
			return role
		}
	}
	// counterparties that do not declare a role are treated as operators
	return ocpi.RoleCPO
}

// InitiateRegistration performs the outbound side of the handshake against
// peerURL, authenticating with inboundToken (tokenA). A failed version
// discovery degrades to an empty endpoint catalogue; only a failed
// credential exchange aborts the registration.
func (uc *CredentialsUsecase) InitiateRegistration(ctx context.Context, peerURL, version, inboundToken string) error {
	ctx, span := tracer.Start(ctx, "Credentials.Usecase.InitiateRegistration")
	defer span.End()
	span.SetAttributes(attribute.String("peerURL", peerURL))

	endpoints, err := uc.client.GetVersionDetails(ctx, peerURL, version, inboundToken)
	if err != nil {
		span.RecordError(err)
		slog.Warn("version discovery failed, continuing with empty catalogue",
			slog.String("peer", peerURL),
			slog.String("error", err.Error()),
			slog.String("module", "credentials"),
		)
		endpoints = nil
	}

	tokenC, err := mintToken()
	if err != nil {
		return err
	}

	peerCreds, err := uc.client.PostCredentials(ctx, peerURL, version, inboundToken, uc.selfCredentials(tokenC))
	if err != nil {
		span.RecordError(err)
		return errors.Wrapf(domain.ErrRegistrationFailed, "credential exchange with %s: %v", peerURL, err)
	}

	peer := domain.Peer{
		Token:         tokenC,
		URL:           peerURL,
		OutboundToken: peerCreds.Token,
		Endpoints:     endpoints,
		Role:          peerRole(peerCreds.Roles),
	}

	if err := uc.repo.ReplaceByURL(ctx, peer); err != nil {
		return err
	}

	slog.Info("registration with peer completed",
		slog.String("peer", peerURL),
		slog.String("role", string(peer.Role)),
		slog.Int("endpoints", len(endpoints)),
		slog.String("module", "credentials"),
	)
	return nil
}

// AcceptRegistration handles an inbound credentials POST/PUT. The presenting
// token (tokenA on first contact, the current registered token on rotation)
// is retired, a fresh local token is minted, and the credentials the peer
// must use from now on are returned.
func (uc *CredentialsUsecase) AcceptRegistration(ctx context.Context, payload ocpi.Credentials, presentedToken string) (ocpi.Credentials, error) {
	ctx, span := tracer.Start(ctx, "Credentials.Usecase.AcceptRegistration")
	defer span.End()

	if _, err := uc.repo.Delete(ctx, presentedToken); err != nil {
		return ocpi.Credentials{}, err
	}

	tokenB := payload.Token
	peerURL := payload.URL

	tokenC, err := mintToken()
	if err != nil {
		return ocpi.Credentials{}, err
	}

	endpoints, err := uc.client.GetVersionDetails(ctx, peerURL, ocpi.VersionNumber, tokenB)
	if err != nil {
		span.RecordError(err)
		slog.Warn("version discovery failed, continuing with empty catalogue",
			slog.String("peer", peerURL),
			slog.String("error", err.Error()),
			slog.String("module", "credentials"),
		)
		endpoints = nil
	}

	peer := domain.Peer{
		Token:         tokenC,
		URL:           peerURL,
		OutboundToken: tokenB,
		Endpoints:     endpoints,
		Role:          peerRole(payload.Roles),
	}

	if err := uc.repo.Create(ctx, peer); err != nil {
		return ocpi.Credentials{}, err
	}

	slog.Info("accepted peer registration",
		slog.String("peer", peerURL),
		slog.String("role", string(peer.Role)),
		slog.String("module", "credentials"),
	)
	return uc.selfCredentials(tokenC), nil
}

// Unregister retires a token. Deleting a token that is already gone reports
// ErrNotAllowed so retries can tell the difference.
func (uc *CredentialsUsecase) Unregister(ctx context.Context, token string) error {
	deleted, err := uc.repo.Delete(ctx, token)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotAllowed
	}
	return nil
}

// Credentials returns the credentials object currently associated with the
// presenting token.
func (uc *CredentialsUsecase) Credentials(token string) ocpi.Credentials {
	return uc.selfCredentials(token)
}

// Register handles the internal registration trigger. Without a client
// token, the outbound token already on file for the URL is reused; with one,
// a fresh handshake runs and stale records for the URL are purged.
func (uc *CredentialsUsecase) Register(ctx context.Context, req ocpi.RegisterRequest) error {
	version := req.Version
	if version == "" {
		version = ocpi.VersionNumber
	}

	inbound := req.ClientToken
	if inbound == "" {
		peer, err := uc.repo.GetByURL(ctx, req.ClientURL)
		if err != nil {
			return errors.Wrapf(err, "no registration on file for %s", req.ClientURL)
		}
		inbound = peer.OutboundToken
	}

	return uc.InitiateRegistration(ctx, req.ClientURL, version, inbound)
}
