package middleware

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
	"github.com/julianfickerseq/ocpi-server/internal/present/rest/presenter"
	"github.com/julianfickerseq/ocpi-server/internal/usecase"
)

var tracer = otel.Tracer("auth")

type AuthMiddleware struct {
	peers usecase.PeerRepository
}

func NewAuthMiddleware(peers usecase.PeerRepository) *AuthMiddleware {
	return &AuthMiddleware{
		peers: peers,
	}
}

// Identify resolves the presented token to a registered peer and stores it
// in the request context. Requests without a valid token are rejected.
func (s *AuthMiddleware) Identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.Identify")
		defer span.End()

		authHeader := c.Request().Header.Get(domain.AuthorizationHeader)
		if authHeader == "" {
			span.RecordError(fmt.Errorf("missing authorization header"))
			return presenter.Unauthorized(c)
		}

		split := strings.SplitN(authHeader, " ", 2)
		if len(split) != 2 || split[0] != domain.TokenScheme {
			span.RecordError(fmt.Errorf("invalid authorization header"))
			return presenter.Unauthorized(c)
		}

		peer, err := s.peers.Get(ctx, split[1])
		if err != nil {
			span.RecordError(errors.Wrap(err, "AuthMiddleware.Identify: peers.Get failed"))
			return presenter.Unauthorized(c)
		}

		ctx = context.WithValue(ctx, domain.RequesterPeerCtxKey, peer)
		ctx = context.WithValue(ctx, domain.RequesterTokenCtxKey, peer.Token)
		span.SetAttributes(attribute.String("RequesterRole", string(peer.Role)))

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// RequireRoles allows only peers holding one of the given roles. Peers with
// a location restriction are additionally checked against the location id
// path parameter when one is present.
func (s *AuthMiddleware) RequireRoles(roles ...ocpi.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			peer, ok := c.Request().Context().Value(domain.RequesterPeerCtxKey).(domain.Peer)
			if !ok {
				return presenter.Unauthorized(c)
			}

			if !slices.Contains(roles, peer.Role) {
				return presenter.Forbidden(c)
			}

			if locationID := c.Param("location_id"); locationID != "" {
				if !peer.LocationAllowed(locationID) {
					return presenter.Forbidden(c)
				}
			}

			return next(c)
		}
	}
}

// RequesterPeer extracts the authenticated peer from the request context.
func RequesterPeer(c echo.Context) (domain.Peer, bool) {
	peer, ok := c.Request().Context().Value(domain.RequesterPeerCtxKey).(domain.Peer)
	return peer, ok
}
