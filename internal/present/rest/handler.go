package rest

import (
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/config"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
	"github.com/julianfickerseq/ocpi-server/internal/present/rest/middleware"
	"github.com/julianfickerseq/ocpi-server/internal/present/rest/presenter"
	"github.com/julianfickerseq/ocpi-server/internal/usecase"
)

// The listing window defaults span every record; a missing date_from or
// date_to means "no bound" on that side.
var (
	defaultDateFrom = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	defaultDateTo   = time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
)

type Handler struct {
	config      config.Config
	auth        *middleware.AuthMiddleware
	versions    *usecase.VersionUsecase
	credentials *usecase.CredentialsUsecase
	locations   *usecase.LocationUsecase
	sessions    *usecase.SessionUsecase
}

func NewHandler(
	config config.Config,
	auth *middleware.AuthMiddleware,
	versions *usecase.VersionUsecase,
	credentials *usecase.CredentialsUsecase,
	locations *usecase.LocationUsecase,
	sessions *usecase.SessionUsecase,
) *Handler {
	return &Handler{
		config:      config,
		auth:        auth,
		versions:    versions,
		credentials: credentials,
		locations:   locations,
		sessions:    sessions,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	prefix := ""
	if parsed, err := url.Parse(h.config.Party.BaseURL); err == nil {
		prefix = parsed.Path
	}

	// Registration bootstrap for the operator, not part of the peer surface.
	e.POST("/register", h.handleRegister)

	g := e.Group(prefix, h.auth.Identify)

	g.GET("/versions", h.handleVersions)
	g.GET("/"+ocpi.VersionNumber, h.handleVersionDetails)

	v := g.Group("/" + ocpi.VersionNumber)

	v.GET("/credentials", h.handleGetCredentials)
	v.POST("/credentials", h.handlePostCredentials)
	v.PUT("/credentials", h.handlePostCredentials)
	v.DELETE("/credentials", h.handleDeleteCredentials)

	readRoles := h.auth.RequireRoles(ocpi.RoleCPO, ocpi.RoleEMSP, ocpi.RoleNSP, ocpi.RoleSCSP)
	writeRoles := h.auth.RequireRoles(ocpi.RoleCPO)

	v.GET("/locations", h.handleListLocations, readRoles)
	v.GET("/locations/:country_code/:party_id/:location_id", h.handleGetLocation, readRoles)
	v.PUT("/locations/:country_code/:party_id/:location_id", h.handlePutLocation, writeRoles)
	v.PATCH("/locations/:country_code/:party_id/:location_id", h.handlePatchLocation, writeRoles)
	v.GET("/locations/:country_code/:party_id/:location_id/:evse_uid", h.handleGetEVSE, readRoles)
	v.PUT("/locations/:country_code/:party_id/:location_id/:evse_uid", h.handlePutEVSE, writeRoles)
	v.PATCH("/locations/:country_code/:party_id/:location_id/:evse_uid", h.handlePatchEVSE, writeRoles)
	v.GET("/locations/:country_code/:party_id/:location_id/:evse_uid/:connector_id", h.handleGetConnector, readRoles)
	v.PUT("/locations/:country_code/:party_id/:location_id/:evse_uid/:connector_id", h.handlePutConnector, writeRoles)
	v.PATCH("/locations/:country_code/:party_id/:location_id/:evse_uid/:connector_id", h.handlePatchConnector, writeRoles)

	v.GET("/sessions", h.handleListSessions, readRoles)
	v.GET("/sessions/:country_code/:party_id/:session_id", h.handleGetSession, readRoles)
	v.PUT("/sessions/:country_code/:party_id/:session_id", h.handlePutSession, writeRoles)
	v.PATCH("/sessions/:country_code/:party_id/:session_id", h.handlePatchSession, writeRoles)
}

func (h *Handler) handleVersions(c echo.Context) error {
	return presenter.OK(c, h.versions.Versions())
}

func (h *Handler) handleVersionDetails(c echo.Context) error {
	return presenter.OK(c, h.versions.Details())
}

func (h *Handler) handleRegister(c echo.Context) error {
	ctx := c.Request().Context()

	var req ocpi.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, "invalid request body")
	}
	if req.ClientURL == "" {
		return presenter.BadRequest(c, "client_url is required")
	}

	err := h.credentials.Register(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrRegistrationFailed) {
			return presenter.DomainError(c, ocpi.StatusClientAPIError, err.Error())
		}
		return presenter.ServerError(c, err)
	}
	return presenter.OK(c, nil)
}

func (h *Handler) handleGetCredentials(c echo.Context) error {
	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}
	return presenter.OK(c, h.credentials.Credentials(peer.Token))
}

func (h *Handler) handlePostCredentials(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var payload ocpi.Credentials
	if err := c.Bind(&payload); err != nil {
		return presenter.BadRequest(c, "invalid credentials body")
	}
	if payload.Token == "" || payload.URL == "" {
		return presenter.BadRequest(c, "token and url are required")
	}

	granted, err := h.credentials.AcceptRegistration(ctx, payload, peer.Token)
	if err != nil {
		return presenter.ServerError(c, err)
	}
	return presenter.OK(c, granted)
}

func (h *Handler) handleDeleteCredentials(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	err := h.credentials.Unregister(ctx, peer.Token)
	if err != nil {
		if errors.Is(err, domain.ErrNotAllowed) {
			return presenter.MethodNotAllowed(c)
		}
		return presenter.ServerError(c, err)
	}
	return presenter.OK(c, nil)
}

func (h *Handler) handleListLocations(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	from, to, offset, limit, err := parseListQuery(c, h.config.Server.LocationPageSize)
	if err != nil {
		return presenter.BadRequest(c, err.Error())
	}

	locations, total, err := h.locations.List(ctx, peer, from, to, offset, limit)
	if err != nil {
		return presenter.ServerError(c, err)
	}

	setPaginationHeaders(c, h.config.Party.BaseURL, total, offset, limit)
	return presenter.OK(c, locations)
}

func (h *Handler) handleGetLocation(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	location, err := h.locations.Get(ctx, peer, locationRef(c))
	if err != nil {
		return locationError(c, err)
	}
	return presenter.OK(c, location)
}

func (h *Handler) handlePutLocation(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var location ocpi.Location
	if err := c.Bind(&location); err != nil {
		return presenter.BadRequest(c, "invalid location body")
	}

	err := h.locations.Put(ctx, peer, locationRef(c), location)
	if err != nil {
		return locationError(c, err)
	}
	return presenter.OK(c, nil)
}

func (h *Handler) handlePatchLocation(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	patch, err := bindPatch(c)
	if err != nil {
		return presenter.BadRequest(c, "invalid patch body")
	}

	err = h.locations.Patch(ctx, peer, locationRef(c), patch)
	if err != nil {
		return locationError(c, err)
	}
	return presenter.OK(c, nil)
}

func (h *Handler) handleGetEVSE(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	evse, err := h.locations.GetEVSE(ctx, peer, locationRef(c))
	if err != nil {
		return locationError(c, err)
	}
	return presenter.OK(c, evse)
}

func (h *Handler) handlePutEVSE(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var evse ocpi.EVSE
	if err := c.Bind(&evse); err != nil {
		return presenter.BadRequest(c, "invalid evse body")
	}

	err := h.locations.PutEVSE(ctx, peer, locationRef(c), evse)
	if err != nil {
		return locationError(c, err)
	}
	return presenter.OK(c, nil)
}

func (h *Handler) handlePatchEVSE(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	patch, err := bindPatch(c)
	if err != nil {
		return presenter.BadRequest(c, "invalid patch body")
	}

	err = h.locations.PatchEVSE(ctx, peer, locationRef(c), patch)
	if err != nil {
		return locationError(c, err)
	}
	return presenter.OK(c, nil)
}

func (h *Handler) handleGetConnector(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	connector, err := h.locations.GetConnector(ctx, peer, locationRef(c))
	if err != nil {
		return locationError(c, err)
	}
	return presenter.OK(c, connector)
}

func (h *Handler) handlePutConnector(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var connector ocpi.Connector
	if err := c.Bind(&connector); err != nil {
		return presenter.BadRequest(c, "invalid connector body")
	}

	err := h.locations.PutConnector(ctx, peer, locationRef(c), connector)
	if err != nil {
		return locationError(c, err)
	}
	return presenter.OK(c, nil)
}

func (h *Handler) handlePatchConnector(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	patch, err := bindPatch(c)
	if err != nil {
		return presenter.BadRequest(c, "invalid patch body")
	}

	err = h.locations.PatchConnector(ctx, peer, locationRef(c), patch)
	if err != nil {
		return locationError(c, err)
	}
	return presenter.OK(c, nil)
}

func (h *Handler) handleListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	from, to, offset, limit, err := parseListQuery(c, h.config.Server.SessionPageSize)
	if err != nil {
		return presenter.BadRequest(c, err.Error())
	}

	sessions, total, err := h.sessions.List(ctx, peer, from, to, offset, limit)
	if err != nil {
		return presenter.ServerError(c, err)
	}

	setPaginationHeaders(c, h.config.Party.BaseURL, total, offset, limit)
	return presenter.OK(c, sessions)
}

func (h *Handler) handleGetSession(c echo.Context) error {
	ctx := c.Request().Context()

	session, err := h.sessions.Get(ctx, sessionRef(c))
	if err != nil {
		return sessionError(c, err)
	}
	return presenter.OK(c, session)
}

func (h *Handler) handlePutSession(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	var session ocpi.Session
	if err := c.Bind(&session); err != nil {
		return presenter.BadRequest(c, "invalid session body")
	}

	err := h.sessions.Put(ctx, peer, sessionRef(c), session)
	if err != nil {
		return sessionError(c, err)
	}
	return presenter.OK(c, nil)
}

func (h *Handler) handlePatchSession(c echo.Context) error {
	ctx := c.Request().Context()

	peer, ok := middleware.RequesterPeer(c)
	if !ok {
		return presenter.Unauthorized(c)
	}

	patch, err := bindPatch(c)
	if err != nil {
		return presenter.BadRequest(c, "invalid patch body")
	}

	err = h.sessions.Patch(ctx, peer, sessionRef(c), patch)
	if err != nil {
		return sessionError(c, err)
	}
	return presenter.OK(c, nil)
}

func locationRef(c echo.Context) domain.LocationRef {
	return domain.LocationRef{
		CountryCode: c.Param("country_code"),
		PartyID:     c.Param("party_id"),
		LocationID:  c.Param("location_id"),
		EVSEUID:     c.Param("evse_uid"),
		ConnectorID: c.Param("connector_id"),
	}
}

func sessionRef(c echo.Context) domain.SessionRef {
	return domain.SessionRef{
		CountryCode: c.Param("country_code"),
		PartyID:     c.Param("party_id"),
		SessionID:   c.Param("session_id"),
	}
}

func bindPatch(c echo.Context) (map[string]any, error) {
	var patch map[string]any
	if err := c.Bind(&patch); err != nil {
		return nil, err
	}
	return patch, nil
}

func parseListQuery(c echo.Context, pageSize int) (from, to time.Time, offset, limit int, err error) {
	from = defaultDateFrom
	if s := c.QueryParam("date_from"); s != "" {
		from, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return from, to, 0, 0, errors.New("invalid date_from parameter")
		}
	}

	to = defaultDateTo
	if s := c.QueryParam("date_to"); s != "" {
		to, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return from, to, 0, 0, errors.New("invalid date_to parameter")
		}
	}

	if s := c.QueryParam("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return from, to, 0, 0, errors.New("invalid offset parameter")
		}
	}

	limit = pageSize
	if s := c.QueryParam("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit <= 0 {
			return from, to, 0, 0, errors.New("invalid limit parameter")
		}
	}
	if limit > pageSize {
		limit = pageSize
	}

	return from, to, offset, limit, nil
}

func locationError(c echo.Context, err error) error {
	return moduleError(c, err, ocpi.StatusUnknownLocation)
}

func sessionError(c echo.Context, err error) error {
	return moduleError(c, err, ocpi.StatusClientError)
}

func moduleError(c echo.Context, err error, notFoundStatus int) error {
	var malformed domain.MalformedError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return presenter.DomainError(c, notFoundStatus, err.Error())
	case errors.As(err, &malformed):
		return presenter.BadRequest(c, malformed.Reason)
	case errors.Is(err, domain.ErrUpstream):
		return presenter.DomainError(c, ocpi.StatusClientAPIError, err.Error())
	default:
		return presenter.ServerError(c, err)
	}
}
