package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/config"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
	"github.com/julianfickerseq/ocpi-server/internal/present/rest/middleware"
	"github.com/julianfickerseq/ocpi-server/internal/usecase"
)

// --- mocks ---

type mockPeerRepo struct {
	peers map[string]domain.Peer
}

func (m *mockPeerRepo) Get(ctx context.Context, token string) (domain.Peer, error) {
	peer, ok := m.peers[token]
	if !ok {
		return domain.Peer{}, domain.NotFoundError{Resource: "peer"}
	}
	return peer, nil
}

func (m *mockPeerRepo) GetByURL(ctx context.Context, url string) (domain.Peer, error) {
	return domain.Peer{}, domain.NotFoundError{Resource: "peer"}
}

func (m *mockPeerRepo) List(ctx context.Context) ([]domain.Peer, error) { return nil, nil }

func (m *mockPeerRepo) Create(ctx context.Context, peer domain.Peer) error {
	m.peers[peer.Token] = peer
	return nil
}

func (m *mockPeerRepo) ReplaceByURL(ctx context.Context, peer domain.Peer) error {
	m.peers[peer.Token] = peer
	return nil
}

func (m *mockPeerRepo) Delete(ctx context.Context, token string) (bool, error) {
	if _, ok := m.peers[token]; !ok {
		return false, nil
	}
	delete(m.peers, token)
	return true, nil
}

type mockLocationRepo struct {
	locations map[string]ocpi.Location
	total     int64
}

func (m *mockLocationRepo) List(ctx context.Context, from, to time.Time, offset, limit int, visible []string) ([]ocpi.Location, int64, error) {
	return nil, m.total, nil
}

func (m *mockLocationRepo) Get(ctx context.Context, ref domain.LocationRef) (ocpi.Location, error) {
	location, ok := m.locations[ref.LocationID]
	if !ok {
		return ocpi.Location{}, domain.NotFoundError{Resource: "location"}
	}
	return location, nil
}

func (m *mockLocationRepo) Put(ctx context.Context, ref domain.LocationRef, location ocpi.Location) error {
	m.locations[location.ID] = location
	return nil
}

func (m *mockLocationRepo) Patch(ctx context.Context, ref domain.LocationRef, patch map[string]any) error {
	if _, ok := m.locations[ref.LocationID]; !ok {
		return domain.NotFoundError{Resource: "location"}
	}
	return nil
}

func (m *mockLocationRepo) GetEVSE(ctx context.Context, ref domain.LocationRef) (ocpi.EVSE, error) {
	return ocpi.EVSE{}, domain.NotFoundError{Resource: "evse"}
}

func (m *mockLocationRepo) PutEVSE(ctx context.Context, ref domain.LocationRef, evse ocpi.EVSE) error {
	return nil
}

func (m *mockLocationRepo) PatchEVSE(ctx context.Context, ref domain.LocationRef, patch map[string]any) error {
	return domain.NotFoundError{Resource: "evse"}
}

func (m *mockLocationRepo) GetConnector(ctx context.Context, ref domain.LocationRef) (ocpi.Connector, error) {
	return ocpi.Connector{}, domain.NotFoundError{Resource: "connector"}
}

func (m *mockLocationRepo) PutConnector(ctx context.Context, ref domain.LocationRef, connector ocpi.Connector) error {
	return nil
}

func (m *mockLocationRepo) PatchConnector(ctx context.Context, ref domain.LocationRef, patch map[string]any) error {
	return domain.NotFoundError{Resource: "connector"}
}

type mockSessionRepo struct {
	sessions map[string]ocpi.Session
}

func (m *mockSessionRepo) List(ctx context.Context, from, to time.Time, offset, limit int, visible []string) ([]ocpi.Session, int64, error) {
	return nil, 0, nil
}

func (m *mockSessionRepo) Get(ctx context.Context, ref domain.SessionRef) (ocpi.Session, error) {
	session, ok := m.sessions[ref.SessionID]
	if !ok {
		return ocpi.Session{}, domain.NotFoundError{Resource: "session"}
	}
	return session, nil
}

func (m *mockSessionRepo) Put(ctx context.Context, ref domain.SessionRef, session ocpi.Session) error {
	m.sessions[session.ID] = session
	return nil
}

func (m *mockSessionRepo) Patch(ctx context.Context, ref domain.SessionRef, patch map[string]any) error {
	return nil
}

type mockClient struct{}

func (m *mockClient) GetVersionDetails(ctx context.Context, peerURL, version, token string) ([]ocpi.Endpoint, error) {
	return nil, nil
}

func (m *mockClient) PostCredentials(ctx context.Context, peerURL, version, token string, credentials ocpi.Credentials) (ocpi.Credentials, error) {
	return ocpi.Credentials{Token: "their-token"}, nil
}

func (m *mockClient) GetLocation(ctx context.Context, endpointURL, token, locationID string) (ocpi.Location, error) {
	return ocpi.Location{}, domain.NotFoundError{Resource: "location"}
}

func (m *mockClient) PushObject(ctx context.Context, method, url, token string, object any) error {
	return nil
}

// --- fixture ---

type fixture struct {
	echo      *echo.Echo
	peers     *mockPeerRepo
	locations *mockLocationRepo
	sessions  *mockSessionRepo
}

func newFixture() *fixture {
	conf := config.Config{
		Party: config.Party{
			BaseURL:     "https://cpo.example.com/ocpi",
			PartyID:     "EXA",
			CountryCode: "DE",
			Role:        "CPO",
			Modules: map[string]string{
				"credentials": "BOTH",
				"locations":   "BOTH",
				"sessions":    "BOTH",
			},
		},
		Server: config.Server{
			LocationPageSize: 2,
			SessionPageSize:  100,
		},
	}

	peers := &mockPeerRepo{peers: map[string]domain.Peer{
		"cpo-token":  {Token: "cpo-token", Role: ocpi.RoleCPO},
		"emsp-token": {Token: "emsp-token", Role: ocpi.RoleEMSP},
		"scsp-token": {Token: "scsp-token", Role: ocpi.RoleSCSP, AllowedLocations: []string{"LOC1"}},
	}}
	locations := &mockLocationRepo{locations: map[string]ocpi.Location{}}
	sessions := &mockSessionRepo{sessions: map[string]ocpi.Session{}}

	client := &mockClient{}
	auth := middleware.NewAuthMiddleware(peers)
	handler := NewHandler(
		conf,
		auth,
		usecase.NewVersionUsecase(conf),
		usecase.NewCredentialsUsecase(peers, client, conf),
		usecase.NewLocationUsecase(locations, client, nil),
		usecase.NewSessionUsecase(sessions, nil),
	)

	e := echo.New()
	handler.RegisterRoutes(e)

	return &fixture{echo: e, peers: peers, locations: locations, sessions: sessions}
}

type testEnvelope struct {
	Data       json.RawMessage `json:"data"`
	StatusCode int             `json:"status_code"`
}

func (f *fixture) do(method, path, token string, body any) (*httptest.ResponseRecorder, testEnvelope) {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(domain.AuthorizationHeader, domain.TokenScheme+" "+token)
	}
	res := httptest.NewRecorder()
	f.echo.ServeHTTP(res, req)

	var env testEnvelope
	json.Unmarshal(res.Body.Bytes(), &env)
	return res, env
}

// --- tests ---

func TestMissingTokenRejected(t *testing.T) {
	f := newFixture()

	res, _ := f.do(http.MethodGet, "/ocpi/versions", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", res.Code)
	}
}

func TestUnknownTokenRejected(t *testing.T) {
	f := newFixture()

	res, _ := f.do(http.MethodGet, "/ocpi/versions", "bogus", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", res.Code)
	}
}

func TestVersionIndex(t *testing.T) {
	f := newFixture()

	res, env := f.do(http.MethodGet, "/ocpi/versions", "cpo-token", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	if env.StatusCode != ocpi.StatusSuccess {
		t.Fatalf("expected status 1000 got %d", env.StatusCode)
	}

	var versions []ocpi.Version
	if err := json.Unmarshal(env.Data, &versions); err != nil {
		t.Fatalf("failed to decode versions: %v", err)
	}
	if len(versions) != 1 || versions[0].Version != ocpi.VersionNumber {
		t.Fatalf("unexpected version index: %+v", versions)
	}
}

func TestRolePutForbidden(t *testing.T) {
	f := newFixture()

	location := ocpi.Location{ID: "LOC1"}
	res, _ := f.do(http.MethodPut, "/ocpi/2.1.1/locations/DE/EXA/LOC1", "emsp-token", location)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}
}

func TestScopedPeerDeniedOutsideScope(t *testing.T) {
	f := newFixture()
	f.locations.locations["LOC2"] = ocpi.Location{ID: "LOC2"}

	res, _ := f.do(http.MethodGet, "/ocpi/2.1.1/locations/DE/EXA/LOC2", "scsp-token", nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", res.Code)
	}
}

func TestScopedPeerAllowedInScope(t *testing.T) {
	f := newFixture()
	f.locations.locations["LOC1"] = ocpi.Location{ID: "LOC1"}

	res, env := f.do(http.MethodGet, "/ocpi/2.1.1/locations/DE/EXA/LOC1", "scsp-token", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	if env.StatusCode != ocpi.StatusSuccess {
		t.Fatalf("expected status 1000 got %d", env.StatusCode)
	}
}

func TestUnknownLocationDomainError(t *testing.T) {
	f := newFixture()

	res, env := f.do(http.MethodGet, "/ocpi/2.1.1/locations/DE/EXA/NOPE", "cpo-token", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("domain errors ride on 200, got %d", res.Code)
	}
	if env.StatusCode != ocpi.StatusUnknownLocation {
		t.Fatalf("expected status 2003 got %d", env.StatusCode)
	}
}

func TestPutLocationIDMismatch(t *testing.T) {
	f := newFixture()

	location := ocpi.Location{ID: "OTHER"}
	res, env := f.do(http.MethodPut, "/ocpi/2.1.1/locations/DE/EXA/LOC1", "cpo-token", location)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", res.Code)
	}
	if env.StatusCode != ocpi.StatusInvalidParams {
		t.Fatalf("expected status 2001 got %d", env.StatusCode)
	}
}

func TestPutAndGetLocation(t *testing.T) {
	f := newFixture()

	location := ocpi.Location{ID: "LOC1", Address: "Musterstr. 1", City: "Berlin", Country: "DEU"}
	res, _ := f.do(http.MethodPut, "/ocpi/2.1.1/locations/DE/EXA/LOC1", "cpo-token", location)
	if res.Code != http.StatusOK {
		t.Fatalf("put failed with %d", res.Code)
	}

	res, env := f.do(http.MethodGet, "/ocpi/2.1.1/locations/DE/EXA/LOC1", "cpo-token", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("get failed with %d", res.Code)
	}

	var got ocpi.Location
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("failed to decode location: %v", err)
	}
	if got.City != "Berlin" {
		t.Fatalf("unexpected location: %+v", got)
	}
}

func TestPaginationHeadersWithNextPage(t *testing.T) {
	f := newFixture()
	f.locations.total = 5

	res, _ := f.do(http.MethodGet, "/ocpi/2.1.1/locations?offset=0&limit=2", "cpo-token", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("list failed with %d", res.Code)
	}

	if got := res.Header().Get(domain.TotalCountHeader); got != "5" {
		t.Fatalf("expected X-Total-Count 5 got %q", got)
	}
	if got := res.Header().Get(domain.LimitHeader); got != "2" {
		t.Fatalf("expected X-Limit 2 got %q", got)
	}

	link := res.Header().Get(domain.LinkHeader)
	if link == "" {
		t.Fatalf("expected a Link header pointing at the next page")
	}
	if !strings.Contains(link, "offset=2") || !strings.Contains(link, `rel="next"`) {
		t.Fatalf("unexpected Link header: %s", link)
	}
	if !strings.Contains(link, "https://cpo.example.com") {
		t.Fatalf("next-page link must be built from the advertised base url: %s", link)
	}
}

func TestPaginationHeadersLastPage(t *testing.T) {
	f := newFixture()
	f.locations.total = 2

	res, _ := f.do(http.MethodGet, "/ocpi/2.1.1/locations?offset=0&limit=2", "cpo-token", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("list failed with %d", res.Code)
	}
	if link := res.Header().Get(domain.LinkHeader); link != "" {
		t.Fatalf("expected no Link header on the last page, got %s", link)
	}
}

func TestListLimitCappedAtPageSize(t *testing.T) {
	f := newFixture()
	f.locations.total = 5

	res, _ := f.do(http.MethodGet, "/ocpi/2.1.1/locations?limit=500", "cpo-token", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("list failed with %d", res.Code)
	}
	if got := res.Header().Get(domain.LimitHeader); got != "2" {
		t.Fatalf("expected the limit to be capped at the page size, got %q", got)
	}
}

func TestListZeroLimitRejected(t *testing.T) {
	f := newFixture()
	f.locations.total = 5

	res, env := f.do(http.MethodGet, "/ocpi/2.1.1/locations?offset=0&limit=0", "cpo-token", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", res.Code)
	}
	if env.StatusCode != ocpi.StatusInvalidParams {
		t.Fatalf("expected status %d, got %d", ocpi.StatusInvalidParams, env.StatusCode)
	}
	if link := res.Header().Get(domain.LinkHeader); link != "" {
		t.Fatalf("expected no Link header on a rejected query, got %s", link)
	}
}

func TestCredentialsRotation(t *testing.T) {
	f := newFixture()

	payload := ocpi.Credentials{
		Token: "tokenB",
		URL:   "https://emsp.example.com/ocpi/versions",
		Roles: []ocpi.CredentialsRole{{Role: ocpi.RoleEMSP}},
	}

	res, env := f.do(http.MethodPost, "/ocpi/2.1.1/credentials", "emsp-token", payload)
	if res.Code != http.StatusOK {
		t.Fatalf("credentials post failed with %d", res.Code)
	}

	var granted ocpi.Credentials
	if err := json.Unmarshal(env.Data, &granted); err != nil {
		t.Fatalf("failed to decode granted credentials: %v", err)
	}
	if granted.Token == "" || granted.Token == "emsp-token" {
		t.Fatalf("expected a freshly minted token, got %q", granted.Token)
	}

	// the old token is retired immediately
	res, _ = f.do(http.MethodGet, "/ocpi/versions", "emsp-token", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected the retired token to be rejected, got %d", res.Code)
	}

	res, _ = f.do(http.MethodGet, "/ocpi/versions", granted.Token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected the granted token to authenticate, got %d", res.Code)
	}
}

func TestDeleteCredentialsTwice(t *testing.T) {
	f := newFixture()

	res, _ := f.do(http.MethodDelete, "/ocpi/2.1.1/credentials", "emsp-token", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("unregister failed with %d", res.Code)
	}

	// second delete: token is already gone, so auth itself rejects it
	res, _ = f.do(http.MethodDelete, "/ocpi/2.1.1/credentials", "emsp-token", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after unregistering, got %d", res.Code)
	}
}

func TestPutSession(t *testing.T) {
	f := newFixture()

	session := ocpi.Session{
		ID:         "S1",
		AuthID:     "AUTH1",
		AuthMethod: "AUTH_REQUEST",
		Currency:   "EUR",
		Status:     ocpi.SessionActive,
		Location:   ocpi.Location{ID: "LOC1"},
	}
	res, _ := f.do(http.MethodPut, "/ocpi/2.1.1/sessions/DE/EXA/S1", "cpo-token", session)
	if res.Code != http.StatusOK {
		t.Fatalf("put session failed with %d", res.Code)
	}

	res, env := f.do(http.MethodGet, "/ocpi/2.1.1/sessions/DE/EXA/S1", "emsp-token", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("get session failed with %d", res.Code)
	}

	var got ocpi.Session
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if got.ID != "S1" || got.Location.ID != "LOC1" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestUnknownSessionDomainError(t *testing.T) {
	f := newFixture()

	res, env := f.do(http.MethodGet, "/ocpi/2.1.1/sessions/DE/EXA/NOPE", "cpo-token", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("domain errors ride on 200, got %d", res.Code)
	}
	if env.StatusCode != ocpi.StatusClientError {
		t.Fatalf("expected status 2000 got %d", env.StatusCode)
	}
}
