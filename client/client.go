package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "ocpi-server/" + ocpi.VersionNumber
)

// Client performs the outbound protocol calls against registered peers.
// Version discovery results are cached per peer because the catalogue only
// changes when the peer re-registers.
type Client struct {
	client *http.Client
	cache  *cache.Cache
}

func New() *Client {
	httpClient := http.Client{
		Timeout: defaultTimeout,
	}

	c := &Client{
		client: &httpClient,
		cache:  cache.New(10*time.Minute, 15*time.Minute),
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

// envelope mirrors the response wrapper with the payload left undecoded.
type envelope struct {
	Data       json.RawMessage `json:"data"`
	StatusCode int             `json:"status_code"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (c *Client) request(ctx context.Context, method, url, token string, body, response any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(domain.AuthorizationHeader, domain.TokenScheme+" "+token)
	req.Header.Set(domain.RequestIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	if env.StatusCode >= 2000 {
		return resp.StatusCode, fmt.Errorf("peer reported status %d", env.StatusCode)
	}

	if response != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, response); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// GetVersionDetails walks the peer's version index at peerURL and returns the
// endpoint catalogue of the requested version. The cache key includes the
// token so discovery with a freshly issued handshake token never reuses a
// catalogue cached before the peer re-registered.
func (c *Client) GetVersionDetails(ctx context.Context, peerURL, version, token string) ([]ocpi.Endpoint, error) {
	cacheKey := "endpoints:" + peerURL + ":" + version + ":" + token
	if x, found := c.cache.Get(cacheKey); found {
		return x.([]ocpi.Endpoint), nil
	}

	var versions []ocpi.Version
	if _, err := c.request(ctx, http.MethodGet, peerURL, token, nil, &versions); err != nil {
		return nil, fmt.Errorf("failed to get version index: %w", err)
	}

	detailsURL := ""
	for _, v := range versions {
		if v.Version == version {
			detailsURL = v.URL
			break
		}
	}
	if detailsURL == "" {
		return nil, fmt.Errorf("peer does not support version %s", version)
	}

	var details ocpi.VersionDetails
	if _, err := c.request(ctx, http.MethodGet, detailsURL, token, nil, &details); err != nil {
		return nil, fmt.Errorf("failed to get version details: %w", err)
	}

	c.cache.Set(cacheKey, details.Endpoints, cache.DefaultExpiration)
	return details.Endpoints, nil
}

// PostCredentials delivers our credentials to the peer and returns the
// credentials granted in exchange. Peers that are already registered answer
// the POST with 405; the exchange is then retried as a PUT.
func (c *Client) PostCredentials(ctx context.Context, peerURL, version, token string, credentials ocpi.Credentials) (ocpi.Credentials, error) {
	endpointURL := ocpi.JoinURL(peerURL, version, string(ocpi.ModuleCredentials))
	if endpoints, err := c.GetVersionDetails(ctx, peerURL, version, token); err == nil {
		for _, endpoint := range endpoints {
			if endpoint.Identifier == ocpi.ModuleCredentials {
				endpointURL = endpoint.URL
				break
			}
		}
	}

	var granted ocpi.Credentials
	status, err := c.request(ctx, http.MethodPost, endpointURL, token, credentials, &granted)
	if status == http.StatusMethodNotAllowed {
		_, err = c.request(ctx, http.MethodPut, endpointURL, token, credentials, &granted)
	}
	if err != nil {
		return ocpi.Credentials{}, fmt.Errorf("credentials exchange failed: %w", err)
	}

	if granted.Token == "" {
		return ocpi.Credentials{}, fmt.Errorf("peer granted no token")
	}
	return granted, nil
}

// GetLocation fetches one location aggregate from the peer's locations
// endpoint.
func (c *Client) GetLocation(ctx context.Context, endpointURL, token, locationID string) (ocpi.Location, error) {
	var location ocpi.Location
	_, err := c.request(ctx, http.MethodGet, ocpi.JoinURL(endpointURL, locationID), token, nil, &location)
	if err != nil {
		return ocpi.Location{}, fmt.Errorf("failed to get location %s: %w", locationID, err)
	}
	return location, nil
}

// PushObject delivers one changed object to a peer's receiver endpoint.
func (c *Client) PushObject(ctx context.Context, method, url, token string, object any) error {
	_, err := c.request(ctx, method, url, token, object, nil)
	return err
}
