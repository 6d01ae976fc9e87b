package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
)

func writeEnvelope(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ocpi.Response{
		Data:       data,
		StatusCode: statusCode,
		Timestamp:  time.Now().UTC(),
	})
}

func TestGetVersionDetails(t *testing.T) {
	var gotAuth string

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/ocpi/versions", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get(domain.AuthorizationHeader)
		writeEnvelope(w, []ocpi.Version{
			{Version: "2.0", URL: server.URL + "/ocpi/2.0"},
			{Version: ocpi.VersionNumber, URL: server.URL + "/ocpi/2.1.1"},
		}, ocpi.StatusSuccess)
	})
	mux.HandleFunc("/ocpi/2.1.1", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, ocpi.VersionDetails{
			Version: ocpi.VersionNumber,
			Endpoints: []ocpi.Endpoint{
				{Identifier: ocpi.ModuleLocations, Role: ocpi.InterfaceSender, URL: server.URL + "/ocpi/2.1.1/locations"},
			},
		}, ocpi.StatusSuccess)
	})

	c := New()
	endpoints, err := c.GetVersionDetails(context.Background(), server.URL+"/ocpi/versions", ocpi.VersionNumber, "tokenA")
	if err != nil {
		t.Fatalf("version discovery failed: %v", err)
	}

	if len(endpoints) != 1 || endpoints[0].Identifier != ocpi.ModuleLocations {
		t.Fatalf("unexpected endpoints: %+v", endpoints)
	}
	if gotAuth != "Token tokenA" {
		t.Fatalf("unexpected authorization header: %q", gotAuth)
	}
}

func TestGetVersionDetailsUnsupportedVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []ocpi.Version{{Version: "2.0", URL: "http://example.com/2.0"}}, ocpi.StatusSuccess)
	}))
	defer server.Close()

	c := New()
	_, err := c.GetVersionDetails(context.Background(), server.URL, ocpi.VersionNumber, "tokenA")
	if err == nil {
		t.Fatalf("expected an error for an unsupported version")
	}
}

func TestGetVersionDetailsFreshTokenSkipsCache(t *testing.T) {
	locationsURL := "https://old.example.com/ocpi/2.1.1/locations"

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/ocpi/versions", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []ocpi.Version{{Version: ocpi.VersionNumber, URL: server.URL + "/ocpi/2.1.1"}}, ocpi.StatusSuccess)
	})
	mux.HandleFunc("/ocpi/2.1.1", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, ocpi.VersionDetails{
			Version: ocpi.VersionNumber,
			Endpoints: []ocpi.Endpoint{
				{Identifier: ocpi.ModuleLocations, Role: ocpi.InterfaceSender, URL: locationsURL},
			},
		}, ocpi.StatusSuccess)
	})

	c := New()
	if _, err := c.GetVersionDetails(context.Background(), server.URL+"/ocpi/versions", ocpi.VersionNumber, "tokenA"); err != nil {
		t.Fatalf("version discovery failed: %v", err)
	}

	// The peer moved its locations endpoint and re-registered. Discovery
	// with the new handshake token must not reuse the cached catalogue.
	locationsURL = "https://new.example.com/ocpi/2.1.1/locations"
	endpoints, err := c.GetVersionDetails(context.Background(), server.URL+"/ocpi/versions", ocpi.VersionNumber, "tokenB")
	if err != nil {
		t.Fatalf("version discovery failed: %v", err)
	}
	if len(endpoints) != 1 || endpoints[0].URL != "https://new.example.com/ocpi/2.1.1/locations" {
		t.Fatalf("expected the refreshed catalogue, got %+v", endpoints)
	}
}

func TestPostCredentialsFallsBackToPut(t *testing.T) {
	var methods []string

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/ocpi/versions", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, []ocpi.Version{{Version: ocpi.VersionNumber, URL: server.URL + "/ocpi/2.1.1"}}, ocpi.StatusSuccess)
	})
	mux.HandleFunc("/ocpi/2.1.1", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, ocpi.VersionDetails{
			Version: ocpi.VersionNumber,
			Endpoints: []ocpi.Endpoint{
				{Identifier: ocpi.ModuleCredentials, Role: ocpi.InterfaceBoth, URL: server.URL + "/ocpi/2.1.1/credentials"},
			},
		}, ocpi.StatusSuccess)
	})
	mux.HandleFunc("/ocpi/2.1.1/credentials", func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeEnvelope(w, ocpi.Credentials{Token: "granted-token"}, ocpi.StatusSuccess)
	})

	c := New()
	granted, err := c.PostCredentials(context.Background(), server.URL+"/ocpi/versions", ocpi.VersionNumber, "tokenA", ocpi.Credentials{Token: "tokenB"})
	if err != nil {
		t.Fatalf("credentials exchange failed: %v", err)
	}

	if granted.Token != "granted-token" {
		t.Fatalf("unexpected granted token: %q", granted.Token)
	}
	if len(methods) != 2 || methods[0] != http.MethodPost || methods[1] != http.MethodPut {
		t.Fatalf("expected POST then PUT, got %v", methods)
	}
}

func TestGetLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocpi/2.1.1/locations/LOC1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		writeEnvelope(w, ocpi.Location{ID: "LOC1", City: "Berlin"}, ocpi.StatusSuccess)
	}))
	defer server.Close()

	c := New()
	location, err := c.GetLocation(context.Background(), server.URL+"/ocpi/2.1.1/locations", "token", "LOC1")
	if err != nil {
		t.Fatalf("get location failed: %v", err)
	}
	if location.ID != "LOC1" || location.City != "Berlin" {
		t.Fatalf("unexpected location: %+v", location)
	}
}

func TestGetLocationMethodNotAllowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer server.Close()

	c := New()
	location, err := c.GetLocation(context.Background(), server.URL, "token", "LOC1")
	if err == nil {
		t.Fatalf("expected 405 to surface as an error, got %+v", location)
	}
}

func TestPeerStatusCodeSurfacesAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, nil, ocpi.StatusUnknownLocation)
	}))
	defer server.Close()

	c := New()
	_, err := c.GetLocation(context.Background(), server.URL, "token", "LOC1")
	if err == nil {
		t.Fatalf("expected the envelope status to surface as an error")
	}
}

func TestPushObject(t *testing.T) {
	var gotMethod, gotRequestID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotRequestID = r.Header.Get(domain.RequestIDHeader)
		writeEnvelope(w, nil, ocpi.StatusSuccess)
	}))
	defer server.Close()

	c := New()
	err := c.PushObject(context.Background(), http.MethodPut, server.URL, "token", ocpi.Location{ID: "LOC1"})
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT got %s", gotMethod)
	}
	if gotRequestID == "" {
		t.Fatalf("expected a request id header on outbound calls")
	}
}
