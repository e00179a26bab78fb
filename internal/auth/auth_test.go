package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testConfig() Config {
	return Config{BearerSecret: "secret-key", ViewerToken: "viewer-tok"}
}

func TestAuthenticateHTTPBearer(t *testing.T) {
	cfg := testConfig()
	r := httptest.NewRequest(http.MethodPost, "/api/dry-run/start", nil)
	r.Header.Set("Authorization", "Bearer secret-key")
	id := cfg.AuthenticateHTTP(r)
	if !id.Authenticated || id.ReadOnly {
		t.Fatalf("expected authenticated read-write identity, got %+v", id)
	}
}

func TestAuthenticateHTTPViewerIsReadOnly(t *testing.T) {
	cfg := testConfig()
	r := httptest.NewRequest(http.MethodPost, "/api/dry-run/start", nil)
	r.Header.Set("X-Viewer-Token", "viewer-tok")
	id := cfg.AuthenticateHTTP(r)
	if !id.Authenticated || !id.ReadOnly {
		t.Fatalf("expected authenticated read-only identity, got %+v", id)
	}
	if id.AllowMethod(http.MethodPost) {
		t.Fatalf("expected viewer identity blocked from POST")
	}
	if !id.AllowMethod(http.MethodGet) {
		t.Fatalf("expected viewer identity allowed GET")
	}
}

func TestAuthenticateHTTPRejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.Header.Set("Authorization", "Bearer wrong")
	id := cfg.AuthenticateHTTP(r)
	if id.Authenticated {
		t.Fatalf("expected unauthenticated identity for wrong secret")
	}
}

func TestAuthenticateHTTPLocalhostBypass(t *testing.T) {
	cfg := testConfig()
	cfg.AllowLocalhostNoAuth = true
	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.RemoteAddr = "127.0.0.1:54321"
	id := cfg.AuthenticateHTTP(r)
	if !id.Authenticated || id.ReadOnly {
		t.Fatalf("expected localhost bypass to grant read-write, got %+v", id)
	}
}

func TestAuthenticateSubprotocolBearer(t *testing.T) {
	cfg := testConfig()
	encoded := base64.RawURLEncoding.EncodeToString([]byte("secret-key"))
	id := cfg.AuthenticateSubprotocol([]string{"bearer." + encoded}, "203.0.113.1:1234")
	if !id.Authenticated || id.ReadOnly {
		t.Fatalf("expected bearer subprotocol to authenticate read-write, got %+v", id)
	}
}

func TestAuthenticateSubprotocolViewer(t *testing.T) {
	cfg := testConfig()
	encoded := base64.RawURLEncoding.EncodeToString([]byte("viewer-tok"))
	id := cfg.AuthenticateSubprotocol([]string{"viewer." + encoded}, "203.0.113.1:1234")
	if !id.Authenticated || !id.ReadOnly {
		t.Fatalf("expected viewer subprotocol to authenticate read-only, got %+v", id)
	}
}

func TestAuthenticateSubprotocolRejectsGarbage(t *testing.T) {
	cfg := testConfig()
	id := cfg.AuthenticateSubprotocol([]string{"bearer.not-valid-base64!!"}, "203.0.113.1:1234")
	if id.Authenticated {
		t.Fatalf("expected malformed subprotocol payload to fail authentication")
	}
}
