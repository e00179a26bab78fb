// Package auth implements the bearer/viewer token check described in
// spec.md §6: constant-time comparison against the configured
// secrets, an optional localhost bypass, and read-only enforcement for
// viewer-token holders.
//
// New code (the teacher has no auth layer of its own), following the
// stdlib-only `crypto/subtle` idiom the spec calls for directly —
// no pack example implements bearer/viewer token comparison, so there
// is no third-party library to ground this on.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
)

// Config holds the two secrets and the localhost-bypass switch,
// sourced from the environment variables spec.md §6 names
// (API_KEY_SECRET, READONLY_VIEW_TOKEN, ALLOW_LOCALHOST_NO_AUTH).
type Config struct {
	BearerSecret     string
	ViewerToken      string
	AllowLocalhostNoAuth bool
}

// Identity is the resolved caller identity for one request/connection.
type Identity struct {
	Authenticated bool
	ReadOnly      bool
}

// readOnlyMethods are permitted for a viewer-token identity; anything
// else needs bearer auth or the localhost bypass, which resolves to a
// full-access identity (spec.md §6
// "grants read-only access (GET/HEAD/OPTIONS only)").
var readOnlyMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// constantTimeEquals reports whether a and b match, in constant time
// with respect to their contents. Differing lengths short-circuit
// (length is not considered secret).
func constantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// AuthenticateHTTP resolves the identity for an incoming HTTP request
// from its Authorization/X-Viewer-Token headers, applying the
// localhost bypass when configured.
func (c Config) AuthenticateHTTP(r *http.Request) Identity {
	if bearer, ok := bearerFromHeader(r.Header.Get("Authorization")); ok && c.BearerSecret != "" && constantTimeEquals(bearer, c.BearerSecret) {
		return Identity{Authenticated: true, ReadOnly: false}
	}
	if viewer := r.Header.Get("X-Viewer-Token"); viewer != "" && c.ViewerToken != "" && constantTimeEquals(viewer, c.ViewerToken) {
		return Identity{Authenticated: true, ReadOnly: true}
	}
	if c.AllowLocalhostNoAuth && isLoopback(r.RemoteAddr) {
		return Identity{Authenticated: true, ReadOnly: false}
	}
	return Identity{}
}

func bearerFromHeader(h string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// AuthenticateSubprotocol resolves the identity carried in a
// WebSocket `Sec-WebSocket-Protocol` offer list: either
// `bearer.<base64url(key)>` or `viewer.<base64url(token)>` (spec.md §6).
// `proxy-auth` is accepted as an offered subprotocol but carries no
// credential of its own; it signals the caller is fronted by a
// trusted proxy that has already authenticated the connection, so it
// is honored only alongside the localhost bypass.
func (c Config) AuthenticateSubprotocol(protocols []string, remoteAddr string) Identity {
	sawProxyAuth := false
	for _, p := range protocols {
		switch {
		case p == "proxy-auth":
			sawProxyAuth = true
		case strings.HasPrefix(p, "bearer."):
			if key, ok := decodeSubprotocolPayload(p, "bearer."); ok && c.BearerSecret != "" && constantTimeEquals(key, c.BearerSecret) {
				return Identity{Authenticated: true, ReadOnly: false}
			}
		case strings.HasPrefix(p, "viewer."):
			if tok, ok := decodeSubprotocolPayload(p, "viewer."); ok && c.ViewerToken != "" && constantTimeEquals(tok, c.ViewerToken) {
				return Identity{Authenticated: true, ReadOnly: true}
			}
		}
	}
	if sawProxyAuth && c.AllowLocalhostNoAuth && isLoopback(remoteAddr) {
		return Identity{Authenticated: true, ReadOnly: false}
	}
	return Identity{}
}

func decodeSubprotocolPayload(protocol, prefix string) (string, bool) {
	encoded := strings.TrimPrefix(protocol, prefix)
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// AllowMethod reports whether id may perform an HTTP method beyond
// read-only GET/HEAD/OPTIONS.
func (id Identity) AllowMethod(method string) bool {
	if !id.Authenticated {
		return false
	}
	if !id.ReadOnly {
		return true
	}
	return readOnlyMethods[method]
}
