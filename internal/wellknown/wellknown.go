// Package wellknown serves the OAuth 2.0 Protected Resource Metadata document
// (RFC 9728) for the HTTP transport.
package wellknown

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ProtectedResourcePrefix is the well-known path segment the document lives
// under. The resource's own path is appended to it.
const ProtectedResourcePrefix = "/.well-known/oauth-protected-resource"

type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	JwksURI                string   `json:"jwks_uri,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
	ResourceDocumentation  string   `json:"resource_documentation,omitempty"`
}

// NewProtectedResource describes resource, which must be an absolute http or
// https URL, as protected by issuer.
func NewProtectedResource(resource, issuer, jwksURI, name string, scopes []string) (ProtectedResourceMetadata, error) {
	u, err := url.Parse(resource)
	if err != nil {
		return ProtectedResourceMetadata{}, fmt.Errorf("invalid resource URL %q: %w", resource, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ProtectedResourceMetadata{}, fmt.Errorf("resource URL must use HTTP or HTTPS scheme, got %q", u.Scheme)
	}
	m := ProtectedResourceMetadata{
		Resource:               u.String(),
		JwksURI:                jwksURI,
		ScopesSupported:        scopes,
		BearerMethodsSupported: []string{"header"},
		ResourceName:           name,
	}
	if issuer != "" {
		m.AuthorizationServers = []string{issuer}
	}
	return m, nil
}

// DocumentURL is where the document for m is published: the prefix followed
// by the resource path, on the resource's host.
func (m ProtectedResourceMetadata) DocumentURL() string {
	u, err := url.Parse(m.Resource)
	if err != nil {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: m.Path()}).String()
}

// Path is the server-relative path of the document.
func (m ProtectedResourceMetadata) Path() string {
	u, err := url.Parse(m.Resource)
	if err != nil {
		return ProtectedResourcePrefix
	}
	return ProtectedResourcePrefix + strings.TrimSuffix(u.Path, "/")
}

func (m ProtectedResourceMetadata) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := json.NewEncoder(w).Encode(m); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode protected resource metadata: %v", err), http.StatusInternalServerError)
	}
}
