package llm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spherical/flyer-extractor/internal/domain"
)

// Credential is one API key plus the endpoint it is used against.
type Credential struct {
	Key      string
	Endpoint string
}

// URL returns the endpoint with the key appended as a query parameter.
func (c Credential) URL() string {
	sep := "?"
	if strings.Contains(c.Endpoint, "?") {
		sep = "&"
	}
	return c.Endpoint + sep + "key=" + c.Key
}

// GenerateEndpoint builds the generateContent endpoint for a model.
func GenerateEndpoint(baseURL, model string) string {
	return fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(baseURL, "/"), model)
}

// CredentialsFor pairs every key with the generateContent endpoint of model.
func CredentialsFor(keys []string, baseURL, model string) []Credential {
	endpoint := GenerateEndpoint(baseURL, model)
	creds := make([]Credential, 0, len(keys))
	for _, k := range keys {
		creds = append(creds, Credential{Key: k, Endpoint: endpoint})
	}
	return creds
}

// Rotator cycles through credentials round-robin. It advances before returning,
// so with two credentials a fresh rotator yields 1, 0, 1, ...
// Every job owns its own Rotator; the index is never shared between jobs.
type Rotator struct {
	mu    sync.Mutex
	creds []Credential
	idx   int
}

// NewRotator creates a rotator over a non-empty credential list.
func NewRotator(creds []Credential) (*Rotator, error) {
	if len(creds) == 0 {
		return nil, domain.ConfigError("no API credentials configured", nil)
	}
	cp := make([]Credential, len(creds))
	copy(cp, creds)
	return &Rotator{creds: cp}, nil
}

// Next returns the credential following the previously returned one.
func (r *Rotator) Next() Credential {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.creds) > 1 {
		r.idx = (r.idx + 1) % len(r.creds)
	}
	return r.creds[r.idx]
}

// Len returns the number of credentials.
func (r *Rotator) Len() int {
	return len(r.creds)
}
