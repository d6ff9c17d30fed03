package auth

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/xactions/xactions-a2a/pkg/storage"
)

// Credential is the stored secret for one remote agent.
type Credential struct {
	Type  string `json:"type"` // "bearer" or "api_key"
	Value string `json:"value"`
}

// CredentialStore maps agent URLs to outbound credentials. Requests to
// agents without a stored credential go out unauthenticated.
type CredentialStore struct {
	mu    sync.Mutex
	repo  storage.Repository[map[string]Credential]
	creds map[string]Credential
}

// NewCredentialStore loads stored credentials from the repository.
func NewCredentialStore(repo storage.Repository[map[string]Credential]) (*CredentialStore, error) {
	creds, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("load outbound credentials: %w", err)
	}
	if creds == nil {
		creds = make(map[string]Credential)
	}
	return &CredentialStore{repo: repo, creds: creds}, nil
}

// Set stores a credential for the agent URL and persists.
func (s *CredentialStore) Set(agentURL string, cred Credential) error {
	switch cred.Type {
	case "bearer", "api_key":
	default:
		return fmt.Errorf("unsupported credential type %q", cred.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[normalizeURL(agentURL)] = cred
	return s.persist()
}

// Delete removes the credential for the agent URL.
func (s *CredentialStore) Delete(agentURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, normalizeURL(agentURL))
	return s.persist()
}

// Apply sets the Authorization header on the request when a credential
// for its agent URL exists.
func (s *CredentialStore) Apply(req *http.Request, agentURL string) {
	s.mu.Lock()
	cred, ok := s.creds[normalizeURL(agentURL)]
	s.mu.Unlock()
	if !ok {
		return
	}

	switch cred.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+cred.Value)
	case "api_key":
		req.Header.Set("Authorization", "ApiKey "+cred.Value)
	}
}

// persist writes the credential map; caller holds s.mu.
func (s *CredentialStore) persist() error {
	out := make(map[string]Credential, len(s.creds))
	for k, v := range s.creds {
		out[k] = v
	}
	if err := s.repo.Save(out); err != nil {
		return fmt.Errorf("persist outbound credentials: %w", err)
	}
	return nil
}

func normalizeURL(u string) string {
	return strings.TrimSuffix(strings.TrimSpace(u), "/")
}
