package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// TokenProvider supplies the bearer token attached to each backend request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider returns the same token for every request.
type StaticTokenProvider string

// Token implements TokenProvider.
func (p StaticTokenProvider) Token(_ context.Context) (string, error) {
	if p == "" {
		return "", fmt.Errorf("static token is empty")
	}
	return string(p), nil
}

// FileTokenProvider reads a JSON credential file of the form
// {"access_token": "..."} on every request, so a rotated token is picked
// up without a restart.
type FileTokenProvider struct {
	path string
}

// NewFileTokenProvider creates a provider backed by the given file path.
func NewFileTokenProvider(path string) *FileTokenProvider {
	return &FileTokenProvider{path: path}
}

// Token implements TokenProvider.
func (p *FileTokenProvider) Token(_ context.Context) (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file %s: %w", p.path, err)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("failed to parse token file %s: %w", p.path, err)
	}

	if payload.AccessToken == "" {
		return "", fmt.Errorf("token file %s contains no access_token", p.path)
	}

	return payload.AccessToken, nil
}
