package secrets

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileProvider serves bundles from a YAML document keyed by provider name:
//
//	stripe:
//	  webhook_secret: whsec_...
//	marqeta:
//	  basic_auth_user: ...
type FileProvider struct {
	bundles map[string]Bundle
}

// LoadFile reads and parses a YAML secrets file.
func LoadFile(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML parses a YAML secrets document.
func ParseYAML(data []byte) (*FileProvider, error) {
	bundles := make(map[string]Bundle)
	if err := yaml.Unmarshal(data, &bundles); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}
	return &FileProvider{bundles: bundles}, nil
}

func (p *FileProvider) Get(_ context.Context, provider string) (Bundle, error) {
	b, ok := p.bundles[provider]
	if !ok {
		return nil, fmt.Errorf("%s: %w", provider, ErrNotConfigured)
	}
	out := make(Bundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out, nil
}
