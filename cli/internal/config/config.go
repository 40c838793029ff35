// Package config persists whctl profiles under ~/.whctl.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const DefaultIngestURL = "http://localhost:8088"

var ErrProfileNotFound = errors.New("profile not found")

type Config struct {
	CurrentProfile string              `yaml:"current_profile"`
	Profiles       map[string]*Profile `yaml:"profiles"`
	path           string
}

// Profile points the CLI at one ingest deployment and the sender-side secrets for it.
type Profile struct {
	IngestURL string `yaml:"ingest_url"`
	// SecretsFile uses the ingest service's secrets YAML layout.
	SecretsFile  string `yaml:"secrets_file,omitempty"`
	PlaidKeyFile string `yaml:"plaid_key_file,omitempty"`
	PlaidKID     string `yaml:"plaid_kid,omitempty"`
}

// Validate accepts an empty IngestURL; Resolve fills it in.
func (p *Profile) Validate() error {
	if p.IngestURL == "" {
		return nil
	}
	u, err := url.Parse(p.IngestURL)
	if err != nil {
		return fmt.Errorf("ingest url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ingest url %q: want http(s)://host[:port]", p.IngestURL)
	}
	return nil
}

func Default() *Config {
	return &Config{
		CurrentProfile: "default",
		Profiles:       make(map[string]*Profile),
	}
}

func defaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".whctl", "config.yaml"), nil
}

// Load reads path, or ~/.whctl/config.yaml when path is empty. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := defaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	return cfg, nil
}

// Save writes through a temp file so a failed write leaves the old config intact.
func (c *Config) Save() error {
	if c.path == "" {
		p, err := defaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// CreateTemp already uses 0600.
	return os.Rename(tmp.Name(), c.path)
}

// SaveProfile stores p under name and makes it current.
func (c *Config) SaveProfile(name string, p *Profile) error {
	if name == "" {
		return errors.New("profile name is required")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}
	c.Profiles[name] = p
	c.CurrentProfile = name
	return c.Save()
}

// GetProfile looks up name, or the current profile when name is empty.
func (c *Config) GetProfile(name string) (*Profile, error) {
	if name == "" {
		name = c.CurrentProfile
	}
	p, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return p, nil
}

// Resolve never fails: without a saved profile it targets a local ingest service.
func (c *Config) Resolve(name string) *Profile {
	p, err := c.GetProfile(name)
	if err != nil {
		return &Profile{IngestURL: DefaultIngestURL}
	}
	if p.IngestURL != "" {
		return p
	}
	cp := *p
	cp.IngestURL = DefaultIngestURL
	return &cp
}

// Names lists saved profiles in order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Profiles))
	for n := range c.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Config) RemoveProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	delete(c.Profiles, name)
	if c.CurrentProfile == name {
		c.CurrentProfile = ""
	}
	return c.Save()
}

// LoadSecrets reads a provider-keyed secrets YAML file.
func LoadSecrets(path string) (map[string]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}
	out := make(map[string]map[string]string)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}
	return out, nil
}
