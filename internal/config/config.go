// Package config provides configuration loading and validation for the
// service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/cab-scheduler/internal/types"
)

// Metadata backends.
const (
	BackendClerk    = "clerk"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Defaults applied before the config file and environment.
const (
	DefaultPort               = 8080
	DefaultCatalogURL         = "http://localhost:3232"
	DefaultGeneratorURL       = "http://localhost:3232"
	DefaultClerkAPIURL        = "https://api.clerk.dev"
	DefaultPersistDebounce    = "500ms"
	DefaultPersistMinInterval = "1s"
	DefaultHTTPTimeout        = "15s"
	DefaultLogLevel           = "info"
)

// Config holds the service configuration. It can be loaded from a JSON or
// YAML file; environment variables override file values.
type Config struct {
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Upstream services
	CatalogURL   string `json:"catalog_url,omitempty" yaml:"catalog_url,omitempty"`
	GeneratorURL string `json:"generator_url,omitempty" yaml:"generator_url,omitempty"`
	HTTPTimeout  string `json:"http_timeout,omitempty" yaml:"http_timeout,omitempty"`

	// Identity provider
	ClerkAPIURL    string `json:"clerk_api_url,omitempty" yaml:"clerk_api_url,omitempty"`
	ClerkSecretKey string `json:"clerk_secret_key,omitempty" yaml:"clerk_secret_key,omitempty"`

	// Metadata storage: clerk, postgres or memory
	MetadataBackend string `json:"metadata_backend,omitempty" yaml:"metadata_backend,omitempty"`
	DatabaseURL     string `json:"database_url,omitempty" yaml:"database_url,omitempty"`

	// Terms
	OfferingTerms []string `json:"offering_terms,omitempty" yaml:"offering_terms,omitempty"`
	GenerateTerm  string   `json:"generate_term,omitempty" yaml:"generate_term,omitempty"`

	// Write-back
	PersistDebounce    string `json:"persist_debounce,omitempty" yaml:"persist_debounce,omitempty"`
	PersistMinInterval string `json:"persist_min_interval,omitempty" yaml:"persist_min_interval,omitempty"`

	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	terms := types.DefaultOfferingTerms()
	offeringTerms := make([]string, len(terms))
	for i, t := range terms {
		offeringTerms[i] = string(t)
	}
	return &Config{
		Port:               DefaultPort,
		CatalogURL:         DefaultCatalogURL,
		GeneratorURL:       DefaultGeneratorURL,
		HTTPTimeout:        DefaultHTTPTimeout,
		ClerkAPIURL:        DefaultClerkAPIURL,
		MetadataBackend:    BackendClerk,
		OfferingTerms:      offeringTerms,
		GenerateTerm:       string(types.TermSpring2025),
		PersistDebounce:    DefaultPersistDebounce,
		PersistMinInterval: DefaultPersistMinInterval,
		LogLevel:           DefaultLogLevel,
	}
}

// LoadConfig builds the configuration from defaults, the optional file at
// path (.yaml/.yml as YAML, anything else as JSON) and the environment.
// The result is not validated; call Validate.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// Resolve path relative to current directory if not absolute
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config YAML: %w", err)
			}
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config JSON: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() error {
	vars := map[string]*string{
		"CATALOG_URL":          &c.CatalogURL,
		"GENERATOR_URL":        &c.GeneratorURL,
		"HTTP_TIMEOUT":         &c.HTTPTimeout,
		"CLERK_API_URL":        &c.ClerkAPIURL,
		"CLERK_SECRET_KEY":     &c.ClerkSecretKey,
		"METADATA_BACKEND":     &c.MetadataBackend,
		"DATABASE_URL":         &c.DatabaseURL,
		"GENERATE_TERM":        &c.GenerateTerm,
		"PERSIST_DEBOUNCE":     &c.PersistDebounce,
		"PERSIST_MIN_INTERVAL": &c.PersistMinInterval,
		"LOG_LEVEL":            &c.LogLevel,
	}
	for key, field := range vars {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			*field = value
		}
	}

	if value := os.Getenv("OFFERING_TERMS"); value != "" {
		c.OfferingTerms = splitList(value)
	}
	if value := os.Getenv("PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Port = port
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 1 and 65535, got %d", c.Port)
	}

	for name, raw := range map[string]string{
		"catalog_url":   c.CatalogURL,
		"generator_url": c.GeneratorURL,
	} {
		if err := checkURL(name, raw); err != nil {
			return err
		}
	}

	switch c.MetadataBackend {
	case BackendClerk:
		if err := checkURL("clerk_api_url", c.ClerkAPIURL); err != nil {
			return err
		}
		if c.ClerkSecretKey == "" {
			return fmt.Errorf("config error: 'clerk_secret_key' is required for the clerk backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: 'database_url' is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config error: unknown metadata backend %q", c.MetadataBackend)
	}

	if len(c.OfferingTerms) == 0 {
		return fmt.Errorf("config error: 'offering_terms' must list at least one term")
	}
	for _, term := range c.OfferingTerms {
		if strings.TrimSpace(term) == "" {
			return fmt.Errorf("config error: 'offering_terms' contains an empty term")
		}
	}
	if c.GenerateTerm == "" {
		return fmt.Errorf("config error: 'generate_term' is required")
	}

	if _, err := c.Debounce(); err != nil {
		return err
	}
	if _, err := c.MinInterval(); err != nil {
		return err
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	return nil
}

func checkURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config error: '%s' must be an absolute URL, got %q", name, raw)
	}
	return nil
}

func parseDuration(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config error: invalid '%s': %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config error: '%s' must not be negative", name)
	}
	return d, nil
}

// Debounce returns the preference write debounce.
func (c *Config) Debounce() (time.Duration, error) {
	return parseDuration("persist_debounce", c.PersistDebounce)
}

// MinInterval returns the minimum time between preference writes. Zero
// disables the limit.
func (c *Config) MinInterval() (time.Duration, error) {
	return parseDuration("persist_min_interval", c.PersistMinInterval)
}

// Timeout returns the upstream HTTP timeout.
func (c *Config) Timeout() (time.Duration, error) {
	return parseDuration("http_timeout", c.HTTPTimeout)
}

// Terms returns OfferingTerms as catalog terms.
func (c *Config) Terms() []types.Term {
	terms := make([]types.Term, 0, len(c.OfferingTerms))
	for _, t := range c.OfferingTerms {
		terms = append(terms, types.Term(strings.TrimSpace(t)))
	}
	return terms
}
