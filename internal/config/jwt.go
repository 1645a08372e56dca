package config

import (
	"fmt"
	"os"
	"strconv"
)

// JWTConfig holds configuration for session token validation. Tokens issued
// by the identity provider are verified with PublicKeyPEM (RS256); when no
// key is configured, HS256 tokens signed with Secret are accepted instead.
type JWTConfig struct {
	Secret          string
	PublicKeyPEM    string
	Issuer          string
	ExpirationHours int
}

// NewJWTConfig creates a new JWT configuration from environment variables.
// It reads CLERK_JWT_KEY or JWT_SECRET (one is required), JWT_ISSUER and
// JWT_EXPIRATION_HOURS (default: 24).
func NewJWTConfig() (*JWTConfig, error) {
	expirationStr := os.Getenv("JWT_EXPIRATION_HOURS")
	if expirationStr == "" {
		expirationStr = "24" // default
	}

	expirationHours, err := strconv.Atoi(expirationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_HOURS: %v", err)
	}

	config := &JWTConfig{
		Secret:          os.Getenv("JWT_SECRET"),
		PublicKeyPEM:    os.Getenv("CLERK_JWT_KEY"),
		Issuer:          os.Getenv("JWT_ISSUER"),
		ExpirationHours: expirationHours,
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// UsesPublicKey reports whether tokens are verified with the RS256 key.
func (c *JWTConfig) UsesPublicKey() bool {
	return c.PublicKeyPEM != ""
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" && c.PublicKeyPEM == "" {
		return fmt.Errorf("one of CLERK_JWT_KEY or JWT_SECRET is required but neither is set")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
