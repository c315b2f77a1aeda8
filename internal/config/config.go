// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the full server configuration. Every field maps to one
// environment variable; Load applies defaults where a value is optional.
type Config struct {
	Port      string
	JWTSecret string
	// AdminSecret gates admin token issuance. Empty disables admin tokens
	// entirely.
	AdminSecret string

	UpstreamProvider string
	UpstreamAPIKey   string
	UpstreamURL      string
	UpstreamModel    string
	GeminiAPIKey     string

	MongoURI      string
	MongoDatabase string

	LedgerRPCURL     string
	LedgerContract   string
	LedgerPrivateKey string
	LedgerChainID    int64

	STTFallback bool
}

// Load reads configuration from the environment. A missing .env file is not
// an error; a malformed one is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Port:             getenv("PORT", "8080"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		AdminSecret:      os.Getenv("ADMIN_SECRET"),
		UpstreamProvider: getenv("UPSTREAM_PROVIDER", ProviderOpenAI),
		UpstreamAPIKey:   os.Getenv("UPSTREAM_API_KEY"),
		UpstreamURL:      os.Getenv("UPSTREAM_URL"),
		UpstreamModel:    os.Getenv("UPSTREAM_MODEL"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		MongoURI:         os.Getenv("MONGODB_URI"),
		MongoDatabase:    getenv("MONGODB_DATABASE", "suarakita"),
		LedgerRPCURL:     os.Getenv("LEDGER_RPC_URL"),
		LedgerContract:   os.Getenv("LEDGER_CONTRACT"),
		LedgerPrivateKey: os.Getenv("LEDGER_PRIVATE_KEY"),
	}

	if v := os.Getenv("LEDGER_CHAIN_ID"); v != "" {
		chainID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid LEDGER_CHAIN_ID %q: %w", v, err)
		}
		cfg.LedgerChainID = chainID
	}

	if v := os.Getenv("STT_FALLBACK"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid STT_FALLBACK %q: %w", v, err)
		}
		cfg.STTFallback = enabled
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.UpstreamProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown UPSTREAM_PROVIDER %q", c.UpstreamProvider)
	}
	if c.UpstreamProvider == ProviderGemini && c.GeminiAPIKey == "" && c.UpstreamAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when UPSTREAM_PROVIDER=gemini")
	}
	return nil
}

// LedgerConfigured reports whether enough is set to talk to a real chain.
// Without it the server falls back to the in-memory ledger.
func (c *Config) LedgerConfigured() bool {
	return c.LedgerRPCURL != "" && c.LedgerContract != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
