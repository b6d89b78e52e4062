// Package config loads server-level settings from the environment. Database
// and provider settings live with their own packages; this covers the
// transport, logging, and matching-threshold overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/polymath-app/polymath-go/internal/matching"
)

type Config struct {
	Addr      string
	Transport string // "http" or "mcp"
	LogLevel  string
	Policy    matching.Policy
}

func Load() (*Config, error) {
	def := matching.DefaultPolicy()
	cfg := &Config{
		Addr:      envStr("HTTP_ADDR", ":8787"),
		Transport: envStr("TRANSPORT", "http"),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		Policy: matching.Policy{
			SimilarityThreshold:     envFloat("SIMILARITY_THRESHOLD", def.SimilarityThreshold),
			MaxSuggestions:          envInt("MAX_SUGGESTIONS", def.MaxSuggestions),
			CandidatePageSize:       envInt("CANDIDATE_PAGE_SIZE", def.CandidatePageSize),
			MinSharedEntities:       envInt("MIN_SHARED_ENTITIES", def.MinSharedEntities),
			EntityScanLimit:         envInt("ENTITY_SCAN_LIMIT", def.EntityScanLimit),
			SemanticBridgeThreshold: envFloat("SEMANTIC_BRIDGE_THRESHOLD", def.SemanticBridgeThreshold),
			SemanticBridgeLimit:     envInt("SEMANTIC_BRIDGE_LIMIT", def.SemanticBridgeLimit),
			TemporalWindowDays:      envInt("TEMPORAL_WINDOW_DAYS", def.TemporalWindowDays),
			TemporalAcceptDays:      envFloat("TEMPORAL_ACCEPT_DAYS", def.TemporalAcceptDays),
			TemporalScanLimit:       envInt("TEMPORAL_SCAN_LIMIT", def.TemporalScanLimit),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Transport != "http" && c.Transport != "mcp" {
		return fmt.Errorf("TRANSPORT must be \"http\" or \"mcp\", got %q", c.Transport)
	}
	if c.Policy.SimilarityThreshold < 0 || c.Policy.SimilarityThreshold >= 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in [0, 1), got %f", c.Policy.SimilarityThreshold)
	}
	if c.Policy.MaxSuggestions < 1 {
		return fmt.Errorf("MAX_SUGGESTIONS must be positive, got %d", c.Policy.MaxSuggestions)
	}
	if c.Policy.TemporalWindowDays < 1 {
		return fmt.Errorf("TEMPORAL_WINDOW_DAYS must be positive, got %d", c.Policy.TemporalWindowDays)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
