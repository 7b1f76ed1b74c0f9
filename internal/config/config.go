// Package config loads StoreConfig from environment variables with the
// SEMEM_ prefix, with an optional YAML overlay, mirroring the ambient
// configuration conventions used throughout this codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danja/semem-sub009/pkg/types"
)

// EndpointConfig describes the remote SPARQL endpoint pair.
type EndpointConfig struct {
	QueryURL  string `yaml:"queryUrl"`
	UpdateURL string `yaml:"updateUrl"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
}

// StoreConfig holds every recognized MemoryStore option from spec.md §6.3.
type StoreConfig struct {
	Dimension int    `yaml:"dimension"`
	GraphName string `yaml:"graphName"`

	Endpoint EndpointConfig `yaml:"endpoint"`

	CacheTimeoutMs                int     `yaml:"cacheTimeoutMs"`
	MaxCacheSize                  int     `yaml:"maxCacheSize"`
	MaxConceptsPerInteraction     int     `yaml:"maxConceptsPerInteraction"`
	MaxConnectionsPerEntity       int     `yaml:"maxConnectionsPerEntity"`
	MaxRetries                    int     `yaml:"maxRetries"`
	TimeoutMs                     int     `yaml:"timeoutMs"`
	DecayLambdaPerHour            float64 `yaml:"decayLambdaPerHour"`
	ShortTermPromotionAccessCount int     `yaml:"shortTermPromotionAccessCount"`
	LongTermDemotionDecay         float64 `yaml:"longTermDemotionDecay"`
}

// CacheTimeout and Timeout return the millisecond fields as time.Duration
// for convenience at call sites.
func (c *StoreConfig) CacheTimeout() time.Duration {
	return time.Duration(c.CacheTimeoutMs) * time.Millisecond
}

func (c *StoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Validate checks the two required fields, failing with a Kind-tagged
// ConfigError.
func (c *StoreConfig) Validate() error {
	if c.Dimension <= 0 {
		return types.NewError(types.KindConfigError, "dimension must be a positive integer", nil)
	}
	if c.GraphName == "" {
		return types.NewError(types.KindConfigError, "graphName is required", nil)
	}
	return nil
}

// Load builds a StoreConfig from SEMEM_-prefixed environment variables.
// dimension and graphName have no sensible default and must be set by the
// caller (via env vars or a subsequent LoadYAML overlay) before Validate
// passes.
func Load() *StoreConfig {
	return &StoreConfig{
		Dimension: getEnvInt("SEMEM_DIMENSION", 0),
		GraphName: getEnv("SEMEM_GRAPH_NAME", ""),

		Endpoint: EndpointConfig{
			QueryURL:  getEnv("SEMEM_QUERY_URL", ""),
			UpdateURL: getEnv("SEMEM_UPDATE_URL", ""),
			User:      getEnv("SEMEM_USER", ""),
			Password:  getEnv("SEMEM_PASSWORD", ""),
		},

		CacheTimeoutMs:                getEnvInt("SEMEM_CACHE_TIMEOUT_MS", 300_000),
		MaxCacheSize:                  getEnvInt("SEMEM_MAX_CACHE_SIZE", 1000),
		MaxConceptsPerInteraction:     getEnvInt("SEMEM_MAX_CONCEPTS_PER_INTERACTION", 10),
		MaxConnectionsPerEntity:       getEnvInt("SEMEM_MAX_CONNECTIONS_PER_ENTITY", 100),
		MaxRetries:                    getEnvInt("SEMEM_MAX_RETRIES", 3),
		TimeoutMs:                     getEnvInt("SEMEM_TIMEOUT_MS", 30_000),
		DecayLambdaPerHour:            getEnvFloat("SEMEM_DECAY_LAMBDA_PER_HOUR", 0.01),
		ShortTermPromotionAccessCount: getEnvInt("SEMEM_SHORT_TERM_PROMOTION_ACCESS_COUNT", 10),
		LongTermDemotionDecay:         getEnvFloat("SEMEM_LONG_TERM_DEMOTION_DECAY", 0.5),
	}
}

// LoadYAML overlays YAML file values onto cfg. Only non-zero-value fields
// present in the file override cfg; this is the same optional,
// config-file-on-top-of-env-vars layering used elsewhere in this
// codebase.
func LoadYAML(cfg *StoreConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read yaml overlay: %w", err)
	}

	var overlay StoreConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: failed to parse yaml overlay: %w", err)
	}

	mergeNonZero(cfg, &overlay)
	return nil
}

func mergeNonZero(base, overlay *StoreConfig) {
	if overlay.Dimension != 0 {
		base.Dimension = overlay.Dimension
	}
	if overlay.GraphName != "" {
		base.GraphName = overlay.GraphName
	}
	if overlay.Endpoint.QueryURL != "" {
		base.Endpoint.QueryURL = overlay.Endpoint.QueryURL
	}
	if overlay.Endpoint.UpdateURL != "" {
		base.Endpoint.UpdateURL = overlay.Endpoint.UpdateURL
	}
	if overlay.Endpoint.User != "" {
		base.Endpoint.User = overlay.Endpoint.User
	}
	if overlay.Endpoint.Password != "" {
		base.Endpoint.Password = overlay.Endpoint.Password
	}
	if overlay.CacheTimeoutMs != 0 {
		base.CacheTimeoutMs = overlay.CacheTimeoutMs
	}
	if overlay.MaxCacheSize != 0 {
		base.MaxCacheSize = overlay.MaxCacheSize
	}
	if overlay.MaxConceptsPerInteraction != 0 {
		base.MaxConceptsPerInteraction = overlay.MaxConceptsPerInteraction
	}
	if overlay.MaxConnectionsPerEntity != 0 {
		base.MaxConnectionsPerEntity = overlay.MaxConnectionsPerEntity
	}
	if overlay.MaxRetries != 0 {
		base.MaxRetries = overlay.MaxRetries
	}
	if overlay.TimeoutMs != 0 {
		base.TimeoutMs = overlay.TimeoutMs
	}
	if overlay.DecayLambdaPerHour != 0 {
		base.DecayLambdaPerHour = overlay.DecayLambdaPerHour
	}
	if overlay.ShortTermPromotionAccessCount != 0 {
		base.ShortTermPromotionAccessCount = overlay.ShortTermPromotionAccessCount
	}
	if overlay.LongTermDemotionDecay != 0 {
		base.LongTermDemotionDecay = overlay.LongTermDemotionDecay
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
