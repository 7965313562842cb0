package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// APIKeyConfig describes a single API key + secret pair accepted by the gateway.
type APIKeyConfig struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// Config captures runtime configuration for the gift-card gateway service.
type Config struct {
	ListenAddress        string
	NodeURL              string
	NodeAuthToken        string
	DatabasePath         string
	AllowedTimestampSkew time.Duration
	NonceTTL             time.Duration
	NonceCapacity        int
	APIKeys              []APIKeyConfig
	Environment          string
}

// LoadConfigFromEnv builds a configuration using environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		ListenAddress:        getenvDefault("GIFT_GATEWAY_LISTEN", ":8081"),
		NodeURL:              os.Getenv("GIFT_GATEWAY_NODE_URL"),
		NodeAuthToken:        os.Getenv("GIFT_GATEWAY_NODE_TOKEN"),
		DatabasePath:         getenvDefault("GIFT_GATEWAY_DB_PATH", "gift-gateway.db"),
		AllowedTimestampSkew: 2 * time.Minute,
		NonceCapacity:        1024,
		Environment:          getenvDefault("GIFT_GATEWAY_ENV", "dev"),
	}

	if skew := strings.TrimSpace(os.Getenv("GIFT_GATEWAY_TIMESTAMP_SKEW")); skew != "" {
		dur, err := time.ParseDuration(skew)
		if err != nil {
			return Config{}, fmt.Errorf("parse GIFT_GATEWAY_TIMESTAMP_SKEW: %w", err)
		}
		cfg.AllowedTimestampSkew = dur
	}

	cfg.NonceTTL = 2 * cfg.AllowedTimestampSkew
	if raw := strings.TrimSpace(os.Getenv("GIFT_GATEWAY_NONCE_TTL")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse GIFT_GATEWAY_NONCE_TTL: %w", err)
		}
		if dur <= 0 {
			return Config{}, errors.New("GIFT_GATEWAY_NONCE_TTL must be positive")
		}
		cfg.NonceTTL = dur
	}
	if cfg.NonceTTL < cfg.AllowedTimestampSkew {
		cfg.NonceTTL = cfg.AllowedTimestampSkew
	}

	if raw := strings.TrimSpace(os.Getenv("GIFT_GATEWAY_NONCE_CAP")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse GIFT_GATEWAY_NONCE_CAP: %w", err)
		}
		if val <= 0 {
			return Config{}, errors.New("GIFT_GATEWAY_NONCE_CAP must be positive")
		}
		cfg.NonceCapacity = val
	}

	if cfg.NodeURL == "" {
		return Config{}, errors.New("GIFT_GATEWAY_NODE_URL is required")
	}

	if raw := strings.TrimSpace(os.Getenv("GIFT_GATEWAY_API_KEYS")); raw != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(raw), &keys); err != nil {
			return Config{}, fmt.Errorf("parse GIFT_GATEWAY_API_KEYS: %w", err)
		}
		for _, key := range keys {
			if strings.TrimSpace(key.Key) == "" || strings.TrimSpace(key.Secret) == "" {
				return Config{}, errors.New("GIFT_GATEWAY_API_KEYS entries require key and secret")
			}
		}
		cfg.APIKeys = keys
	}
	if len(cfg.APIKeys) == 0 {
		return Config{}, errors.New("GIFT_GATEWAY_API_KEYS must configure at least one key")
	}

	return cfg, nil
}

func getenvDefault(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}
