package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"keygate/internal/domain/key"
	"keygate/internal/infrastructure/logger"
)

// PoolConfig describes one provider scope: where its requests go and the
// ordered key list to dispatch them with.
type PoolConfig struct {
	Scope       string
	UpstreamURL string
	Keys        []key.Config
}

// LoadKeyPools parses the yaml file at the provided path.
func LoadKeyPools(path string) ([]PoolConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("key pool config path is empty")
	}

	log := logger.GetLogger()
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read key pool config %q: %w", cleanPath, err)
	}
	log.Info().Str("path", cleanPath).Msg("loading key pool config file")

	return ParseKeyPools(data)
}

// ParseKeyPools decodes the yaml document and normalizes each entry.
func ParseKeyPools(data []byte) ([]PoolConfig, error) {
	var doc keyPoolDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse key pool config: %w", err)
	}
	if len(doc.Pools) == 0 {
		return nil, errors.New("key pool config has no pools defined")
	}

	log := logger.GetLogger()
	result := make([]PoolConfig, 0, len(doc.Pools))
	for idx, entry := range doc.Pools {
		scope := strings.TrimSpace(entry.Scope)
		if scope == "" {
			return nil, fmt.Errorf("pools[%d]: scope is required", idx)
		}

		pool := PoolConfig{
			Scope:       scope,
			UpstreamURL: strings.TrimSpace(os.ExpandEnv(entry.UpstreamURL)),
		}
		if pool.UpstreamURL == "" {
			return nil, fmt.Errorf("pools[%d] (%s): upstream_url is required", idx, scope)
		}

		// Legacy single-key form: a bare api_key at pool level gets
		// the documented defaults.
		if entry.APIKey != "" && len(entry.Keys) == 0 {
			entry.Keys = []keyConfigEntry{{APIKey: entry.APIKey, Name: "default"}}
		}
		if len(entry.Keys) == 0 {
			return nil, fmt.Errorf("pools[%d] (%s): at least one key is required", idx, scope)
		}

		for kidx, keyEntry := range entry.Keys {
			cfg, err := normalizeKeyEntry(keyEntry)
			if err != nil {
				return nil, fmt.Errorf("pools[%d] (%s) keys[%d]: %w", idx, scope, kidx, err)
			}
			log.Info().
				Str("scope", scope).
				Str("key", cfg.Name).
				Int("priority", cfg.Priority).
				Bool("enabled", cfg.Enabled).
				Msg("including key for registration")
			pool.Keys = append(pool.Keys, cfg)
		}
		result = append(result, pool)
	}

	return result, nil
}

type keyPoolDocument struct {
	Pools []keyPoolEntry `yaml:"pools"`
}

type keyPoolEntry struct {
	Scope       string           `yaml:"scope"`
	UpstreamURL string           `yaml:"upstream_url"`
	APIKey      string           `yaml:"api_key"`
	Keys        []keyConfigEntry `yaml:"keys"`
}

type keyConfigEntry struct {
	Name                 string `yaml:"name"`
	APIKey               string `yaml:"api_key"`
	Key                  string `yaml:"key"`
	MaxRequestsPerMinute int    `yaml:"max_requests_per_minute"`
	MaxRequestsPerHour   int    `yaml:"max_requests_per_hour"`
	MaxRequestsPerDay    int    `yaml:"max_requests_per_day"`
	Priority             int    `yaml:"priority"`
	Enabled              *bool  `yaml:"enabled"`
}

func normalizeKeyEntry(entry keyConfigEntry) (key.Config, error) {
	credential := strings.TrimSpace(firstNonEmpty(entry.APIKey, entry.Key))
	if credential != "" {
		credential = os.ExpandEnv(credential)
	}
	if credential == "" {
		return key.Config{}, errors.New("api_key is required")
	}

	enabled := true
	if entry.Enabled != nil {
		enabled = *entry.Enabled
	}

	name := strings.TrimSpace(entry.Name)
	if name == "" {
		name = key.Redact(credential)
	}

	return key.Config{
		Credential:           credential,
		Name:                 name,
		MaxRequestsPerMinute: entry.MaxRequestsPerMinute,
		MaxRequestsPerHour:   entry.MaxRequestsPerHour,
		MaxRequestsPerDay:    entry.MaxRequestsPerDay,
		Priority:             entry.Priority,
		Enabled:              enabled,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
