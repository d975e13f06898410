package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// envPrefix namespaces storyd environment variables.
	envPrefix = "STORYD_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load loads configuration from an optional YAML file, then overrides
// with environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (STORYD_SERVER_PORT, STORYD_LOCK_TTL, ...)
//  2. YAML config file
//  3. Built-in defaults
//
// Environment variables map to config keys by stripping the prefix,
// lowercasing, and splitting the first underscore-separated segment:
//
//	STORYD_SERVER_PORT         -> server.port
//	STORYD_LOCK_HEARTBEAT_INTERVAL -> lock.heartbeat_interval
//	STORYD_GENERATION_API_KEY  -> generation.api_key
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// transformEnvKey maps STORYD_SECTION_FIELD_NAME to section.field_name.
func transformEnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens and validates the config file before parsing.
// Validation uses the already-opened file descriptor to avoid a
// TOCTOU race between stat and read.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
