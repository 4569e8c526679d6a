package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/mcpref/internal/logging"
)

const subsystem = "Config"

// Load reads and validates a Config from path. A missing file is not an
// error: it yields GetDefaultConfig().
func Load(path string) (Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info(subsystem, "no config file at %s, using defaults", path)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := resolveSecretFiles(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: resolving secret files: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	logging.Info(subsystem, "loaded configuration from %s", path)
	return cfg, nil
}

// resolveSecretFiles reads secrets from file paths specified in *File
// config options, keeping them out of the config file and process
// environment.
func resolveSecretFiles(cfg *Config) error {
	if cfg.OAuth.SigningKeyFile != "" && cfg.OAuth.SigningKey == "" {
		key, err := readSecretFile(cfg.OAuth.SigningKeyFile)
		if err != nil {
			return fmt.Errorf("oauth signing key: %w", err)
		}
		cfg.OAuth.SigningKey = key
	}

	for i := range cfg.OAuth.Clients {
		c := &cfg.OAuth.Clients[i]
		if c.SecretFile != "" && c.Secret == "" {
			secret, err := readSecretFile(c.SecretFile)
			if err != nil {
				return fmt.Errorf("oauth client %s secret: %w", c.ClientID, err)
			}
			c.Secret = secret
		}
	}

	for i := range cfg.M2M {
		m := &cfg.M2M[i]
		if m.SecretFile != "" && m.ClientSecret == "" {
			secret, err := readSecretFile(m.SecretFile)
			if err != nil {
				return fmt.Errorf("m2m client %s secret: %w", m.Name, err)
			}
			m.ClientSecret = secret
		}
	}

	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
