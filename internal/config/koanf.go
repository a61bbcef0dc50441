package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in
// order of priority. The first one found is used.
var DefaultConfigPaths = []string{
	"eventpipeline.yaml",
	"eventpipeline.yml",
	"/etc/eventpipeline/config.yaml",
}

// ConfigPathEnvVar overrides the config file search when set.
const ConfigPathEnvVar = "EVENTPIPELINE_CONFIG_PATH"

// envPrefix is stripped from every recognized environment variable
// before it's mapped onto a Koanf path, e.g. EVENTPIPELINE_BATCHING_MAX_BATCH_SIZE
// becomes batching.max_batch_size.
const envPrefix = "EVENTPIPELINE_"

// Load builds a Config from three layers, in ascending priority:
// built-in defaults, an optional YAML file, then environment variables.
func Load() (Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: loading file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("config: loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envTransform converts EVENTPIPELINE_BATCHING_MAX_BATCH_SIZE into
// batching.max_batch_size.
func envTransform(key string) string {
	trimmed := strings.TrimPrefix(key, envPrefix)
	lower := strings.ToLower(trimmed)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
