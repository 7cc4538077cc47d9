package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. Paths inside the config
// (catalog, command tables, history db) stay as written; relative paths are
// resolved against the process working directory, not the config file.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		// Directory provided - look for config.yaml inside
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $VOXDECK_CONFIG, ~/.config/voxdeck/config.yaml,
// /etc/voxdeck/config.yaml, ./config/config.yaml, ./config.yaml.
func DiscoverConfigPath() (string, error) {
	if p := os.Getenv("VOXDECK_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "voxdeck", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	systemConfig := "/etc/voxdeck/config.yaml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig, nil
	}

	for _, p := range []string{"./config/config.yaml", "./config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config found (checked: $VOXDECK_CONFIG, ~/.config/voxdeck, /etc/voxdeck, ./config/config.yaml, ./config.yaml)")
}

// applyDefaults merges default values into config where not explicitly set.
func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.PIDFile == "" {
		cfg.Service.PIDFile = defaults.Service.PIDFile
	}

	if cfg.OSC.Host == "" {
		cfg.OSC.Host = defaults.OSC.Host
	}
	if cfg.OSC.SendPort == 0 {
		cfg.OSC.SendPort = defaults.OSC.SendPort
	}
	if cfg.OSC.ListenPort == 0 {
		cfg.OSC.ListenPort = defaults.OSC.ListenPort
	}

	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = defaults.Catalog.Path
	}
	if cfg.Catalog.PrimaryContext == "" {
		cfg.Catalog.PrimaryContext = defaults.Catalog.PrimaryContext
	}

	if cfg.Commands.BasePath == "" {
		cfg.Commands.BasePath = defaults.Commands.BasePath
	}

	if cfg.Match.MinConfidence == 0 {
		cfg.Match.MinConfidence = defaults.Match.MinConfidence
	}
	if cfg.Match.TieBreak == "" {
		cfg.Match.TieBreak = defaults.Match.TieBreak
	}

	if cfg.Dispatch.StepDelay == 0 {
		cfg.Dispatch.StepDelay = defaults.Dispatch.StepDelay
	}
	if cfg.Dispatch.Cooldown == 0 {
		cfg.Dispatch.Cooldown = defaults.Dispatch.Cooldown
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = defaults.Dispatch.QueueSize
	}
	if cfg.Dispatch.ShutdownCommand == "" {
		cfg.Dispatch.ShutdownCommand = defaults.Dispatch.ShutdownCommand
	}

	if cfg.Trigger.Path == "" {
		cfg.Trigger.Path = defaults.Trigger.Path
	}
	if cfg.Trigger.PollInterval == 0 {
		cfg.Trigger.PollInterval = defaults.Trigger.PollInterval
	}

	if cfg.Telemetry.LogPath == "" {
		cfg.Telemetry.LogPath = defaults.Telemetry.LogPath
	}

	if cfg.History.Path == "" {
		cfg.History.Path = defaults.History.Path
	}

	if !cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API = defaults.API
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Speech.Stdin == nil {
		cfg.Speech.Stdin = defaults.Speech.Stdin
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (caught by validation where required).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[cfg.Service.LogFormat] {
		return fmt.Errorf("service.log_format must be text or json (got %q)", cfg.Service.LogFormat)
	}

	if cfg.OSC.Host == "" {
		return fmt.Errorf("osc.host is required")
	}
	if cfg.OSC.SendPort < 1 || cfg.OSC.SendPort > 65535 {
		return fmt.Errorf("osc.send_port must be in 1..65535 (got %d)", cfg.OSC.SendPort)
	}
	if cfg.OSC.ListenPort < 1 || cfg.OSC.ListenPort > 65535 {
		return fmt.Errorf("osc.listen_port must be in 1..65535 (got %d)", cfg.OSC.ListenPort)
	}
	if cfg.OSC.Listen && cfg.OSC.SendPort == cfg.OSC.ListenPort {
		return fmt.Errorf("osc.listen_port must differ from osc.send_port")
	}

	if cfg.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if cfg.Commands.BasePath == "" {
		return fmt.Errorf("commands.base_path is required")
	}

	if cfg.Match.MinConfidence < 0 || cfg.Match.MinConfidence > 1 {
		return fmt.Errorf("match.min_confidence must be in [0,1] (got %v)", cfg.Match.MinConfidence)
	}
	if cfg.Match.TieBreak != "first" && cfg.Match.TieBreak != "last" {
		return fmt.Errorf("match.tie_break must be first or last (got %q)", cfg.Match.TieBreak)
	}

	if cfg.Dispatch.StepDelay < 0 {
		return fmt.Errorf("dispatch.step_delay must not be negative")
	}
	if cfg.Dispatch.Cooldown < 0 {
		return fmt.Errorf("dispatch.cooldown must not be negative")
	}
	if cfg.Dispatch.QueueSize < 1 {
		return fmt.Errorf("dispatch.queue_size must be positive")
	}

	if cfg.Trigger.PollInterval <= 0 {
		return fmt.Errorf("trigger.poll_interval must be positive")
	}

	if cfg.Telemetry.LogPath == "" {
		return fmt.Errorf("telemetry.log_path is required")
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("history.path is required")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api.enabled")
		}
		if envVarPattern.MatchString(cfg.API.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.API.APIKey)
			if len(matches) > 1 {
				return fmt.Errorf("api.api_key: environment variable ${%s} is not set", matches[1])
			}
			return fmt.Errorf("api.api_key: unresolved environment variable")
		}
	}

	return nil
}
