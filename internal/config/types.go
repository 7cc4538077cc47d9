package config

import "time"

// Config represents the complete voxdeck configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	OSC       OSCConfig       `yaml:"osc"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Commands  CommandsConfig  `yaml:"commands"`
	Match     MatchConfig     `yaml:"match"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	History   HistoryConfig   `yaml:"history"`
	API       APIConfig       `yaml:"api,omitempty"`
	Speech    SpeechConfig    `yaml:"speech"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	PIDFile   string `yaml:"pid_file"`
}

// OSCConfig defines the UDP endpoints of the DAW's OSC control surface.
// SendPort is where the DAW listens for commands, ListenPort is where it
// sends feedback.
type OSCConfig struct {
	Host       string `yaml:"host"`
	SendPort   int    `yaml:"send_port"`
	ListenPort int    `yaml:"listen_port"`
	Listen     bool   `yaml:"listen"`
}

// CatalogConfig locates the action dump exported from the DAW.
type CatalogConfig struct {
	Path           string `yaml:"path"`
	PrimaryContext string `yaml:"primary_context"`
}

// CommandsConfig locates the layered command tables. The override file is
// optional; entries in it replace base entries with the same key wholesale.
type CommandsConfig struct {
	BasePath     string `yaml:"base_path"`
	OverridePath string `yaml:"override_path,omitempty"`
}

// MatchConfig tunes the command matcher.
type MatchConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
	TieBreak      string  `yaml:"tie_break"` // "first" or "last" loaded wins equal-length ties
}

// DispatchConfig tunes the executor and the utterance pipeline.
type DispatchConfig struct {
	StepDelay       time.Duration `yaml:"step_delay"`
	Cooldown        time.Duration `yaml:"cooldown"`
	QueueSize       int           `yaml:"queue_size"`
	ShutdownCommand string        `yaml:"shutdown_command"`
}

// TriggerConfig defines the filesystem phrase-injection point.
type TriggerConfig struct {
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// TelemetryConfig defines the session log sinks.
type TelemetryConfig struct {
	LogPath    string `yaml:"log_path"`
	ReportPath string `yaml:"report_path,omitempty"`
}

// HistoryConfig defines the sqlite history store location.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines control-plane HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// SpeechConfig defines the transcript intake. Stdin is a pointer so an
// absent key can default to enabled while an explicit false still turns
// the reader off.
type SpeechConfig struct {
	Stdin *bool `yaml:"stdin"`
}

// StdinEnabled reports whether the stdin transcript reader should run.
func (s SpeechConfig) StdinEnabled() bool {
	return s.Stdin == nil || *s.Stdin
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "voxdeck",
			LogLevel:  "info",
			LogFormat: "text",
			PIDFile:   "/tmp/voxdeck.pid",
		},
		OSC: OSCConfig{
			Host:       "127.0.0.1",
			SendPort:   8000,
			ListenPort: 9000,
			Listen:     true,
		},
		Catalog: CatalogConfig{
			Path:           "./config/actions.txt",
			PrimaryContext: "Main",
		},
		Commands: CommandsConfig{
			BasePath: "./config/commands.yaml",
		},
		Match: MatchConfig{
			MinConfidence: 0.5,
			TieBreak:      "first",
		},
		Dispatch: DispatchConfig{
			StepDelay:       100 * time.Millisecond,
			Cooldown:        time.Second,
			QueueSize:       64,
			ShutdownCommand: "shutdown",
		},
		Trigger: TriggerConfig{
			Path:         "/tmp/voxdeck_command",
			PollInterval: time.Second,
		},
		Telemetry: TelemetryConfig{
			LogPath: "/tmp/voxdeck_session.log",
		},
		History: HistoryConfig{
			Path: "./data/voxdeck.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9723",
		},
		Speech: SpeechConfig{
			Stdin: boolPtr(true),
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}
