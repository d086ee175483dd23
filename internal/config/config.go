// Package config loads Bagwatch configuration from defaults, an optional
// YAML file, and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "BAGWATCH_CONFIG"

// DefaultConfigPaths lists where config files are searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// Config is the root configuration for the daemon.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	Camera     CameraConfig     `koanf:"camera"`
	Engine     EngineConfig     `koanf:"engine"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Alerts     AlertsConfig     `koanf:"alerts"`
	Server     ServerConfig     `koanf:"server"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DatabaseConfig locates the sqlite database.
type DatabaseConfig struct {
	// Path is the sqlite file path. Empty means ~/.bagwatch/bagwatch.db.
	Path string `koanf:"path"`
}

// CameraConfig controls capture behavior.
type CameraConfig struct {
	DeviceID int `koanf:"device_id"`
	// StreamURL reads from a network stream instead of a local device.
	StreamURL       string  `koanf:"stream_url"`
	IdleFPS         int     `koanf:"idle_fps"`
	ActiveFPS       int     `koanf:"active_fps"`
	MotionThreshold float64 `koanf:"motion_threshold"`
}

// EngineConfig controls incident tracking and escalation.
type EngineConfig struct {
	// EscalationThreshold is the number of frames per analysis batch; an
	// incident escalates every time its frame count crosses a multiple of it.
	EscalationThreshold int `koanf:"escalation_threshold"`
	// ConfidenceCutoff is the classifier confidence (0-100) a verdict must
	// exceed to confirm a threat.
	ConfidenceCutoff float64 `koanf:"confidence_cutoff"`
	// ClassifierTimeout bounds a single classification call. A call that
	// exceeds it is treated as resolved with no threat.
	ClassifierTimeout time.Duration `koanf:"classifier_timeout"`
	// ImageEvery stores a JPEG snapshot with every Nth frame record.
	// 0 disables image retention.
	ImageEvery int `koanf:"image_every"`
}

// ClassifierConfig configures the external threat classifier.
type ClassifierConfig struct {
	// APIKey authenticates against the Gemini API. When empty the daemon
	// falls back to the simulated classifier.
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`
	// Endpoint overrides the API base URL, used by tests.
	Endpoint string `koanf:"endpoint"`
}

// AlertsConfig configures user notification.
type AlertsConfig struct {
	// Speech enables spoken alerts via a TTS command.
	Speech bool `koanf:"speech"`
	// SpeechCommand overrides the TTS binary. Empty picks a platform default.
	SpeechCommand string `koanf:"speech_command"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr      string `koanf:"addr"`
	StaticDir string `koanf:"static_dir"`
}

// defaultConfig returns the built-in defaults, applied before file and env.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Camera: CameraConfig{
			DeviceID:        0,
			IdleFPS:         5,
			ActiveFPS:       15,
			MotionThreshold: 1.0,
		},
		Engine: EngineConfig{
			EscalationThreshold: 10,
			ConfidenceCutoff:    60,
			ClassifierTimeout:   30 * time.Second,
			ImageEvery:          4,
		},
		Classifier: ClassifierConfig{
			Model: "gemini-2.5-pro",
		},
		Alerts: AlertsConfig{
			Speech: true,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load builds the configuration: defaults, then an optional YAML file, then
// environment variables. A .env file in the working directory is read first
// so GEMINI_API_KEY and friends can live outside the shell profile.
func Load() (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Engine.EscalationThreshold < 1 {
		return fmt.Errorf("engine.escalation_threshold must be >= 1, got %d", c.Engine.EscalationThreshold)
	}
	if c.Engine.ConfidenceCutoff < 0 || c.Engine.ConfidenceCutoff > 100 {
		return fmt.Errorf("engine.confidence_cutoff must be in [0,100], got %g", c.Engine.ConfidenceCutoff)
	}
	if c.Engine.ClassifierTimeout <= 0 {
		return fmt.Errorf("engine.classifier_timeout must be positive, got %s", c.Engine.ClassifierTimeout)
	}
	if c.Camera.IdleFPS < 1 || c.Camera.ActiveFPS < c.Camera.IdleFPS {
		return fmt.Errorf("camera fps settings invalid: idle=%d active=%d", c.Camera.IdleFPS, c.Camera.ActiveFPS)
	}
	return nil
}

// DatabasePath resolves the sqlite path, creating the data directory when
// the default location is used.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	dir := filepath.Join(home, ".bagwatch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	return filepath.Join(dir, "bagwatch.db"), nil
}

// findConfigFile returns the first existing config file, honoring the
// BAGWATCH_CONFIG override.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, p := range DefaultConfigPaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// envTransform maps environment variable names to koanf paths:
//
//	BAGWATCH_ENGINE_ESCALATION_THRESHOLD -> engine.escalation_threshold
//	GEMINI_API_KEY                       -> classifier.api_key
func envTransform(key string) string {
	switch key {
	case "GEMINI_API_KEY":
		return "classifier.api_key"
	case "GEMINI_MODEL":
		return "classifier.model"
	}

	if !strings.HasPrefix(key, "BAGWATCH_") {
		return "" // ignore unrelated environment variables
	}

	key = strings.ToLower(strings.TrimPrefix(key, "BAGWATCH_"))
	sections := []string{"logging", "database", "camera", "engine", "classifier", "alerts", "server"}
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}
	return ""
}
