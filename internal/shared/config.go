package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig `toml:"database"`
	Server    ServerConfig   `toml:"server"`
	Downloads DownloadConfig `toml:"downloads"`
	Proxy     ProxyConfig    `toml:"proxy"`
	Cache     CacheConfig    `toml:"cache"`
	Log       LogConfig      `toml:"log"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string   `toml:"host"`
	Port              int      `toml:"port"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
}

// DownloadConfig controls where output lands and how items are executed.
type DownloadConfig struct {
	Root                string   `toml:"root"`
	AudioDir            string   `toml:"audio_dir"`
	VideoDir            string   `toml:"video_dir"`
	TasksDir            string   `toml:"tasks_dir"`
	Workers             int      `toml:"workers"`
	ItemTimeout         Duration `toml:"item_timeout"`
	DefaultMaxItems     int      `toml:"default_max_items"`
	DefaultQuality      string   `toml:"default_quality"`
	SimilarityThreshold float64  `toml:"similarity_threshold"`
	ProgressRate        float64  `toml:"progress_rate"`
}

// ProxyConfig contains upstream proxy rotation settings.
type ProxyConfig struct {
	Enabled         bool          `toml:"enabled"`
	Require         bool          `toml:"require"`
	Endpoints       []string      `toml:"endpoints"`
	File            string        `toml:"file"`
	RefreshInterval Duration      `toml:"refresh_interval"`
	Check           bool          `toml:"check"`
	CheckURL        string        `toml:"check_url"`
	CheckTimeout    Duration      `toml:"check_timeout"`
	CheckRate       float64       `toml:"check_rate"`
	Geonode         GeonodeConfig `toml:"geonode"`
}

// GeonodeConfig configures the public proxy list API source.
type GeonodeConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Limit   int    `toml:"limit"`
}

// CacheConfig sizes the resolution cache.
type CacheConfig struct {
	ResolveTTL  Duration `toml:"resolve_ttl"`
	NumCounters int64    `toml:"num_counters"`
	MaxCost     int64    `toml:"max_cost"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a [time.Duration] that decodes from strings like "5s" or "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// AudioPath returns the shared output directory for audio-only tasks.
func (c DownloadConfig) AudioPath() string {
	return filepath.Join(c.Root, c.AudioDir)
}

// VideoPath returns the shared output directory for video tasks.
func (c DownloadConfig) VideoPath() string {
	return filepath.Join(c.Root, c.VideoDir)
}

// TasksPath returns the directory that holds per-task archives.
func (c DownloadConfig) TasksPath() string {
	return filepath.Join(c.Root, c.TasksDir)
}

// Addr returns the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports settings that would make the orchestrator misbehave.
func (c *Config) Validate() error {
	if c.Downloads.Workers < 1 {
		return fmt.Errorf("%w: downloads.workers must be at least 1", ErrInvalidConfig)
	}
	if c.Downloads.SimilarityThreshold < 0 || c.Downloads.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: downloads.similarity_threshold must be within [0, 1]", ErrInvalidConfig)
	}
	if c.Downloads.Root == "" {
		return fmt.Errorf("%w: downloads.root is required", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
