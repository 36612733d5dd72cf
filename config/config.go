// Package config loads the mirror configuration from YAML. One file covers
// both roles: the consumer server reads Server/Ingest/Journal/Recorder/UI,
// the producer harness reads Producer.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete mirror configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Producer ProducerConfig `yaml:"producer"`
	Journal  JournalConfig  `yaml:"journal"`
	Recorder RecorderConfig `yaml:"recorder"`
	UI       UIConfig       `yaml:"ui"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains consumer-side listener settings.
type ServerConfig struct {
	BindAddress string `yaml:"bind_address"`
	HTTPPort    int    `yaml:"http_port"`
}

// IngestConfig controls the consumer store and liveness checking.
type IngestConfig struct {
	RootPath             string `yaml:"root_path"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
	EventRingSize        int    `yaml:"event_ring_size"`
}

// ProducerConfig controls the producer-side sync cycle and batching.
type ProducerConfig struct {
	Name            string `yaml:"name"`
	ConsumerURL     string `yaml:"consumer_url"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	BatchSize       int    `yaml:"batch_size"`
	BatchPauseMS    int    `yaml:"batch_pause_ms"`
	MaxDepth        int    `yaml:"max_depth"`
	MaxNodes        int    `yaml:"max_nodes"`
	Compress        bool   `yaml:"compress"`
}

// JournalConfig controls the pebble-backed applied-message journal.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// RecorderConfig controls the SQLite sync-cycle history.
type RecorderConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	MaxRows  int    `yaml:"max_rows"`
}

// UIConfig controls the terminal dashboard.
type UIConfig struct {
	Enabled          bool `yaml:"enabled"`
	RefreshMS        int  `yaml:"refresh_ms"`
	RecentEventRows  int  `yaml:"recent_event_rows"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	Console       bool   `yaml:"console"`
}

// Load loads configuration from a YAML file and fills defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a usable configuration without a file on disk.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 7420
	}
	if c.Ingest.RootPath == "" {
		c.Ingest.RootPath = "game"
	}
	if c.Ingest.TimeoutSeconds <= 0 {
		c.Ingest.TimeoutSeconds = 15
	}
	if c.Ingest.CheckIntervalSeconds <= 0 {
		c.Ingest.CheckIntervalSeconds = 5
	}
	if c.Ingest.EventRingSize <= 0 {
		c.Ingest.EventRingSize = 512
	}
	if c.Producer.Name == "" {
		c.Producer.Name = "producer"
	}
	if c.Producer.ConsumerURL == "" {
		c.Producer.ConsumerURL = fmt.Sprintf("ws://127.0.0.1:%d/ws", c.Server.HTTPPort)
	}
	if c.Producer.IntervalSeconds <= 0 {
		c.Producer.IntervalSeconds = 2
	}
	if c.Producer.BatchSize <= 0 {
		c.Producer.BatchSize = 500
	}
	if c.Producer.BatchPauseMS < 0 {
		c.Producer.BatchPauseMS = 50
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "data/journal"
	}
	if c.Journal.RetentionDays <= 0 {
		c.Journal.RetentionDays = 7
	}
	if c.Recorder.Path == "" {
		c.Recorder.Path = "data/history.db"
	}
	if c.Recorder.MaxRows <= 0 {
		c.Recorder.MaxRows = 50_000
	}
	if c.UI.RefreshMS <= 0 {
		c.UI.RefreshMS = 500
	}
	if c.UI.RecentEventRows <= 0 {
		c.UI.RecentEventRows = 20
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
}

// Timeout returns the producer-silence threshold.
func (c *IngestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CheckInterval returns the liveness evaluation cadence.
func (c *IngestConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// Interval returns the producer tick period.
func (c *ProducerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// BatchPause returns the mandatory inter-batch gap.
func (c *ProducerConfig) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMS) * time.Millisecond
}

// Print displays the configuration.
func (c *Config) Print() {
	fmt.Printf("Server: %s:%d\n", c.Server.BindAddress, c.Server.HTTPPort)
	fmt.Printf("Ingest: root=%s timeout=%ds check=%ds\n",
		c.Ingest.RootPath, c.Ingest.TimeoutSeconds, c.Ingest.CheckIntervalSeconds)
	fmt.Printf("Producer: %s -> %s every %ds (batch=%d pause=%dms compress=%t)\n",
		c.Producer.Name, c.Producer.ConsumerURL, c.Producer.IntervalSeconds,
		c.Producer.BatchSize, c.Producer.BatchPauseMS, c.Producer.Compress)
	if c.Journal.Enabled {
		fmt.Printf("Journal: %s (retention %dd)\n", c.Journal.Dir, c.Journal.RetentionDays)
	}
	if c.Recorder.Enabled {
		fmt.Printf("Recorder: %s (max %d rows)\n", c.Recorder.Path, c.Recorder.MaxRows)
	}
	if c.UI.Enabled {
		fmt.Printf("Dashboard: refresh %dms\n", c.UI.RefreshMS)
	}
}
