package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fidato13/nrtsearch/pkg/nrt"
	"github.com/fidato13/nrtsearch/pkg/validation"
)

// Config is the nrt-primary server configuration.
type Config struct {
	IndexName  string `yaml:"indexName" validate:"required"`
	DataDir    string `yaml:"dataDir"`
	HTTPAddr   string `yaml:"httpAddr"`
	PrimaryGen int64  `yaml:"primaryGen"`
	LogLevel   string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`

	RefreshInterval time.Duration `yaml:"refreshInterval"`

	Settings nrt.IndexSettings `yaml:"settings"`
	Upload   UploadConfig      `yaml:"upload"`
}

// UploadConfig selects and configures the durable upload backend.
type UploadConfig struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=dir s3"`
	Dir     string `yaml:"dir"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// DefaultConfig returns the configuration used when fields are unset.
func DefaultConfig() Config {
	return Config{
		DataDir:         "./data",
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		RefreshInterval: time.Second,
		Settings:        nrt.DefaultIndexSettings(),
		Upload: UploadConfig{
			Backend: "dir",
			Dir:     "./data/uploads",
		},
	}
}

// LoadConfig reads, defaults, and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	c.DataDir = validation.DefaultOrString(c.DataDir, defaults.DataDir)
	c.HTTPAddr = validation.DefaultOrString(c.HTTPAddr, defaults.HTTPAddr)
	c.LogLevel = validation.DefaultOrString(c.LogLevel, defaults.LogLevel)
	c.RefreshInterval = validation.DefaultOrDuration(c.RefreshInterval, defaults.RefreshInterval)
	c.Upload.Backend = validation.DefaultOrString(c.Upload.Backend, defaults.Upload.Backend)
	if c.Upload.Backend == "dir" {
		c.Upload.Dir = validation.DefaultOrString(c.Upload.Dir, defaults.Upload.Dir)
	}
	if c.Settings.RAMBufferSizeMB == 0 {
		c.Settings.RAMBufferSizeMB = defaults.Settings.RAMBufferSizeMB
	}
}

// Validate validates the full configuration.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	v := validation.NewConfigValidator("Config")
	v.MinDuration("RefreshInterval", c.RefreshInterval, 10*time.Millisecond).
		When(c.Upload.Backend == "s3", func(cv *validation.ConfigValidator) {
			cv.Required("Upload.Bucket", c.Upload.Bucket)
		}).
		When(c.Upload.Backend == "dir", func(cv *validation.ConfigValidator) {
			cv.Required("Upload.Dir", c.Upload.Dir)
		})
	if err := v.Validate(); err != nil {
		return err
	}
	return c.Settings.Validate()
}
