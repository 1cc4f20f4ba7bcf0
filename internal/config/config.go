// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port   int       `mapstructure:"port"`
	Log    LogConfig `mapstructure:"log"`
	Server struct {
		URL              string `mapstructure:"url"`
		APIKey           string `mapstructure:"api_key"`
		TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
		PageCacheMinutes int    `mapstructure:"page_cache_minutes"`
	} `mapstructure:"server"`
	Device struct {
		URL            string `mapstructure:"url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
		UploadPath     string `mapstructure:"upload_path"`
	} `mapstructure:"device"`
	Converter struct {
		Command       string `mapstructure:"command"`
		Script        string `mapstructure:"script"`
		FramePollMs   int    `mapstructure:"frame_poll_ms"`
		FrameMinAgeMs int    `mapstructure:"frame_min_age_ms"`
		OutputDir     string `mapstructure:"output_dir"`
	} `mapstructure:"converter"`
	Work struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"work"`
	Jobs struct {
		TTLMinutes             int `mapstructure:"ttl_minutes"`
		ReclaimIntervalSeconds int `mapstructure:"reclaim_interval_seconds"`
	} `mapstructure:"jobs"`
	Assembler struct {
		Workers   int `mapstructure:"workers"`
		Attempts  int `mapstructure:"attempts"`
		BackoffMs int `mapstructure:"backoff_ms"`
	} `mapstructure:"assembler"`
	Batch struct {
		Workers int `mapstructure:"workers"`
	} `mapstructure:"batch"`
	Progress struct {
		PageCeiling   float64 `mapstructure:"page_ceiling"`
		ToolFloor     float64 `mapstructure:"tool_floor"`
		DownloadFloor float64 `mapstructure:"download_floor"`
		RunningFloor  float64 `mapstructure:"running_floor"`
	} `mapstructure:"progress"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")    // or "yaml"
	v.AddConfigPath(".")      // looking for config in the current directory

	// --- Environment Variable Overrides ---
	// e.g., INKBRIDGE_SERVER_API_KEY will override the `server.api_key` key.
	v.SetEnvPrefix("INKBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "./logs/inkbridge.log")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 14)
	v.SetDefault("log.compress", false)

	v.SetDefault("server.url", "http://localhost:3000")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("server.page_cache_minutes", 10)

	v.SetDefault("device.url", "http://192.168.4.1")
	v.SetDefault("device.timeout_seconds", 600)
	v.SetDefault("device.upload_path", "/")

	v.SetDefault("converter.command", "python3")
	v.SetDefault("converter.script", "./cbz2xtc/cbz2xtc.py")
	v.SetDefault("converter.frame_poll_ms", 500)
	v.SetDefault("converter.frame_min_age_ms", 300)
	v.SetDefault("converter.output_dir", "xtc_output")

	v.SetDefault("work.dir", "")

	v.SetDefault("jobs.ttl_minutes", 30)
	v.SetDefault("jobs.reclaim_interval_seconds", 30)

	v.SetDefault("assembler.workers", 4)
	v.SetDefault("assembler.attempts", 3)
	v.SetDefault("assembler.backoff_ms", 500)

	v.SetDefault("batch.workers", 2)

	v.SetDefault("progress.page_ceiling", 0.7)
	v.SetDefault("progress.tool_floor", 0.85)
	v.SetDefault("progress.download_floor", 0.35)
	v.SetDefault("progress.running_floor", 0.1)
}

// JobTTL is how long a completed job keeps its artifact if nobody takes it.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.Jobs.TTLMinutes) * time.Minute
}

// ReclaimInterval is the period of the TTL reclaimer sweep.
func (c *Config) ReclaimInterval() time.Duration {
	return time.Duration(c.Jobs.ReclaimIntervalSeconds) * time.Second
}

// PageBackoff is the linear backoff step between page fetch attempts.
func (c *Config) PageBackoff() time.Duration {
	return time.Duration(c.Assembler.BackoffMs) * time.Millisecond
}

// FramePollInterval is the converter workspace poll period.
func (c *Config) FramePollInterval() time.Duration {
	return time.Duration(c.Converter.FramePollMs) * time.Millisecond
}

// FrameMinAge is how old a frame file must be before it is read.
func (c *Config) FrameMinAge() time.Duration {
	return time.Duration(c.Converter.FrameMinAgeMs) * time.Millisecond
}
