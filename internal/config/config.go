// Package config loads process configuration from POSTFLOW_* env vars
// with sane defaults. Flags in main may override individual fields.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr         string
	DBPath       string
	TickInterval time.Duration
	RetryDelay   time.Duration
	MaxAttempts  int
	Retention    time.Duration
	SeedContent  string
	SeedChannel  string
	WebhookURL   string
	Debug        bool
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POSTFLOW")
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "postflow.db")
	v.SetDefault("tick_interval", time.Minute)
	v.SetDefault("retry_delay", 5*time.Minute)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("retention", 30*24*time.Hour)
	v.SetDefault("seed_content", "Daily check-in from postflow")
	v.SetDefault("seed_channel", "demo")
	v.SetDefault("webhook_url", "")
	v.SetDefault("debug", false)

	cfg := Config{
		Addr:         v.GetString("addr"),
		DBPath:       v.GetString("db_path"),
		TickInterval: v.GetDuration("tick_interval"),
		RetryDelay:   v.GetDuration("retry_delay"),
		MaxAttempts:  v.GetInt("max_attempts"),
		Retention:    v.GetDuration("retention"),
		SeedContent:  v.GetString("seed_content"),
		SeedChannel:  v.GetString("seed_channel"),
		WebhookURL:   v.GetString("webhook_url"),
		Debug:        v.GetBool("debug"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects configuration the engine cannot start with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: tick_interval must be positive")
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("config: retry_delay must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("config: max_attempts must be positive")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("config: retention must be positive")
	}
	if c.SeedChannel != "" && c.SeedContent == "" {
		return fmt.Errorf("config: seed_content is required when seed_channel is set")
	}
	return nil
}
