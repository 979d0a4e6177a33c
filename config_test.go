package main

import (
	"errors"
	"testing"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Mode = ModeTrain
	cfg.Prefix = "m"
	cfg.DataPath = "listfile.txt"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := map[string]func(*Config){
		"unknown mode":     func(c *Config) { c.Mode = "serve" },
		"no prefix":        func(c *Config) { c.Prefix = "" },
		"no data":          func(c *Config) { c.DataPath = "" },
		"zero sample size": func(c *Config) { c.SampleSize = 0 },
		"zero temperature": func(c *Config) { c.Temperature = 0 },
		"no layers":        func(c *Config) { c.Model.Layers = 0 },
		"no epochs":        func(c *Config) { c.Trainer.Epochs = 0 },
		"no samples": func(c *Config) {
			c.Mode = ModeSample
			c.SampleCount = 0
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfigLoadEnv(t *testing.T) {
	t.Setenv("CASC_LISTFILE_URL", "http://example.test/list")
	t.Setenv("CASC_CHECKFILES_URL", "")
	t.Setenv("CASC_USER_AGENT", "agent/2")
	t.Setenv("DISCORD_WEBHOOK_ID", "123456789")
	t.Setenv("DISCORD_WEBHOOK_TOKEN", "secret")

	cfg := DefaultConfig()
	cfg.LoadEnv()

	if cfg.Validator.ListfileURL != "http://example.test/list" || cfg.Validator.UserAgent != "agent/2" {
		t.Errorf("validator config %+v", cfg.Validator)
	}
	if cfg.Validator.CheckFilesURL != DefaultValidatorConfig().CheckFilesURL {
		t.Errorf("empty variable replaced the default: %q", cfg.Validator.CheckFilesURL)
	}
	if cfg.WebhookID != 123456789 || !cfg.DiscordEnabled() {
		t.Errorf("webhook %v enabled=%v", cfg.WebhookID, cfg.DiscordEnabled())
	}

	t.Setenv("DISCORD_WEBHOOK_TOKEN", "")
	cfg.LoadEnv()
	if cfg.DiscordEnabled() {
		t.Error("webhook without a token should be disabled")
	}
}
