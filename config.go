package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/disgoorg/snowflake/v2"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Mode string

const (
	ModeTrain  Mode = "train"
	ModeSample Mode = "sample"
)

// Config is everything a run needs, gathered from flags and the environment.
type Config struct {
	Mode     Mode
	Prefix   string
	DataPath string
	ModelDir string
	Seed     uint64
	Verbose  bool

	SampleSize  int
	SampleCount int
	Prime       string
	Temperature float64

	Model   ModelConfig
	Trainer TrainerConfig

	Validator ValidatorConfig
	DBPath    string

	WebhookID    snowflake.ID
	WebhookToken string
}

func DefaultConfig() Config {
	return Config{
		ModelDir:    "models",
		SampleSize:  100,
		SampleCount: 100,
		Temperature: 1,
		Model:       DefaultModelConfig(),
		Trainer:     DefaultTrainerConfig(),
		Validator:   DefaultValidatorConfig(),
		DBPath:      "found.db",
	}
}

// LoadEnv overrides service endpoints and secrets from the environment.
func (c *Config) LoadEnv() {
	if v := os.Getenv("CASC_LISTFILE_URL"); v != "" {
		c.Validator.ListfileURL = v
	}
	if v := os.Getenv("CASC_CHECKFILES_URL"); v != "" {
		c.Validator.CheckFilesURL = v
	}
	if v := os.Getenv("CASC_USER_AGENT"); v != "" {
		c.Validator.UserAgent = v
	}

	c.WebhookID = snowflake.GetEnv("DISCORD_WEBHOOK_ID")
	c.WebhookToken = os.Getenv("DISCORD_WEBHOOK_TOKEN")
}

func (c *Config) Validate() error {
	switch {
	case c.Mode != ModeTrain && c.Mode != ModeSample:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	case c.Prefix == "":
		return fmt.Errorf("%w: model prefix is required", ErrInvalidConfig)
	case c.DataPath == "":
		return fmt.Errorf("%w: training data path is required", ErrInvalidConfig)
	case c.SampleSize <= 0:
		return fmt.Errorf("%w: sample size must be positive", ErrInvalidConfig)
	case c.Temperature <= 0:
		return fmt.Errorf("%w: temperature must be positive", ErrInvalidConfig)
	case c.Model.Layers <= 0 || c.Model.Hidden <= 0:
		return fmt.Errorf("%w: layers and hidden width must be positive", ErrInvalidConfig)
	}

	if c.Mode == ModeTrain && c.Trainer.Epochs <= 0 {
		return fmt.Errorf("%w: epochs must be positive", ErrInvalidConfig)
	}

	if c.Mode == ModeSample && c.SampleCount <= 0 {
		return fmt.Errorf("%w: sample count must be positive", ErrInvalidConfig)
	}

	return nil
}

// DiscordEnabled reports whether a webhook is configured.
func (c *Config) DiscordEnabled() bool {
	return c.WebhookID != 0 && c.WebhookToken != ""
}
