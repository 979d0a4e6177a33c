package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		slog.Warn("Failed to load environment", slog.Any("err", err))
	}

	cfg := DefaultConfig()
	cfg.LoadEnv()

	if err := newRootCommand(&cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "cascpredictor",
		Short:         "Predict unknown CASC archive filenames with a character LSTM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.Prefix, "prefix", "", "Model name prefix used for checkpoint files")
	flags.StringVar(&cfg.DataPath, "data", "", "Training corpus, one filename per line")
	flags.StringVar(&cfg.ModelDir, "model-dir", cfg.ModelDir, "Checkpoint directory")
	flags.IntVar(&cfg.SampleSize, "sample-size", cfg.SampleSize, "Characters per sample")
	flags.IntVar(&cfg.Model.Layers, "layers", cfg.Model.Layers, "Stacked LSTM layers for a new model")
	flags.IntVar(&cfg.Model.Hidden, "hidden", cfg.Model.Hidden, "LSTM width for a new model")
	flags.Float64Var(&cfg.Temperature, "temperature", cfg.Temperature, "Sampling temperature applied as p^t")
	flags.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "RNG seed")
	flags.StringVar(&cfg.Validator.ListfilePath, "hashes", cfg.Validator.ListfilePath, "Cached unknown-hash listfile")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Found filename database")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging")
	root.MarkPersistentFlagRequired("prefix")
	root.MarkPersistentFlagRequired("data")

	train := &cobra.Command{
		Use:   "train",
		Short: "Train the model, saving a checkpoint after every epoch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Mode = ModeTrain
			return execute(cmd.Context(), cfg)
		},
	}
	train.Flags().IntVar(&cfg.Trainer.Epochs, "epochs", cfg.Trainer.Epochs, "Epochs to run")
	train.Flags().IntVar(&cfg.Trainer.SampleFrequency, "sample-frequency", cfg.Trainer.SampleFrequency, "Draw a sample every n filenames")

	sample := &cobra.Command{
		Use:   "sample",
		Short: "Generate candidate filenames from the latest checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Mode = ModeSample
			return execute(cmd.Context(), cfg)
		},
	}
	sample.Flags().IntVar(&cfg.SampleCount, "sample-count", cfg.SampleCount, "Samples to draw")
	sample.Flags().StringVar(&cfg.Prime, "prime", "", "Prefix every sample starts with")

	root.AddCommand(train, sample)
	return root
}

func execute(parent context.Context, cfg *Config) error {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg.Trainer.SampleSize = cfg.SampleSize
	cfg.Model.Seed = cfg.Seed
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("err", err))
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := OpenFoundStore(cfg.DBPath)
	if err != nil {
		logger.Error("Failed to open found store", slog.String("file", cfg.DBPath), slog.Any("err", err))
		return err
	}
	defer store.Close()

	var notifier Notifier
	if cfg.DiscordEnabled() {
		discord := NewDiscordNotifier(cfg.WebhookID, cfg.WebhookToken)
		defer discord.Close(context.TODO())
		notifier = discord
	}

	validator := NewFileValidator(cfg.Validator, store, notifier, os.Stdout, logger)
	if err := validator.Load(ctx); err != nil {
		logger.Error("Failed to load unknown hashes", slog.Any("err", err))
		return err
	}

	// found names are reported even when the run is interrupted or fails
	defer func() {
		if err := validator.Sync(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to sync found filenames", slog.Any("err", err))
		}
	}()

	err = run(ctx, cfg, validator, logger)
	if errors.Is(err, context.Canceled) {
		logger.Info("Interrupted")
		return nil
	}
	if err != nil {
		logger.Error("Run failed", slog.String("mode", string(cfg.Mode)), slog.Any("err", err))
	}

	return err
}

func run(ctx context.Context, cfg *Config, validator *FileValidator, logger *slog.Logger) error {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	vocab, err := LoadVocabulary(cfg.DataPath, rng)
	if err != nil {
		return err
	}
	logger.Info("Loaded training data", slog.Int("filenames", vocab.Count()), slog.Int("chars", vocab.CharCount()))

	checkpoints, err := NewCheckpointManager(cfg.ModelDir, cfg.Prefix, DefaultCheckpointExt)
	if err != nil {
		return err
	}

	model, err := OpenModel(checkpoints, vocab, cfg.Model, logger)
	if err != nil {
		return err
	}

	sampler := NewSampler(model, vocab, rng, cfg.Temperature, validator)

	switch cfg.Mode {
	case ModeTrain:
		trainer, err := NewTrainer(model, vocab, sampler, validator, checkpoints, cfg.Trainer, logger)
		if err != nil {
			return err
		}

		if err := trainer.Train(ctx); err != nil {
			return err
		}
		logger.Info("Finished training")

	case ModeSample:
		if _, ok := checkpoints.Latest(); !ok {
			logger.Warn("Sampling from an untrained model")
		}

		var n int
		for name, err := range sampler.SampleMany(ctx, cfg.SampleCount, cfg.SampleSize, cfg.Prime) {
			if err != nil {
				return err
			}
			fmt.Println(name)
			n++
		}
		logger.Info("Finished sampling", slog.Int("candidates", n))
	}

	return nil
}
