package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascpredictor/autodiff"
	"gonum.org/v1/gonum/mat"
)

// TrainerConfig controls the training loop and the optimizer.
type TrainerConfig struct {
	Epochs          int
	SampleFrequency int
	SampleSize      int
	LogFrequency    int

	LearningRate         float64
	MomentumTimeConstant float64
	ClipThreshold        float64
	ClipTruncation       bool
}

func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Epochs:               50,
		SampleFrequency:      1000,
		SampleSize:           100,
		LogFrequency:         100,
		LearningRate:         0.001,
		MomentumTimeConstant: 1100,
		ClipThreshold:        5.0,
		ClipTruncation:       true,
	}
}

// Trainer fits a model to the vocabulary corpus one filename at a time.
type Trainer struct {
	model       *Model
	vocab       *Vocabulary
	sampler     *Sampler
	validator   FilenameValidator
	checkpoints *CheckpointManager
	optimizer   *autodiff.MomentumSGD
	config      TrainerConfig
	logger      *slog.Logger
}

func NewTrainer(model *Model, vocab *Vocabulary, sampler *Sampler, validator FilenameValidator, checkpoints *CheckpointManager, cfg TrainerConfig, logger *slog.Logger) (*Trainer, error) {
	if err := model.CheckVocabulary(vocab); err != nil {
		return nil, err
	}

	optimizer, err := autodiff.NewMomentumSGD(model.Parameters(), cfg.LearningRate, cfg.MomentumTimeConstant, cfg.ClipThreshold, cfg.ClipTruncation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Trainer{
		model:       model,
		vocab:       vocab,
		sampler:     sampler,
		validator:   validator,
		checkpoints: checkpoints,
		optimizer:   optimizer,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Train runs every configured epoch and saves a checkpoint after each one.
// Cancelling ctx stops between filenames without saving the partial epoch.
func (t *Trainer) Train(ctx context.Context) error {
	count := t.vocab.Count()
	t.logger.Info("Starting training", slog.Int("epochs", t.config.Epochs), slog.Int("batchesPerEpoch", count))

	for epoch := 1; epoch <= t.config.Epochs; epoch++ {
		start := time.Now()
		t.logger.Info("Running epoch", slog.Int("epoch", epoch), slog.Int("of", t.config.Epochs))

		var lossSum, errSum float64
		var window int

		for i := range count {
			if err := ctx.Err(); err != nil {
				return err
			}

			pair, err := EncodeSequence(t.vocab, t.vocab.Filename(i))
			if err != nil {
				return err
			}

			loss, evalErr, err := t.Step(pair)
			if err != nil {
				return fmt.Errorf("epoch %d, filename %d: %w", epoch, i+1, err)
			}
			lossSum += loss
			errSum += evalErr
			window++

			if t.config.SampleFrequency > 0 && i%t.config.SampleFrequency == 0 {
				t.sample()
			}

			if t.config.LogFrequency > 0 && i%t.config.LogFrequency == 0 {
				t.logger.Info(fmt.Sprintf("Epoch %03d: Batch [%06d-%06d]", epoch, i+1, i+t.config.LogFrequency),
					slog.String("crossEntropy", fmt.Sprintf("%.6f", lossSum/float64(window))),
					slog.String("evaluation", fmt.Sprintf("%.3f", errSum/float64(window))))
				lossSum, errSum, window = 0, 0, 0
			}
		}

		t.logger.Info("Finished epoch", slog.Int("epoch", epoch), slog.Duration("elapsed", time.Since(start)))

		path, err := t.checkpoints.Save(t.model)
		if err != nil {
			return fmt.Errorf("saving epoch %d: %w", epoch, err)
		}
		t.logger.Info("Saved model", slog.String("file", path))
	}

	return nil
}

// Step performs one teacher-forced update on a single sequence and returns
// the per-character cross entropy and classification error.
func (t *Trainer) Step(pair SequencePair) (float64, float64, error) {
	logits, err := t.model.Forward(pair.Input)
	if err != nil {
		return 0, 0, err
	}

	if len(pair.Output) != len(logits) {
		return 0, 0, fmt.Errorf("sequence has %d labels for %d positions", len(pair.Output), len(logits))
	}

	losses := make([]*autodiff.Tensor, len(logits))
	var misses float64
	for i, z := range logits {
		label := autodiff.NewConstant(mat.NewDense(len(pair.Output[i]), 1, pair.Output[i]), "labels")

		if losses[i], err = autodiff.CrossEntropyWithSoftmax(z, label); err != nil {
			return 0, 0, err
		}

		e, err := autodiff.ClassificationError(z, label)
		if err != nil {
			return 0, 0, err
		}
		misses += e
	}

	total, err := autodiff.AddN(losses...)
	if err != nil {
		return 0, 0, err
	}

	if err := autodiff.Backward(total); err != nil {
		return 0, 0, err
	}
	t.optimizer.Step(len(logits))

	n := float64(len(logits))
	return total.Value.At(0, 0) / n, misses / n, nil
}

func (t *Trainer) sample() {
	if t.sampler == nil {
		return
	}

	s, err := t.sampler.Sample(t.config.SampleSize, "")
	if err != nil {
		t.logger.Error("Failed to sample", slog.Any("err", err))
		return
	}

	if t.validator != nil {
		t.validator.Validate(s)
	}
	t.logger.Info("Sample", slog.String("text", s))
}
