package main

import (
	"context"
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// FilenameValidator checks generated candidates against the known hash set.
type FilenameValidator interface {
	Validate(filename string) bool
}

// Sampler generates strings from a model one character at a time.
type Sampler struct {
	model       *Model
	vocab       *Vocabulary
	rng         *rand.Rand
	temperature float64
	validator   FilenameValidator
}

// NewSampler creates a sampler. validator may be nil, in which case
// SampleMany only yields candidates.
func NewSampler(model *Model, vocab *Vocabulary, rng *rand.Rand, temperature float64, validator FilenameValidator) *Sampler {
	if temperature <= 0 {
		temperature = 1
	}

	return &Sampler{
		model:       model,
		vocab:       vocab,
		rng:         rng,
		temperature: temperature,
		validator:   validator,
	}
}

// Sample produces exactly length characters. The first characters are taken
// from prime, or from a random corpus prefix when prime is empty; the rest are
// drawn from the model. The whole sequence is re-evaluated after every
// character and terminators are kept inline.
func (s *Sampler) Sample(length int, prime string) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: sample length must be positive, got %d", ErrInvalidConfig, length)
	}

	seed := []rune(prime)
	if len(seed) == 0 {
		seed = []rune{s.vocab.RandomPrefix(s.rng)}
	}
	if len(seed) > length {
		seed = seed[:length]
	}

	width := s.vocab.CharCount()
	sequence := make([][]float64, 0, length)
	result := make([]rune, 0, length)

	var scores [][]float64
	for i := range length {
		var idx int
		if i < len(seed) {
			var err error
			if idx, err = s.vocab.Encode(seed[i]); err != nil {
				return "", fmt.Errorf("prime %q: %w", prime, err)
			}
		} else {
			idx = SampleIndex(scores[len(scores)-1], s.temperature, s.rng.Float64())
		}

		r, err := s.vocab.Decode(idx)
		if err != nil {
			return "", err
		}
		result = append(result, r)
		sequence = append(sequence, oneHot(idx, width))

		// the scores after the final character are never read
		if i == length-1 {
			break
		}

		if scores, err = s.model.Evaluate(sequence); err != nil {
			return "", fmt.Errorf("evaluating model: %w", err)
		}
	}

	return string(result), nil
}

// SampleMany draws count samples, splits each on the terminator and yields
// every non-empty candidate that starts with prime. Yielded candidates have
// already been passed to the validator.
func (s *Sampler) SampleMany(ctx context.Context, count, length int, prime string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for range count {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			raw, err := s.Sample(length, prime)
			if err != nil {
				yield("", err)
				return
			}

			for _, candidate := range SplitCandidates(raw, prime) {
				if s.validator != nil {
					s.validator.Validate(candidate)
				}
				if !yield(candidate, nil) {
					return
				}
			}
		}
	}
}

// SplitCandidates splits a raw sample on the terminator, dropping empty parts
// and parts that do not start with prefix.
func SplitCandidates(raw, prefix string) []string {
	var out []string
	for _, part := range strings.Split(raw, string(Terminator)) {
		if part != "" && strings.HasPrefix(part, prefix) {
			out = append(out, part)
		}
	}
	return out
}

// SampleIndex draws an index from the distribution softmax(scores) with each
// probability raised to temperature: values above 1 sharpen the distribution
// and values below 1 flatten it. draw must lie in [0, 1). The cumulative walk
// falls back to the last index when rounding leaves mass unassigned.
func SampleIndex(scores []float64, temperature, draw float64) int {
	if len(scores) == 0 {
		return -1
	}

	// p^t is proportional to exp(t*score); subtracting the max keeps exp finite
	top := floats.Max(scores)
	weights := make([]float64, len(scores))
	for i, s := range scores {
		weights[i] = math.Exp(temperature * (s - top))
	}

	sum := floats.Sum(weights)
	for i, w := range weights {
		if draw -= w / sum; draw < 0 {
			return i
		}
	}

	return len(scores) - 1
}
