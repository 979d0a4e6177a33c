package main

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
)

type recordingValidator struct {
	seen []string
}

func (r *recordingValidator) Validate(filename string) bool {
	r.seen = append(r.seen, filename)
	return false
}

func testSampler(t *testing.T, validator FilenameValidator) (*Sampler, *Vocabulary) {
	t.Helper()

	v := testVocabulary(t, "abc", "abd", "abe")
	return NewSampler(testModel(t, v, smallModelConfig()), v, testRand(), 1, validator), v
}

func TestSampleIndexDegenerate(t *testing.T) {
	scores := []float64{math.Inf(-1), 0, math.Inf(-1)}
	for _, draw := range []float64{0, 0.5, 0.999999} {
		if got := SampleIndex(scores, 1, draw); got != 1 {
			t.Errorf("draw %v picked %d, want 1", draw, got)
		}
	}

	// a tiny but non-zero mass still owns the start of the interval
	if got := SampleIndex([]float64{0, 100, 0}, 1, 0); got != 0 {
		t.Errorf("draw 0 over a near-degenerate distribution picked %d, want 0", got)
	}

	if got := SampleIndex(nil, 1, 0.5); got != -1 {
		t.Errorf("empty scores picked %d, want -1", got)
	}
}

func TestSampleIndexUniform(t *testing.T) {
	rng := testRand()
	scores := []float64{1, 1, 1, 1}
	counts := make([]int, len(scores))

	const n = 40000
	for range n {
		counts[SampleIndex(scores, 1, rng.Float64())]++
	}

	for i, c := range counts {
		if p := float64(c) / n; math.Abs(p-0.25) > 0.02 {
			t.Errorf("index %d drawn with frequency %v, want 0.25", i, p)
		}
	}
}

func TestSampleIndexTemperature(t *testing.T) {
	// probabilities 1/3 and 2/3; squared and renormalised they are 1/5 and 4/5
	scores := []float64{0, math.Ln2}

	if got := SampleIndex(scores, 1, 0.3); got != 0 {
		t.Errorf("temperature 1 picked %d, want 0", got)
	}
	if got := SampleIndex(scores, 2, 0.3); got != 1 {
		t.Errorf("temperature 2 picked %d, want 1", got)
	}
}

func TestSampleIndexLargeScores(t *testing.T) {
	scores := []float64{1000, 1000 + math.Ln2}
	if got := SampleIndex(scores, 1, 0.3); got != 0 {
		t.Errorf("picked %d, want 0", got)
	}
	if got := SampleIndex(scores, 1, 0.5); got != 1 {
		t.Errorf("picked %d, want 1", got)
	}
}

func TestSampleWithPrime(t *testing.T) {
	s, v := testSampler(t, nil)

	out, err := s.Sample(5, "ab")
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	runes := []rune(out)
	if len(runes) != 5 {
		t.Fatalf("sample %q has %d characters, want 5", out, len(runes))
	}
	if !strings.HasPrefix(out, "ab") {
		t.Errorf("sample %q does not start with the prime", out)
	}
	for _, r := range runes {
		if _, err := v.Encode(r); err != nil {
			t.Errorf("sample %q holds %q outside the alphabet", out, r)
		}
	}
}

func TestSampleTruncatesLongPrime(t *testing.T) {
	s, _ := testSampler(t, nil)

	out, err := s.Sample(3, "abcde")
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if out != "abc" {
		t.Errorf("sample = %q, want %q", out, "abc")
	}
}

func TestSampleRandomPrefix(t *testing.T) {
	s, _ := testSampler(t, nil)

	for range 5 {
		out, err := s.Sample(4, "")
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if len([]rune(out)) != 4 || out[0] != 'a' {
			t.Errorf("sample %q should be 4 characters starting with the only corpus prefix", out)
		}
	}
}

func TestSampleErrors(t *testing.T) {
	s, _ := testSampler(t, nil)

	if _, err := s.Sample(0, ""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero length error = %v, want ErrInvalidConfig", err)
	}

	if _, err := s.Sample(4, "az"); !errors.Is(err, ErrUnknownChar) {
		t.Errorf("unknown prime error = %v, want ErrUnknownChar", err)
	}
}

func TestSplitCandidates(t *testing.T) {
	tests := []struct {
		raw, prefix string
		want        []string
	}{
		{"ab cd ab x", "ab", []string{"ab", "ab"}},
		{"  abc  abd ", "ab", []string{"abc", "abd"}},
		{"a b  c", "", []string{"a", "b", "c"}},
		{"   ", "", nil},
		{"xyz", "ab", nil},
	}

	for _, tt := range tests {
		if got := SplitCandidates(tt.raw, tt.prefix); !slices.Equal(got, tt.want) {
			t.Errorf("SplitCandidates(%q, %q) = %q, want %q", tt.raw, tt.prefix, got, tt.want)
		}
	}
}

func TestSampleMany(t *testing.T) {
	validator := &recordingValidator{}
	s, _ := testSampler(t, validator)

	var got []string
	for name, err := range s.SampleMany(context.Background(), 4, 12, "a") {
		if err != nil {
			t.Fatalf("SampleMany: %v", err)
		}
		if !strings.HasPrefix(name, "a") || strings.ContainsRune(name, Terminator) {
			t.Errorf("candidate %q", name)
		}
		got = append(got, name)
	}

	// every sample starts with the prime so yields at least one candidate
	if len(got) < 4 {
		t.Errorf("got %d candidates from 4 samples", len(got))
	}
	if !slices.Equal(got, validator.seen) {
		t.Errorf("validator saw %q, yielded %q", validator.seen, got)
	}
}

func TestSampleManyStopsEarly(t *testing.T) {
	s, _ := testSampler(t, nil)

	var n int
	for _, err := range s.SampleMany(context.Background(), 100, 6, "ab") {
		if err != nil {
			t.Fatal(err)
		}
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterated %d times after break", n)
	}
}

func TestSampleManyCancelled(t *testing.T) {
	s, _ := testSampler(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, err := range s.SampleMany(ctx, 3, 6, "") {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got (%q, %v), want context.Canceled", name, err)
		}
	}
}
