package main

import (
	"errors"
	"slices"
	"testing"
)

func TestEncodeSequence(t *testing.T) {
	v := testVocabulary(t, "abc", "abd", "abe")

	pair, err := EncodeSequence(v, "abc")
	if err != nil {
		t.Fatalf("EncodeSequence: %v", err)
	}

	if len(pair.Input) != 3 || len(pair.Output) != 3 {
		t.Fatalf("got %d inputs and %d outputs, want 3 and 3", len(pair.Input), len(pair.Output))
	}

	want := []int{1, 2, 3}
	for i, row := range pair.Input {
		if len(row) != 6 {
			t.Fatalf("input row %d has width %d, want 6", i, len(row))
		}
		if !slices.Equal(row, oneHot(want[i], 6)) {
			t.Errorf("input row %d = %v, want one-hot at %d", i, row, want[i])
		}
	}

	for i := 0; i < 2; i++ {
		if !slices.Equal(pair.Output[i], pair.Input[i+1]) {
			t.Errorf("output row %d = %v, want input row %d", i, pair.Output[i], i+1)
		}
	}

	if !slices.Equal(pair.Output[2], oneHot(0, 6)) {
		t.Errorf("last output row = %v, want the terminator", pair.Output[2])
	}
}

func TestEncodeSequenceSingleChar(t *testing.T) {
	v := testVocabulary(t, "a")

	pair, err := EncodeSequence(v, "a")
	if err != nil {
		t.Fatalf("EncodeSequence: %v", err)
	}

	if !slices.Equal(pair.Input[0], []float64{0, 1}) || !slices.Equal(pair.Output[0], []float64{1, 0}) {
		t.Errorf("pair = %v -> %v", pair.Input, pair.Output)
	}
}

func TestEncodeSequenceErrors(t *testing.T) {
	v := testVocabulary(t, "abc")

	if _, err := EncodeSequence(v, ""); !errors.Is(err, ErrData) {
		t.Errorf("empty filename error = %v, want ErrData", err)
	}

	if _, err := EncodeSequence(v, "abz"); !errors.Is(err, ErrUnknownChar) {
		t.Errorf("unknown char error = %v, want ErrUnknownChar", err)
	}
}
