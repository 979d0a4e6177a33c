package main

import "fmt"

// SequencePair is a teacher-forced training example: Input holds the one-hot
// rows of a filename and Output the same rows shifted left by one, ending with
// the terminator.
type SequencePair struct {
	Input  [][]float64
	Output [][]float64
}

// EncodeSequence builds the training pair for a filename.
func EncodeSequence(v *Vocabulary, filename string) (SequencePair, error) {
	runes := []rune(filename)
	if len(runes) == 0 {
		return SequencePair{}, fmt.Errorf("%w: empty filename", ErrData)
	}

	terminator, err := v.Encode(Terminator)
	if err != nil {
		return SequencePair{}, err
	}

	width := v.CharCount()
	input := make([][]float64, len(runes))
	output := make([][]float64, len(runes))

	for i, r := range runes {
		idx, err := v.Encode(r)
		if err != nil {
			return SequencePair{}, fmt.Errorf("encoding %q: %w", filename, err)
		}
		input[i] = oneHot(idx, width)
	}

	for i := 0; i < len(runes)-1; i++ {
		output[i] = append([]float64(nil), input[i+1]...)
	}
	output[len(runes)-1] = oneHot(terminator, width)

	return SequencePair{Input: input, Output: output}, nil
}

func oneHot(index, width int) []float64 {
	row := make([]float64, width)
	row[index] = 1
	return row
}
