package main

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
)

// Terminator marks the end of a filename in training targets and splits
// generated samples into candidates.
const Terminator = ' '

var (
	ErrData        = errors.New("invalid training data")
	ErrUnknownChar = errors.New("character not in vocabulary")
)

// Vocabulary holds the shuffled training corpus and the character alphabet
// derived from it. It is immutable once built.
type Vocabulary struct {
	filenames []string
	prefixes  []rune

	alphabet    []rune
	charToIndex map[rune]int
}

// LoadVocabulary reads one filename per line from path.
func LoadVocabulary(path string, rng *rand.Rand) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrData, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrData, path, err)
	}

	return NewVocabulary(lines, rng)
}

// NewVocabulary builds a vocabulary from corpus lines. Blank lines are dropped
// and the remaining filenames are shuffled once.
func NewVocabulary(lines []string, rng *rand.Rand) (*Vocabulary, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: training data is empty", ErrData)
	}

	filenames := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		filenames = append(filenames, line)
	}

	if len(filenames) == 0 {
		return nil, fmt.Errorf("%w: training data only contains blank lines", ErrData)
	}

	rng.Shuffle(len(filenames), func(i, j int) {
		filenames[i], filenames[j] = filenames[j], filenames[i]
	})

	seenPrefix := make(map[rune]bool)
	charToIndex := map[rune]int{Terminator: 0}
	var prefixes []rune

	for _, name := range filenames {
		for i, r := range name {
			if i == 0 && !seenPrefix[r] {
				seenPrefix[r] = true
				prefixes = append(prefixes, r)
			}
			charToIndex[r] = 0
		}
	}

	alphabet := make([]rune, 0, len(charToIndex))
	for r := range charToIndex {
		alphabet = append(alphabet, r)
	}
	slices.Sort(alphabet)

	for i, r := range alphabet {
		charToIndex[r] = i
	}

	return &Vocabulary{
		filenames:   filenames,
		prefixes:    prefixes,
		alphabet:    alphabet,
		charToIndex: charToIndex,
	}, nil
}

// Count returns the number of filenames in the corpus.
func (v *Vocabulary) Count() int {
	return len(v.filenames)
}

// Filename returns the i-th filename in training order.
func (v *Vocabulary) Filename(i int) string {
	return v.filenames[i]
}

// CharCount returns the size of the alphabet.
func (v *Vocabulary) CharCount() int {
	return len(v.alphabet)
}

// Alphabet returns every character of the vocabulary in index order.
func (v *Vocabulary) Alphabet() string {
	return string(v.alphabet)
}

func (v *Vocabulary) Encode(r rune) (int, error) {
	i, ok := v.charToIndex[r]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownChar, r)
	}

	return i, nil
}

func (v *Vocabulary) Decode(i int) (rune, error) {
	if i < 0 || i >= len(v.alphabet) {
		return 0, fmt.Errorf("index %d out of range [0, %d)", i, len(v.alphabet))
	}

	return v.alphabet[i], nil
}

// RandomPrefix picks one of the characters that start a corpus filename.
func (v *Vocabulary) RandomPrefix(rng *rand.Rand) rune {
	if len(v.prefixes) == 1 {
		return v.prefixes[0]
	}

	return v.prefixes[rng.IntN(len(v.prefixes))]
}
