package main

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/cascpredictor/autodiff"
	"gonum.org/v1/gonum/mat"
)

const modelFormatVersion = 1

var ErrAlphabetMismatch = errors.New("model alphabet does not match vocabulary")

// ModelConfig describes the architecture of a fresh model.
type ModelConfig struct {
	Layers int
	Hidden int
	// CellDim is the LSTM cell width; 0 means Hidden.
	CellDim int
	Seed    uint64
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Layers: 2,
		Hidden: 256,
		Seed:   1,
	}
}

// Model is a stack of {stabilizer, LSTM} blocks followed by a dense projection
// back to the alphabet. Its outputs are unnormalised log-space scores.
type Model struct {
	alphabet string
	config   ModelConfig
	inputDim int

	layers []layer
}

// NewModel builds a freshly initialised model over the given alphabet.
func NewModel(alphabet string, cfg ModelConfig) (*Model, error) {
	width := len([]rune(alphabet))
	if width == 0 {
		return nil, fmt.Errorf("%w: empty alphabet", ErrInvalidConfig)
	}

	if cfg.Layers <= 0 || cfg.Hidden <= 0 || cfg.CellDim < 0 {
		return nil, fmt.Errorf("%w: layers=%d hidden=%d cell=%d", ErrInvalidConfig, cfg.Layers, cfg.Hidden, cfg.CellDim)
	}

	m := &Model{alphabet: alphabet, config: cfg, inputDim: width}

	dim := width
	for i := range cfg.Layers {
		name := fmt.Sprintf("layer%d", i)
		seed := cfg.Seed + uint64(i)*16

		cell, err := newLSTM(name+".lstm", dim, cfg.Hidden, cfg.CellDim, seed)
		if err != nil {
			return nil, err
		}

		m.layers = append(m.layers, newStabilizer(name+".stabilizer"), cell)
		dim = cfg.Hidden
	}

	out, err := newDense("output", dim, width, cfg.Seed+uint64(cfg.Layers)*16)
	if err != nil {
		return nil, err
	}
	m.layers = append(m.layers, out)

	return m, nil
}

// InputDim is the width of the one-hot feature and label vectors.
func (m *Model) InputDim() int {
	return m.inputDim
}

func (m *Model) Alphabet() string {
	return m.alphabet
}

func (m *Model) Config() ModelConfig {
	return m.config
}

// CheckVocabulary fails with ErrAlphabetMismatch when the model was built for
// a different alphabet than v.
func (m *Model) CheckVocabulary(v *Vocabulary) error {
	if m.inputDim != v.CharCount() {
		return fmt.Errorf("%w: model has %d characters, vocabulary has %d", ErrAlphabetMismatch, m.inputDim, v.CharCount())
	}

	if m.alphabet != v.Alphabet() {
		return fmt.Errorf("%w: model %q, vocabulary %q", ErrAlphabetMismatch, m.alphabet, v.Alphabet())
	}

	return nil
}

// Parameters returns every trainable tensor in a stable order.
func (m *Model) Parameters() []*autodiff.Tensor {
	var params []*autodiff.Tensor
	for _, l := range m.layers {
		params = append(params, l.parameters()...)
	}
	return params
}

// Forward runs the model over a sequence of one-hot rows and returns the score
// tensor for every position, connected to the parameters for training.
func (m *Model) Forward(inputs [][]float64) ([]*autodiff.Tensor, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("empty input sequence")
	}

	xs := make([]*autodiff.Tensor, len(inputs))
	for i, row := range inputs {
		if len(row) != m.inputDim {
			return nil, fmt.Errorf("input row %d has width %d, want %d", i, len(row), m.inputDim)
		}
		xs[i] = autodiff.NewConstant(mat.NewDense(m.inputDim, 1, row), "features")
	}

	var err error
	for _, l := range m.layers {
		if xs, err = l.forward(xs); err != nil {
			return nil, err
		}
	}

	return xs, nil
}

// Evaluate runs a forward-only pass and returns the scores for every position.
func (m *Model) Evaluate(inputs [][]float64) ([][]float64, error) {
	outputs, err := m.Forward(inputs)
	if err != nil {
		return nil, err
	}

	scores := make([][]float64, len(outputs))
	for i, o := range outputs {
		scores[i] = mat.Col(nil, 0, o.Value)
	}

	return scores, nil
}

type savedModel struct {
	Version  int
	Alphabet string
	Config   ModelConfig
	Params   []savedParam
}

type savedParam struct {
	Name       string
	Rows, Cols int
	Data       []float64
}

// Save writes the model as gob.
func (m *Model) Save(w io.Writer) error {
	saved := savedModel{
		Version:  modelFormatVersion,
		Alphabet: m.alphabet,
		Config:   m.config,
	}

	for _, p := range m.Parameters() {
		r, c := p.Shape()
		saved.Params = append(saved.Params, savedParam{
			Name: p.Name,
			Rows: r,
			Cols: c,
			Data: mat.DenseCopyOf(p.Value).RawMatrix().Data,
		})
	}

	if err := gob.NewEncoder(w).Encode(saved); err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}

	return nil
}

// LoadModel rebuilds a model written by Save.
func LoadModel(r io.Reader) (*Model, error) {
	var saved savedModel
	if err := gob.NewDecoder(r).Decode(&saved); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}

	if saved.Version != modelFormatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", saved.Version)
	}

	m, err := NewModel(saved.Alphabet, saved.Config)
	if err != nil {
		return nil, err
	}

	values := make(map[string]savedParam, len(saved.Params))
	for _, p := range saved.Params {
		values[p.Name] = p
	}

	for _, p := range m.Parameters() {
		sp, ok := values[p.Name]
		if !ok {
			return nil, fmt.Errorf("model is missing parameter %s", p.Name)
		}

		r, c := p.Shape()
		if sp.Rows != r || sp.Cols != c || len(sp.Data) != r*c {
			return nil, fmt.Errorf("parameter %s has shape %dx%d, want %dx%d", p.Name, sp.Rows, sp.Cols, r, c)
		}

		p.Value.Copy(mat.NewDense(r, c, sp.Data))
	}

	return m, nil
}
