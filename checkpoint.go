package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

const DefaultCheckpointExt = "dnn"

// Checkpoint is a persisted model revision on disk.
type Checkpoint struct {
	Path     string
	Revision uint64
}

// CheckpointManager tracks model revisions named {prefix}_epoch{revision}.{ext}
// inside a directory.
type CheckpointManager struct {
	dir    string
	prefix string
	ext    string

	latest   Checkpoint
	found    bool
	revision uint64
}

// NewCheckpointManager scans dir once and seeds the revision counter from the
// newest matching checkpoint.
func NewCheckpointManager(dir, prefix, ext string) (*CheckpointManager, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: empty model prefix", ErrInvalidConfig)
	}

	if ext == "" {
		ext = DefaultCheckpointExt
	}

	latest, found, err := FindLatest(dir, prefix, ext)
	if err != nil {
		return nil, err
	}

	return &CheckpointManager{
		dir:      dir,
		prefix:   prefix,
		ext:      ext,
		latest:   latest,
		found:    found,
		revision: latest.Revision,
	}, nil
}

// Latest returns the checkpoint found at start-up, if any.
func (cm *CheckpointManager) Latest() (Checkpoint, bool) {
	return cm.latest, cm.found
}

// Revision returns the most recently used revision number.
func (cm *CheckpointManager) Revision() uint64 {
	return cm.revision
}

// NextRevision advances the revision counter.
func (cm *CheckpointManager) NextRevision() uint64 {
	cm.revision++
	return cm.revision
}

// Path returns the file name used for a revision.
func (cm *CheckpointManager) Path(revision uint64) string {
	return filepath.Join(cm.dir, fmt.Sprintf("%s_epoch%d.%s", cm.prefix, revision, cm.ext))
}

// Save persists the model as the next revision. The file is written under a
// temporary name first so a crash never leaves a truncated checkpoint behind.
func (cm *CheckpointManager) Save(m *Model) (string, error) {
	if err := os.MkdirAll(cm.dir, 0755); err != nil {
		return "", fmt.Errorf("creating model directory: %w", err)
	}

	tmp, err := os.CreateTemp(cm.dir, cm.prefix+"_*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := m.Save(tmp); err != nil {
		tmp.Close()
		return "", err
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}

	path := cm.Path(cm.NextRevision())
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("renaming checkpoint: %w", err)
	}

	return path, nil
}

// OpenModel loads the latest checkpoint when there is one and builds a fresh
// model otherwise. A loaded model must share the vocabulary's alphabet.
func OpenModel(cm *CheckpointManager, v *Vocabulary, cfg ModelConfig, logger *slog.Logger) (*Model, error) {
	latest, ok := cm.Latest()
	if !ok {
		logger.Info("No checkpoint found, creating new model",
			slog.Int("layers", cfg.Layers), slog.Int("hidden", cfg.Hidden), slog.Int("chars", v.CharCount()))
		return NewModel(v.Alphabet(), cfg)
	}

	m, err := LoadModelFile(latest.Path)
	if err != nil {
		return nil, err
	}

	if err := m.CheckVocabulary(v); err != nil {
		return nil, fmt.Errorf("%s: %w", latest.Path, err)
	}

	logger.Info("Loaded model", slog.String("file", filepath.Base(latest.Path)), slog.Uint64("revision", latest.Revision))
	return m, nil
}

func LoadModelFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()

	m, err := LoadModel(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return m, nil
}

// FindLatest returns the highest non-zero revision in dir for prefix. A missing
// directory is reported as no checkpoint.
func FindLatest(dir, prefix, ext string) (Checkpoint, bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("listing %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}

	name, revision, ok := latestCheckpoint(names, prefix, ext)
	if !ok {
		return Checkpoint{}, false, nil
	}

	return Checkpoint{Path: filepath.Join(dir, name), Revision: revision}, true, nil
}

// latestCheckpoint picks the name with the largest revision. Names that do not
// match the pattern, or whose revision is zero or does not parse, are skipped.
func latestCheckpoint(names []string, prefix, ext string) (string, uint64, bool) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_epoch(\d+)\.` + regexp.QuoteMeta(ext) + `$`)

	var best string
	var revision uint64
	for _, name := range names {
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}

		rev, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil || rev <= revision {
			continue
		}

		best, revision = name, rev
	}

	return best, revision, revision > 0
}
