package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLatestCheckpoint(t *testing.T) {
	tests := []struct {
		name     string
		names    []string
		prefix   string
		want     string
		revision uint64
		found    bool
	}{
		{
			name:     "highest revision wins",
			names:    []string{"m_epoch3.dnn", "m_epoch10.dnn", "x_epoch99.dnn"},
			prefix:   "m",
			want:     "m_epoch10.dnn",
			revision: 10,
			found:    true,
		},
		{
			name:   "malformed names",
			names:  []string{"m_epoch.dnn", "m_epochx.dnn", "m_epoch5.dnn.bak", "mm_epoch7.dnn", "m_epoch8.onnx", "m_epoch-2.dnn"},
			prefix: "m",
		},
		{
			name:   "zero revision",
			names:  []string{"m_epoch0.dnn", "m_epoch00.dnn"},
			prefix: "m",
		},
		{
			name:     "prefix is literal",
			names:    []string{"m.v1_epoch2.dnn", "mxv1_epoch9.dnn"},
			prefix:   "m.v1",
			want:     "m.v1_epoch2.dnn",
			revision: 2,
			found:    true,
		},
		{
			name:   "empty listing",
			prefix: "m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, revision, found := latestCheckpoint(tt.names, tt.prefix, "dnn")
			if name != tt.want || revision != tt.revision || found != tt.found {
				t.Errorf("got (%q, %d, %v), want (%q, %d, %v)", name, revision, found, tt.want, tt.revision, tt.found)
			}
		})
	}
}

func TestFindLatestMissingDirectory(t *testing.T) {
	_, found, err := FindLatest(filepath.Join(t.TempDir(), "missing"), "m", "dnn")
	if err != nil || found {
		t.Errorf("got found=%v err=%v, want not found and no error", found, err)
	}
}

func TestFindLatestIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "m_epoch50.dnn"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "m_epoch4.dnn"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	cp, found, err := FindLatest(dir, "m", "dnn")
	if err != nil || !found {
		t.Fatalf("FindLatest: found=%v err=%v", found, err)
	}
	if cp.Revision != 4 || cp.Path != filepath.Join(dir, "m_epoch4.dnn") {
		t.Errorf("got %+v", cp)
	}
}

func TestCheckpointManagerSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	v := testVocabulary(t, "abc", "abd")

	cm, err := NewCheckpointManager(dir, "m", "")
	if err != nil {
		t.Fatalf("NewCheckpointManager: %v", err)
	}
	if _, ok := cm.Latest(); ok || cm.Revision() != 0 {
		t.Fatalf("fresh manager reports revision %d", cm.Revision())
	}

	m := testModel(t, v, smallModelConfig())
	for want := 1; want <= 2; want++ {
		path, err := cm.Save(m)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if path != cm.Path(uint64(want)) {
			t.Errorf("saved to %s, want %s", path, cm.Path(uint64(want)))
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("checkpoint not written: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("directory holds %d entries, want 2 checkpoints and no temp files", len(entries))
	}

	cm, err = NewCheckpointManager(dir, "m", DefaultCheckpointExt)
	if err != nil {
		t.Fatal(err)
	}
	if cm.Revision() != 2 {
		t.Errorf("reopened revision = %d, want 2", cm.Revision())
	}
	if cm.NextRevision() != 3 {
		t.Error("NextRevision should continue after the latest checkpoint")
	}
}

func TestNewCheckpointManagerRequiresPrefix(t *testing.T) {
	if _, err := NewCheckpointManager(t.TempDir(), "", "dnn"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestOpenModel(t *testing.T) {
	dir := t.TempDir()
	v := testVocabulary(t, "abc", "abd")
	logger := quietLogger()

	cm, err := NewCheckpointManager(dir, "m", "")
	if err != nil {
		t.Fatal(err)
	}

	fresh, err := OpenModel(cm, v, smallModelConfig(), logger)
	if err != nil {
		t.Fatalf("OpenModel without checkpoint: %v", err)
	}
	if fresh.Alphabet() != v.Alphabet() {
		t.Errorf("fresh model alphabet %q, want %q", fresh.Alphabet(), v.Alphabet())
	}

	if _, err := cm.Save(fresh); err != nil {
		t.Fatal(err)
	}

	cm, err = NewCheckpointManager(dir, "m", "")
	if err != nil {
		t.Fatal(err)
	}

	// a different config must not matter once a checkpoint exists
	loaded, err := OpenModel(cm, v, ModelConfig{Layers: 3, Hidden: 9}, logger)
	if err != nil {
		t.Fatalf("OpenModel with checkpoint: %v", err)
	}
	if loaded.Config() != fresh.Config() {
		t.Errorf("loaded config %+v, want %+v", loaded.Config(), fresh.Config())
	}

	other := testVocabulary(t, "xyz")
	if _, err := OpenModel(cm, other, smallModelConfig(), logger); !errors.Is(err, ErrAlphabetMismatch) {
		t.Errorf("mismatched corpus error = %v, want ErrAlphabetMismatch", err)
	}
}
