package newsclass

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactStore persists named binary artifacts such as checkpoints and the
// vocabulary. Naming is the caller's concern.
type ArtifactStore interface {
	Save(name string, write func(io.Writer) error) error
	Open(name string) (io.ReadCloser, error)
}

// DirStore keeps artifacts as files under a directory. Writes go to a
// temporary file that is renamed into place, so readers never see a partial
// artifact.
type DirStore struct {
	Dir string
}

// NewDirStore creates dir if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("newsclass: artifact dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &DirStore{Dir: dir}, nil
}

// Path returns the file path an artifact name maps to.
func (s *DirStore) Path(name string) string {
	return filepath.Join(s.Dir, filepath.Base(name))
}

// Save writes an artifact atomically.
func (s *DirStore) Save(name string, write func(io.Writer) error) error {
	path := s.Path(name)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(tmp), err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Open returns a reader for a previously saved artifact.
func (s *DirStore) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", name, err)
	}
	return f, nil
}

// Artifact names used by a training run, all derived from the run name.
func BestCheckpointName(run string) string  { return run + "_best_val_loss.ckpt" }
func FinalCheckpointName(run string) string { return run + "_final.ckpt" }
func VocabularyName(run string) string      { return run + "_vocab.json" }

// RestoreCheckpoint loads a saved checkpoint into model.
func RestoreCheckpoint(store ArtifactStore, name string, model TrainableClassifier) error {
	rc, err := store.Open(name)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := model.Restore(rc); err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	return nil
}
