package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// journalFile holds the on-disk journal layout
type journalFile struct {
	Records []*ChangeRecord `yaml:"records"`
}

// Journal persists change records to a YAML file so history and rollback
// survive across process runs
type Journal struct {
	mu   sync.Mutex
	path string
}

// NewJournal creates a journal backed by the given file path
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the journal file location
func (j *Journal) Path() string {
	return j.path
}

// Load reads all persisted records. A missing file is an empty journal,
// not an error.
func (j *Journal) Load() ([]*ChangeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal %s: %w", j.path, err)
	}

	var file journalFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse journal %s: %w", j.path, err)
	}
	return file.Records, nil
}

// Save replaces the journal contents with the given records. The write
// goes through a temp file and rename so a crash cannot truncate history.
func (j *Journal) Save(records []*ChangeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	data, err := yaml.Marshal(journalFile{Records: records})
	if err != nil {
		return fmt.Errorf("failed to encode journal: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace journal: %w", err)
	}
	return nil
}
