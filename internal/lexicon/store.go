package lexicon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const fileVersion = 1

type fileV1 struct {
	Version   int     `json:"version"`
	UpdatedAt string  `json:"updated_at"`
	Entries   []Entry `json:"entries"`
	Stats     Stats   `json:"stats"`
}

// Save writes the learned layer to path. Defaults are never written.
func (l *Lexicon) Save(path string) error {
	if path == "" {
		return nil
	}
	f := fileV1{
		Version:   fileVersion,
		UpdatedAt: l.now().UTC().Format(time.RFC3339Nano),
		Entries:   l.Learned(),
		Stats:     l.Stats(),
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, b)
}

// Load replaces the learned layer with the contents of path. A missing file
// leaves the lexicon untouched.
func (l *Lexicon) Load(path string) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var f fileV1
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse lexicon file: %w", err)
	}
	if f.Version != fileVersion {
		return fmt.Errorf("lexicon file version %d unsupported", f.Version)
	}
	learned := make(map[string]Entry, len(f.Entries))
	for _, e := range f.Entries {
		key := normalize(e.Phrase)
		if key == "" || len(e.Commands) == 0 {
			continue
		}
		e.Phrase = key
		learned[key] = e
	}
	l.mu.Lock()
	l.learned = learned
	l.stats = f.Stats
	l.mu.Unlock()
	return nil
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
