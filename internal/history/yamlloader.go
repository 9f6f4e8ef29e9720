package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// yamlFile is the on-disk document structure.
type yamlFile struct {
	Commands []CommandPair `yaml:"commands"`
}

// FileStore is a [Store] backed by a YAML file. The file is read once on
// first use and cached; the surrounding application rewrites the file and
// restarts the client to pick up server-side corrections.
type FileStore struct {
	path string

	once  sync.Once
	pairs []CommandPair
	err   error
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a store reading from the YAML file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// List implements [Store].
func (s *FileStore) List(_ context.Context) ([]CommandPair, error) {
	s.once.Do(func() {
		f, err := os.Open(s.path)
		if err != nil {
			s.err = fmt.Errorf("history: open %q: %w", s.path, err)
			return
		}
		defer f.Close()
		s.pairs, s.err = decodePairs(f)
		if s.err != nil {
			s.err = fmt.Errorf("history: parse %q: %w", s.path, s.err)
		}
	})
	return s.pairs, s.err
}

// decodePairs parses a command-history YAML document and validates entries.
func decodePairs(r io.Reader) ([]CommandPair, error) {
	var doc yamlFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	for i, p := range doc.Commands {
		if p.UserCommand == "" {
			return nil, fmt.Errorf("commands[%d].user_command is required", i)
		}
		if p.Action.Name == "" {
			return nil, fmt.Errorf("commands[%d].action.name is required", i)
		}
	}
	return doc.Commands, nil
}
