package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

// Store keeps uploaded model files in a single directory. Stored
// names carry a unique prefix so concurrent uploads of the same file
// never collide.
type Store struct {
	logger zerolog.Logger
	dir    string
}

func New(dir string, logger *zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create uploads dir: %w", err)
	}
	return &Store{
		logger: logger.With().Str("component", "disk-store").Logger(),
		dir:    dir,
	}, nil
}

func (s *Store) Dir() string { return s.dir }

// Save writes the uploaded content under a uniquely prefixed name
// and returns that stored name.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", ErrInvalidName
	}
	stored := uuid.NewString()[:8] + "-" + base

	f, err := os.Create(filepath.Join(s.dir, stored))
	if err != nil {
		return "", fmt.Errorf("cannot create file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err = io.Copy(f, r); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("cannot write file: %w", err)
	}
	s.logger.Debug().Str("name", stored).Msg("file stored")
	return stored, nil
}

// List returns the stored model file names in lexical order. Files
// that are not .glb/.gltf are ignored.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read uploads dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsModelFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes one stored file. Names containing path separators
// are rejected, traversal out of the uploads dir is not a thing.
func (s *Store) Delete(name string) error {
	if name == "" || name != filepath.Base(name) {
		return ErrInvalidName
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("cannot delete file: %w", err)
	}
	s.logger.Debug().Str("name", name).Msg("file deleted")
	return nil
}

// DeleteAll removes every stored model file and reports how many
// were removed.
func (s *Store) DeleteAll() (int, error) {
	names, err := s.List()
	if err != nil {
		return 0, err
	}
	var deleted int
	for _, name := range names {
		if err = os.Remove(filepath.Join(s.dir, name)); err != nil {
			return deleted, fmt.Errorf("cannot delete file: %w", err)
		}
		deleted++
	}
	s.logger.Debug().Int("count", deleted).Msg("all files deleted")
	return deleted, nil
}

// IsModelFile reports whether the name has a supported model
// extension.
func IsModelFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".glb", ".gltf":
		return true
	}
	return false
}
