package watchlist

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

type fileData struct {
	Symbols []string `json:"symbols"`
}

// FileStore keeps the watchlist in a JSON file: {"symbols": [...]}
type FileStore struct {
	path    string
	mu      sync.Mutex
	symbols []string
}

// NewFileStore loads path, seeding it with defaults when the file is absent
func NewFileStore(path string, defaults []string) (*FileStore, error) {
	fs := &FileStore{path: path}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		for _, d := range defaults {
			s, err := Normalize(d)
			if err != nil {
				return nil, err
			}
			if !contains(fs.symbols, s) {
				fs.symbols = append(fs.symbols, s)
			}
		}
		if err := fs.save(fs.symbols); err != nil {
			return nil, err
		}
		return fs, nil
	case err != nil:
		return nil, errors.Wrap(err, "read watchlist")
	}

	var fd fileData
	if err := sonic.Unmarshal(data, &fd); err != nil {
		return nil, errors.Wrapf(err, "parse watchlist %s", path)
	}
	for _, raw := range fd.Symbols {
		s, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		if !contains(fs.symbols, s) {
			fs.symbols = append(fs.symbols, s)
		}
	}
	return fs, nil
}

func (f *FileStore) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.symbols...), nil
}

func (f *FileStore) Add(ctx context.Context, symbol string) error {
	s, err := Normalize(symbol)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if contains(f.symbols, s) {
		return errors.Wrap(ErrDuplicate, s)
	}
	next := append(append([]string(nil), f.symbols...), s)
	if err := f.save(next); err != nil {
		return err
	}
	f.symbols = next
	return nil
}

func (f *FileStore) Remove(ctx context.Context, symbol string) error {
	s, err := Normalize(symbol)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !contains(f.symbols, s) {
		return errors.Wrap(ErrNotFound, s)
	}
	if len(f.symbols) <= 1 {
		return ErrLastSymbol
	}

	next := make([]string, 0, len(f.symbols)-1)
	for _, x := range f.symbols {
		if x != s {
			next = append(next, x)
		}
	}
	if err := f.save(next); err != nil {
		return err
	}
	f.symbols = next
	return nil
}

// save replaces the file atomically via rename
func (f *FileStore) save(symbols []string) error {
	data, err := sonic.ConfigStd.MarshalIndent(fileData{Symbols: symbols}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode watchlist")
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create watchlist dir")
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write watchlist")
	}
	return errors.Wrap(os.Rename(tmp, f.path), "replace watchlist")
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
