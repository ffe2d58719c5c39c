package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

var _ Store = (*FileStore)(nil)

// FileStore persists the session slots as a single JSON document on disk,
// the desktop analogue of the web client's browser storage. Every write
// rewrites the whole document through a rename so a crash mid-write leaves
// either the old or the new document, never a torn one.
type FileStore struct {
	path   string
	values map[string]string
	lock   sync.RWMutex
}

// NewFileStore opens (or creates) the store backed by the given file path.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] read")
	}
	if len(data) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(data, &fs.values); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] corrupt store file")
	}
	return fs, nil
}

func (fs *FileStore) Get(_ context.Context, key string) (string, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	v, ok := fs.values[key]
	if !ok {
		return "", ErrAbsent
	}
	return v, nil
}

func (fs *FileStore) Set(_ context.Context, key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.values[key] = value
	return fs.flush()
}

func (fs *FileStore) Clear(_ context.Context, keys ...string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	for _, k := range keys {
		delete(fs.values, k)
	}
	return fs.flush()
}

// flush writes the document to a sibling temp file and renames it into
// place. Callers hold the write lock.
func (fs *FileStore) flush() error {
	data, err := json.Marshal(fs.values)
	if err != nil {
		return errors.Wrap(err, "[FileStore.flush] marshal")
	}

	dir := filepath.Dir(fs.path)
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return errors.Wrap(err, "[FileStore.flush] create temp")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.flush] write")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.flush] close")
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.flush] rename")
	}
	return nil
}
