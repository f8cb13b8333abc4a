package approvals

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"corporatepay-reconciliation/pkg/errors"
)

const fileBackend = "file"

type fileDocument struct {
	Version int            `json:"version"`
	Items   []ApprovalItem `json:"items"`
}

// FileStore keeps the whole inbox as one JSON document. Every Put rewrites
// the document through a temp file and a rename, so readers see either the
// old or the new version.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file is created on the
// first Put; a missing file reads as an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "approvals.path", path, nil).
			WithSuggestion("set approvals.path to the JSON file that holds the inbox")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, fileBackend, "open", err).
			WithContext("path", path)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) load() (map[string]ApprovalItem, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]ApprovalItem{}, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, fileBackend, "read", err).
			WithContext("path", f.path)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.StorageError(errors.CodeStoreCorrupted, fileBackend, "decode", err).
			WithContext("path", f.path).
			WithSuggestion("restore the file from a backup or delete it to reseed the inbox")
	}

	items := make(map[string]ApprovalItem, len(doc.Items))
	for _, item := range doc.Items {
		items[item.ID] = item
	}
	return items, nil
}

func (f *FileStore) save(items map[string]ApprovalItem) error {
	doc := fileDocument{Version: 1, Items: make([]ApprovalItem, 0, len(items))}
	for _, item := range items {
		doc.Items = append(doc.Items, item)
	}
	sortItems(doc.Items)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.StorageError(errors.CodeUnexpectedError, fileBackend, "encode", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.StorageError(errors.CodeStoreUnavailable, fileBackend, "write", err).
			WithContext("path", f.path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.StorageError(errors.CodeStoreUnavailable, fileBackend, "write", err).
			WithContext("path", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.StorageError(errors.CodeStoreUnavailable, fileBackend, "sync", err).
			WithContext("path", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.StorageError(errors.CodeStoreUnavailable, fileBackend, "write", err).
			WithContext("path", tmpName)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.StorageError(errors.CodeStoreUnavailable, fileBackend, "rename", fmt.Errorf("%s -> %s: %w", tmpName, f.path, err))
	}
	return nil
}

func (f *FileStore) Get(_ context.Context, id string) (ApprovalItem, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return ApprovalItem{}, false, err
	}
	item, ok := items[id]
	return item, ok, nil
}

func (f *FileStore) List(_ context.Context) ([]ApprovalItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return nil, err
	}
	list := make([]ApprovalItem, 0, len(items))
	for _, item := range items {
		list = append(list, item)
	}
	sortItems(list)
	return list, nil
}

func (f *FileStore) Put(_ context.Context, item ApprovalItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return err
	}
	items[item.ID] = item
	return f.save(items)
}

func (f *FileStore) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (f *FileStore) Close() error { return nil }
