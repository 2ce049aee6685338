package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FSStore is a filesystem-based content-addressable store.
// Objects live in a two-level layout:
//
//	.docgen/objects/
//	  ab/
//	    cd1234... (first 2 chars = subdir, rest = filename)
type FSStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFSStore creates a new filesystem-based object store.
func NewFSStore(basePath string) (*FSStore, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", basePath, err)
	}
	return &FSStore{basePath: basePath}, nil
}

// Put stores an object and returns its content hash. Existing objects are not
// rewritten.
func (fs *FSStore) Put(obj *Object) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	hash := obj.Hash
	if hash == "" {
		h := sha256.Sum256(obj.Data)
		hash = hex.EncodeToString(h[:])
	}

	objectPath := fs.objectPath(hash)
	if _, err := os.Stat(objectPath); err == nil {
		return hash, nil
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(objectPath, obj.Data, 0640); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}

	meta := obj.Metadata
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.Type = obj.Type
	if err := fs.writeMetadata(hash, meta); err != nil {
		return "", fmt.Errorf("write object metadata: %w", err)
	}

	return hash, nil
}

// Get retrieves an object by its content hash.
func (fs *FSStore) Get(hash string) (*Object, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(fs.objectPath(hash))
	if os.IsNotExist(err) {
		return nil, ErrNotFound{Hash: hash}
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}

	obj := &Object{Hash: hash, Data: data, Size: int64(len(data))}
	if meta, err := fs.readMetadata(hash); err == nil {
		obj.Metadata = meta
		obj.Type = meta.Type
	}
	return obj, nil
}

// Exists checks if an object with the given hash exists.
func (fs *FSStore) Exists(hash string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, err := os.Stat(fs.objectPath(hash))
	return err == nil
}

func (fs *FSStore) objectPath(hash string) string {
	if len(hash) < 3 {
		return filepath.Join(fs.basePath, hash)
	}
	return filepath.Join(fs.basePath, hash[:2], hash[2:])
}

func (fs *FSStore) metadataPath(hash string) string {
	return fs.objectPath(hash) + ".meta"
}

func (fs *FSStore) writeMetadata(hash string, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(fs.metadataPath(hash), data, 0640)
}

func (fs *FSStore) readMetadata(hash string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(fs.metadataPath(hash))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}
