package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/folder-search/pkg/catalog"
	"github.com/0xmhha/folder-search/pkg/filelock"
	"github.com/0xmhha/folder-search/pkg/logger"
	"github.com/0xmhha/folder-search/pkg/pathstore"
)

const (
	stateFile = "state.db"
	lockFile  = "store.lock"
)

// store implements the Store interface.
type store struct {
	dir    string
	db     *bolt.DB
	lock   *filelock.FileLock
	logger logger.Logger

	mu     sync.Mutex
	closed bool
}

// New opens the store in cfg.Dir, creating the directory and state.db if needed.
func New(cfg Config, log logger.Logger) (Store, error) {
	if cfg.Dir == "" {
		return nil, ErrEmptyDir
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	dir, err := pathstore.Normalize(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("invalid store directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, stateFile), 0o600, &bolt.Options{
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketRoots)
		return createErr
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization error", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to create roots bucket: %w", err)
	}

	log = log.With("component", "store")
	log.Info("store opened", "dir", dir)

	return &store{
		dir:    dir,
		db:     db,
		lock:   filelock.NewFileLock(filepath.Join(dir, lockFile)),
		logger: log,
	}, nil
}

// CatalogPath implements Store.CatalogPath.
func (s *store) CatalogPath(root string) string {
	return filepath.Join(s.dir, "cache_"+pathstore.Hash(pathstore.MustNormalize(root))+".bin")
}

// Save implements Store.Save.
func (s *store) Save(cat *catalog.Catalog) error {
	if !cat.Sealed() {
		return fmt.Errorf("%w: %v", ErrStorageFailure, catalog.ErrNotSealed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release store lock", "error", err)
		}
	}()

	builtAt, entries := cat.Snapshot()
	path := s.CatalogPath(cat.Root())

	err := filelock.AtomicWriteFunc(path, func(w io.Writer) error {
		return encodeCatalog(w, cat.Root(), builtAt, entries)
	})
	if err != nil {
		s.logger.Error("failed to save catalog", "root", cat.Root(), "error", err)
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	s.logger.Debug("catalog saved", "root", cat.Root(), "entries", len(entries), "path", path)
	return nil
}

// Load implements Store.Load.
func (s *store) Load(root string) (*catalog.Catalog, error) {
	cat, err := catalog.New(root)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	path := s.CatalogPath(cat.Root())
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}

	builtAt, entries, err := decodeCatalog(f, cat.Root())
	if closeErr := f.Close(); closeErr != nil {
		s.logger.Warn("failed to close catalog file", "path", path, "error", closeErr)
	}

	switch {
	case errors.Is(err, errMismatch):
		s.logger.Info("ignoring catalog file for another version or root", "path", path)
		return nil, nil
	case err != nil:
		return nil, s.discard(path, err)
	}

	if err := cat.Restore(builtAt, entries); err != nil {
		return nil, s.discard(path, fmt.Errorf("%w: %v", ErrCatalogCorrupt, err))
	}

	s.logger.Debug("catalog loaded", "root", cat.Root(), "entries", len(entries))
	return cat, nil
}

// discard removes a corrupt catalog file and returns cause.
func (s *store) discard(path string, cause error) error {
	s.logger.Warn("discarding corrupt catalog file", "path", path, "error", cause)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("failed to remove corrupt catalog file", "path", path, "error", err)
	}
	return cause
}

// Invalidate implements Store.Invalidate.
func (s *store) Invalidate(root string) error {
	normalized, err := pathstore.Normalize(root)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := os.Remove(s.CatalogPath(normalized)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	if err := s.deleteState(pathstore.Hash(normalized)); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	s.logger.Info("catalog invalidated", "root", normalized)
	return nil
}

// Close implements Store.Close.
func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close state database: %w", err)
	}

	s.logger.Info("store closed")
	return nil
}
