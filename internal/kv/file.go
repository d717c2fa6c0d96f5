package kv

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const slotSuffix = ".json"

// FileStore keeps each slot in <dir>/<slot>.json.
type FileStore struct {
	dir string

	mu      sync.Mutex
	written map[string][sha256.Size]byte
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("kv: file store directory is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("kv: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create %s: %w", abs, err)
	}
	return &FileStore{dir: abs, written: map[string][sha256.Size]byte{}}, nil
}

// Dir reports the directory backing the store.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path reports the file that holds slot.
func (s *FileStore) Path(slot string) string {
	return filepath.Join(s.dir, slot+slotSuffix)
}

func (s *FileStore) Get(_ context.Context, slot string) ([]byte, error) {
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(slot))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: read %s: %w", slot, err)
	}
	return data, nil
}

// Put writes through a temporary file in the same directory so readers never
// observe a half-written slot.
func (s *FileStore) Put(_ context.Context, slot string, payload []byte) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+slot+"-*.tmp")
	if err != nil {
		return fmt.Errorf("kv: create temp for %s: %w", slot, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kv: write %s: %w", slot, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kv: close %s: %w", slot, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(tmpName, s.Path(slot)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kv: commit %s: %w", slot, err)
	}
	s.written[slot] = sha256.Sum256(payload)
	return nil
}

// ownWrite reports whether the slot file still holds the payload this store
// last wrote.
func (s *FileStore) ownWrite(slot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.written[slot]
	if !ok {
		return false
	}
	data, err := os.ReadFile(s.Path(slot))
	return err == nil && sha256.Sum256(data) == sum
}

func (s *FileStore) Close() error {
	return nil
}

// Watch signals writes to slot made by other processes or other FileStore
// values. Writes made through s are skipped. It observes the directory
// because Put replaces the file by rename, which drops per-file watches.
func (s *FileStore) Watch(ctx context.Context, slot string) (<-chan struct{}, error) {
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("kv: create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("kv: watch %s: %w", s.dir, err)
	}

	target := s.Path(slot)
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if s.ownWrite(slot) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}
