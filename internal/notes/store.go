// Package notes persists poem annotations as a single JSON array in a kv slot.
//
// Reads never fail: a missing or corrupt slot is an empty collection. Every
// write replaces the whole collection.
package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/csheth/shiyuan/internal/kv"
)

// DefaultSlot names the kv slot holding the note collection.
const DefaultSlot = "poemNotes"

var (
	// ErrNoteNotFound is returned by Delete for an index outside the poem's notes.
	ErrNoteNotFound = errors.New("note not found")
	// ErrInvalidImport wraps every rejected import.
	ErrInvalidImport = errors.New("invalid note import")
	// ErrWatchUnsupported is returned by Changes when the backend cannot watch.
	ErrWatchUnsupported = errors.New("note storage does not support change notifications")
)

// Store is the note collection.
type Store struct {
	backend kv.Store
	slot    string
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithSlot overrides DefaultSlot.
func WithSlot(slot string) Option {
	return func(s *Store) {
		if slot != "" {
			s.slot = slot
		}
	}
}

// WithLogger sets the logger used for recovered read failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for note timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns a Store over backend.
func NewStore(backend kv.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		slot:    DefaultSlot,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// All returns the whole persisted collection in storage order.
func (s *Store) All(ctx context.Context) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// ListForPoem returns the notes of one poem in storage order.
func (s *Store) ListForPoem(ctx context.Context, poemID string) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []Note{}
	for _, note := range s.load(ctx) {
		if note.PoemID == poemID {
			result = append(result, note)
		}
	}
	return result
}

// Add appends a note for poemID. Blank content is ignored and reported with
// ok=false; err is reserved for storage failures.
func (s *Store) Add(ctx context.Context, poemID, content string) (note Note, ok bool, err error) {
	if strings.TrimSpace(content) == "" {
		return Note{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	note = newNote(poemID, content, s.now())
	all := append(s.load(ctx), note)
	if err := s.save(ctx, all); err != nil {
		return Note{}, false, err
	}
	return note, true, nil
}

// Delete removes the index-th note of poemID's notes, counted in the same
// order ListForPoem returns them.
func (s *Store) Delete(ctx context.Context, poemID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load(ctx)
	position := -1
	seen := 0
	for i, note := range all {
		if note.PoemID != poemID {
			continue
		}
		if seen == index {
			position = i
			break
		}
		seen++
	}
	if index < 0 || position < 0 {
		return fmt.Errorf("%w: poem %s index %d", ErrNoteNotFound, poemID, index)
	}
	remaining := append(all[:position:position], all[position+1:]...)
	return s.save(ctx, remaining)
}

// ExportAll writes the entire collection as an indented JSON array.
func (s *Store) ExportAll(ctx context.Context, w io.Writer) error {
	data, err := json.MarshalIndent(s.All(ctx), "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ImportAll replaces the collection with the notes read from r. Invalid input
// leaves the stored collection untouched.
func (s *Store) ImportAll(ctx context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	imported, err := parseImport(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, imported)
}

// Rekey rewrites notes whose poemId is a key of mapping to the mapped value.
// It migrates collections keyed by title to poem identities.
func (s *Store) Rekey(ctx context.Context, mapping map[string]string) (int, error) {
	if len(mapping) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load(ctx)
	changed := 0
	for i := range all {
		if id, ok := mapping[all[i].PoemID]; ok && id != all[i].PoemID {
			all[i].PoemID = id
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.save(ctx, all); err != nil {
		return 0, err
	}
	return changed, nil
}

// Changes signals writes made to the collection by other processes.
func (s *Store) Changes(ctx context.Context) (<-chan struct{}, error) {
	watcher, ok := s.backend.(kv.Watcher)
	if !ok {
		return nil, ErrWatchUnsupported
	}
	return watcher.Watch(ctx, s.slot)
}

func (s *Store) load(ctx context.Context) []Note {
	data, err := s.backend.Get(ctx, s.slot)
	if errors.Is(err, kv.ErrNotFound) {
		return []Note{}
	}
	if err != nil {
		s.logger.Warn("note storage unreadable, treating as empty", "slot", s.slot, "error", err)
		return []Note{}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Note{}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("note storage corrupt, treating as empty", "slot", s.slot, "error", err)
		return []Note{}
	}
	notes := make([]Note, 0, len(entries))
	for i, raw := range entries {
		note, err := decodeNote(raw)
		if err != nil {
			s.logger.Warn("dropping malformed note record", "slot", s.slot, "index", i, "error", err)
			continue
		}
		notes = append(notes, note)
	}
	return notes
}

func (s *Store) save(ctx context.Context, notes []Note) error {
	if notes == nil {
		notes = []Note{}
	}
	data, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, s.slot, data); err != nil {
		return fmt.Errorf("persist notes: %w", err)
	}
	return nil
}

func parseImport(data []byte) ([]Note, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrInvalidImport)
	}
	imported := make([]Note, 0, len(entries))
	for i, raw := range entries {
		note, err := decodeNote(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidImport, i, err)
		}
		imported = append(imported, note)
	}
	return imported, nil
}

func decodeNote(raw json.RawMessage) (Note, error) {
	var note Note
	if err := json.Unmarshal(raw, &note); err != nil {
		return Note{}, err
	}
	if note.PoemID == "" {
		return Note{}, errors.New("missing poemId")
	}
	return note, nil
}
