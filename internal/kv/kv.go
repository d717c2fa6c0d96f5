// Package kv provides the durable slot storage used for notes and preferences.
//
// A slot is a named key holding one JSON document that is always read and
// written wholesale. Backends are selected by URL: a bare path or file://
// directory, sqlite://path, or redis://host.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when a slot has never been written.
var ErrNotFound = errors.New("kv: slot not found")

// Store reads and writes whole slots.
type Store interface {
	Get(ctx context.Context, slot string) ([]byte, error)
	Put(ctx context.Context, slot string, payload []byte) error
	Close() error
}

// Watcher is implemented by backends that can report writes made by other
// processes. The returned channel receives a value after each observed write
// and is closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, slot string) (<-chan struct{}, error)
}

// Open builds a Store from a storage URL.
func Open(ctx context.Context, url string) (Store, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return nil, errors.New("kv: storage url is empty")
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return NewRedisStore(ctx, url)
	case strings.HasPrefix(url, "file://"):
		return NewFileStore(strings.TrimPrefix(url, "file://"))
	case strings.Contains(url, "://"):
		return nil, fmt.Errorf("kv: unsupported storage url %q", url)
	default:
		return NewFileStore(url)
	}
}

func validateSlot(slot string) error {
	if strings.TrimSpace(slot) == "" {
		return errors.New("kv: slot name is empty")
	}
	if strings.ContainsAny(slot, `/\`) || strings.Contains(slot, "..") {
		return fmt.Errorf("kv: invalid slot name %q", slot)
	}
	return nil
}
