package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/shiyuan/internal/notes"
	"github.com/csheth/shiyuan/internal/poems"
	"github.com/csheth/shiyuan/internal/theme"
)

func loadCatalogJob(catalog *poems.Catalog, store *notes.Store) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		loaded := catalog.Load(ctx)
		msg := catalogLoadedMsg{poems: loaded, fallback: !catalog.Loaded()}
		if msg.fallback || store == nil {
			return msg, nil
		}
		rekeyed, err := store.Rekey(ctx, catalog.TitleIndex())
		msg.rekeyed = rekeyed
		return msg, err
	}
}

func listNotesJob(store *notes.Store, poemID string) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		return notesResultMsg{poemID: poemID, notes: store.ListForPoem(ctx, poemID)}, nil
	}
}

func addNoteJob(store *notes.Store, poemID, content string) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		_, ok, err := store.Add(ctx, poemID, content)
		msg := notesResultMsg{poemID: poemID, err: err}
		if ok {
			msg.action = "added"
		}
		msg.notes = store.ListForPoem(ctx, poemID)
		return msg, err
	}
}

func deleteNoteJob(store *notes.Store, poemID string, index int) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		err := store.Delete(ctx, poemID, index)
		msg := notesResultMsg{poemID: poemID, action: "deleted", err: err}
		msg.notes = store.ListForPoem(ctx, poemID)
		return msg, err
	}
}

func exportNotesJob(store *notes.Store, path string) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		count, err := exportNotes(ctx, store, path)
		return exportResultMsg{path: path, count: count, err: err}, err
	}
}

func exportNotes(ctx context.Context, store *notes.Store, path string) (int, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := store.ExportAll(ctx, file); err != nil {
		_ = file.Close()
		return 0, err
	}
	if err := file.Close(); err != nil {
		return 0, err
	}
	return len(store.All(ctx)), nil
}

// importNotesJob replaces the collection from path and rekeys title-keyed
// records against the loaded catalog. The notes of openPoemID, when set, are
// returned so the open poem can refresh.
func importNotesJob(store *notes.Store, catalog *poems.Catalog, path, openPoemID string) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		file, err := os.Open(path)
		if err != nil {
			return importResultMsg{path: path, err: err}, err
		}
		defer file.Close()
		if err := store.ImportAll(ctx, file); err != nil {
			return importResultMsg{path: path, err: err}, err
		}
		msg := importResultMsg{path: path, count: len(store.All(ctx)), poemID: openPoemID}
		if catalog != nil && catalog.Loaded() {
			rekeyed, err := store.Rekey(ctx, catalog.TitleIndex())
			if err != nil {
				msg.err = fmt.Errorf("migrate imported notes: %w", err)
				return msg, msg.err
			}
			msg.rekeyed = rekeyed
		}
		if openPoemID != "" {
			msg.notes = store.ListForPoem(ctx, openPoemID)
		}
		return msg, nil
	}
}

func saveThemeJob(pref *theme.Preference, chosen theme.Theme) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		err := pref.Save(ctx, chosen)
		return themeSavedMsg{name: chosen.Name, err: err}, err
	}
}

// watchNotesCmd blocks until the note slot changes outside this process.
func watchNotesCmd(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return notesChangedMsg{changes: changes}
	}
}

func subscribeNotes(ctx context.Context, store *notes.Store) (<-chan struct{}, error) {
	if store == nil {
		return nil, nil
	}
	changes, err := store.Changes(ctx)
	if errors.Is(err, notes.ErrWatchUnsupported) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("watch notes: %w", err)
	}
	return changes, nil
}
