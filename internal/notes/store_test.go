package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csheth/shiyuan/internal/kv"
)

func newFileBackend(t *testing.T) *kv.FileStore {
	t.Helper()
	backend, err := kv.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return backend
}

func newTestStore(t *testing.T, backend kv.Store) *Store {
	t.Helper()
	clock := time.Date(2026, 3, 1, 8, 0, 0, 123456789, time.FixedZone("CST", 8*3600))
	return NewStore(backend,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
}

func contents(list []Note) []string {
	out := make([]string, 0, len(list))
	for _, note := range list {
		out = append(out, note.Content)
	}
	return out
}

func TestAddAppendsTrimmedNote(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFileBackend(t))

	note, ok, err := store.Add(ctx, "p1", "  床前明月光  \n")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "床前明月光", note.Content)
	assert.Equal(t, "p1", note.PoemID)
	assert.NotEmpty(t, note.ID)
	assert.Equal(t, time.UTC, note.CreatedAt.Location())
	assert.Zero(t, note.CreatedAt.Nanosecond()%int(time.Millisecond))

	listed := store.ListForPoem(ctx, "p1")
	require.Len(t, listed, 1)
	assert.Equal(t, note.ID, listed[0].ID)
}

func TestAddIgnoresBlankContent(t *testing.T) {
	ctx := context.Background()
	backend := newFileBackend(t)
	store := newTestStore(t, backend)

	for _, content := range []string{"", "   ", "\n\t "} {
		_, ok, err := store.Add(ctx, "p1", content)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Empty(t, store.All(ctx))
	_, err := os.Stat(backend.Path(DefaultSlot))
	assert.ErrorIs(t, err, os.ErrNotExist, "blank adds must not write storage")
}

func TestListForPoemKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFileBackend(t))

	for _, step := range []struct{ poem, content string }{
		{"a", "a1"}, {"b", "b1"}, {"a", "a2"}, {"b", "b2"}, {"a", "a3"},
	} {
		_, ok, err := store.Add(ctx, step.poem, step.content)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, []string{"a1", "a2", "a3"}, contents(store.ListForPoem(ctx, "a")))
	assert.Equal(t, []string{"b1", "b2"}, contents(store.ListForPoem(ctx, "b")))
	assert.Empty(t, store.ListForPoem(ctx, "c"))
	assert.Equal(t, []string{"a1", "b1", "a2", "b2", "a3"}, contents(store.All(ctx)))
}

func TestDeleteUsesFilteredIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFileBackend(t))
	for _, step := range []struct{ poem, content string }{
		{"a", "a1"}, {"b", "b1"}, {"a", "a2"}, {"b", "b2"}, {"a", "a3"},
	} {
		_, _, err := store.Add(ctx, step.poem, step.content)
		require.NoError(t, err)
	}

	require.NoError(t, store.Delete(ctx, "a", 1))
	assert.Equal(t, []string{"a1", "a3"}, contents(store.ListForPoem(ctx, "a")))
	assert.Equal(t, []string{"b1", "b2"}, contents(store.ListForPoem(ctx, "b")))
	assert.Equal(t, []string{"a1", "b1", "b2", "a3"}, contents(store.All(ctx)))

	assert.ErrorIs(t, store.Delete(ctx, "a", 2), ErrNoteNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "a", -1), ErrNoteNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing", 0), ErrNoteNotFound)
	assert.Len(t, store.All(ctx), 4)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := newTestStore(t, newFileBackend(t))
	for _, content := range []string{"一", "二"} {
		_, _, err := source.Add(ctx, "p1", content)
		require.NoError(t, err)
	}
	_, _, err := source.Add(ctx, "p2", "多行\n笔记")
	require.NoError(t, err)

	var exported bytes.Buffer
	require.NoError(t, source.ExportAll(ctx, &exported))
	assert.True(t, strings.HasPrefix(exported.String(), "[\n  {"), "export should be indented:\n%s", exported.String())

	target := newTestStore(t, newFileBackend(t))
	require.NoError(t, target.ImportAll(ctx, bytes.NewReader(exported.Bytes())))

	var again bytes.Buffer
	require.NoError(t, target.ExportAll(ctx, &again))
	assert.Equal(t, exported.String(), again.String())
	assert.Equal(t, contents(source.All(ctx)), contents(target.All(ctx)))
}

func TestExportEmptyCollection(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, newTestStore(t, newFileBackend(t)).ExportAll(context.Background(), &out))
	assert.Equal(t, "[]\n", out.String())
}

func TestExportUsesISOTimestamps(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFileBackend(t))
	_, _, err := store.Add(ctx, "p1", "note")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, store.ExportAll(ctx, &out))
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "2026-03-01T00:00:01.123Z", raw[0]["createdAt"])
	assert.Equal(t, "p1", raw[0]["poemId"])
}

func TestImportRejectsInvalidInputAndKeepsStorage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFileBackend(t))
	_, _, err := store.Add(ctx, "p1", "keep me")
	require.NoError(t, err)

	for name, payload := range map[string]string{
		"malformed":      `[{"poemId":`,
		"object":         `{"poemId":"p2","content":"x"}`,
		"null":           `null`,
		"missing poemId": `[{"poemId":"p2","content":"ok"},{"content":"orphan"}]`,
		"empty poemId":   `[{"poemId":"","content":"x"}]`,
	} {
		err := store.ImportAll(ctx, strings.NewReader(payload))
		assert.ErrorIs(t, err, ErrInvalidImport, name)
	}
	assert.Equal(t, []string{"keep me"}, contents(store.All(ctx)))
}

func TestImportAcceptsLegacyRecordsWithoutID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFileBackend(t))
	payload := `[{"poemId":"静夜思","content":"旧笔记","createdAt":"2024-01-02T03:04:05.678Z"}]`

	require.NoError(t, store.ImportAll(ctx, strings.NewReader(payload)))
	got := store.ListForPoem(ctx, "静夜思")
	require.Len(t, got, 1)
	assert.Empty(t, got[0].ID)
	assert.Equal(t, 678*time.Millisecond, time.Duration(got[0].CreatedAt.Nanosecond()))
}

func TestCorruptStorageReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := newFileBackend(t)
	require.NoError(t, backend.Put(ctx, DefaultSlot, []byte("{not json")))
	store := newTestStore(t, backend)

	assert.Empty(t, store.All(ctx))
	assert.Empty(t, store.ListForPoem(ctx, "p1"))

	_, ok, err := store.Add(ctx, "p1", "fresh")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"fresh"}, contents(store.All(ctx)))
}

func TestMalformedRecordsAreDropped(t *testing.T) {
	ctx := context.Background()
	backend := newFileBackend(t)
	payload := `[{"poemId":"p1","content":"good"},{"content":"no poem"},42]`
	require.NoError(t, backend.Put(ctx, DefaultSlot, []byte(payload)))

	assert.Equal(t, []string{"good"}, contents(newTestStore(t, backend).All(ctx)))
}

func TestRekeyMigratesTitleKeyedNotes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFileBackend(t))
	for _, poem := range []string{"静夜思", "abcd", "静夜思"} {
		_, _, err := store.Add(ctx, poem, "n")
		require.NoError(t, err)
	}

	changed, err := store.Rekey(ctx, map[string]string{"静夜思": "f00d", "春晓": "beef"})
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	assert.Len(t, store.ListForPoem(ctx, "f00d"), 2)
	assert.Empty(t, store.ListForPoem(ctx, "静夜思"))

	changed, err = store.Rekey(ctx, map[string]string{"静夜思": "f00d"})
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestStoreOverRedis(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	backend := kv.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: server.Addr()}))
	t.Cleanup(func() { _ = backend.Close() })
	store := newTestStore(t, backend)

	_, _, err := store.Add(ctx, "p1", "redis note")
	require.NoError(t, err)
	assert.Equal(t, []string{"redis note"}, contents(store.ListForPoem(ctx, "p1")))

	_, err = store.Changes(ctx)
	assert.ErrorIs(t, err, ErrWatchUnsupported)
}

func TestChangesSignalsExternalWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := newFileBackend(t)
	store := newTestStore(t, backend)
	changes, err := store.Changes(ctx)
	require.NoError(t, err)

	otherBackend, err := kv.NewFileStore(backend.Dir())
	require.NoError(t, err)
	other := NewStore(otherBackend, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, _, err = other.Add(ctx, "p1", "from another window")
	require.NoError(t, err)

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
	assert.Equal(t, []string{"from another window"}, contents(store.ListForPoem(ctx, "p1")))
}

func TestNotePreview(t *testing.T) {
	note := Note{Content: "第一行很长很长\n第二行"}
	assert.Equal(t, "第一行很长很长", note.Preview(0))
	assert.Equal(t, "第一行…", note.Preview(4))
}

func TestExportKeepsThreeFractionalDigits(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFileBackend(t),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 1, 100_000_000, time.UTC) }),
	)
	_, _, err := store.Add(ctx, "p1", "整秒")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, store.ExportAll(ctx, &out))
	assert.Contains(t, out.String(), `"createdAt": "2026-03-01T00:00:01.100Z"`)
}

func TestLegacyTimestampSurvivesRewrite(t *testing.T) {
	ctx := context.Background()
	backend := newFileBackend(t)
	payload := `[{"poemId":"a","createdAt":"2024/1/1 08:00:00","content":"keep me"}]`
	require.NoError(t, backend.Put(ctx, DefaultSlot, []byte(payload)))
	store := newTestStore(t, backend)

	all := store.All(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "2024/1/1 08:00:00", all[0].CreatedAt.Raw())
	assert.Equal(t, "2024/1/1 08:00:00", all[0].CreatedAt.Display("2006-01-02"))

	_, _, err := store.Add(ctx, "b", "new")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep me", "new"}, contents(store.All(ctx)))

	stored, err := backend.Get(ctx, DefaultSlot)
	require.NoError(t, err)
	assert.Contains(t, string(stored), `"createdAt": "2024/1/1 08:00:00"`)
}

func TestImportAcceptsUnparsedTimestamps(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, newFileBackend(t))
	payload := `[{"poemId":"p1","content":"empty","createdAt":""},{"poemId":"p1","content":"legacy","createdAt":"yesterday"},{"poemId":"p1","content":"none"}]`

	require.NoError(t, store.ImportAll(ctx, strings.NewReader(payload)))
	got := store.ListForPoem(ctx, "p1")
	require.Len(t, got, 3)
	assert.Equal(t, "yesterday", got[1].CreatedAt.Raw())
	assert.True(t, got[2].CreatedAt.IsZero())

	var out bytes.Buffer
	require.NoError(t, store.ExportAll(ctx, &out))
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &raw))
	assert.Equal(t, "", raw[0]["createdAt"])
	assert.Equal(t, "yesterday", raw[1]["createdAt"])
	assert.NotContains(t, raw[2], "createdAt")
}
