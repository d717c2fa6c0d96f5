package notes

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExportFileName is the default name of an exported note collection.
const ExportFileName = "poem-notes.json"

// TimestampLayout is ISO-8601 in UTC with exactly three fractional digits.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Note is a personal annotation attached to a poem.
type Note struct {
	ID        string    `json:"id,omitempty"`
	PoemID    string    `json:"poemId"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"createdAt,omitzero"`
}

// Timestamp is a note creation time. Values that do not parse as RFC 3339
// are kept verbatim so legacy records survive a rewrite.
type Timestamp struct {
	time.Time
	raw json.RawMessage
}

// NewTimestamp truncates t to milliseconds in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

// IsZero reports whether the timestamp carries neither a time nor a raw value.
func (t Timestamp) IsZero() bool {
	return t.Time.IsZero() && t.raw == nil
}

// Raw returns the unparsed stored value, or "" when the time parsed.
func (t Timestamp) Raw() string {
	if t.raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(t.raw, &s); err == nil {
		return s
	}
	return string(t.raw)
}

// Display renders the time with layout in local time, or the raw value when
// the stored timestamp could not be parsed.
func (t Timestamp) Display(layout string) string {
	if t.raw != nil {
		return t.Raw()
	}
	if t.Time.IsZero() {
		return ""
	}
	return t.Time.Local().Format(layout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.raw != nil {
		return t.raw, nil
	}
	return json.Marshal(t.Time.UTC().Format(TimestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.raw = append(json.RawMessage(nil), data...)
	return nil
}

func newNote(poemID, content string, now time.Time) Note {
	return Note{
		ID:        uuid.NewString(),
		PoemID:    poemID,
		Content:   strings.TrimSpace(content),
		CreatedAt: NewTimestamp(now),
	}
}

// Preview returns the first line of the note, clipped to limit runes.
func (n Note) Preview(limit int) string {
	line, _, _ := strings.Cut(n.Content, "\n")
	runes := []rune(line)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit-1]) + "…"
	}
	return line
}
