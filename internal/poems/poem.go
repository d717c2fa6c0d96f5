package poems

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Poem is one catalog entry. Poems are immutable once loaded.
type Poem struct {
	ID           string `json:"-"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Dynasty      string `json:"dynasty"`
	Content      string `json:"content"`
	Appreciation string `json:"appreciation"`
}

// Identity derives the stable join key for a poem. Title alone is not unique
// across the catalog, so author and dynasty take part in the hash.
func Identity(title, author, dynasty string) string {
	sum := sha1.Sum([]byte(title + "\x00" + author + "\x00" + dynasty))
	return hex.EncodeToString(sum[:8])
}

// New builds a poem with its identity filled in.
func New(title, author, dynasty, content, appreciation string) Poem {
	return Poem{
		ID:           Identity(title, author, dynasty),
		Title:        title,
		Author:       author,
		Dynasty:      dynasty,
		Content:      content,
		Appreciation: appreciation,
	}
}

// Byline renders "dynasty · author", dropping whichever half is empty.
func (p Poem) Byline() string {
	switch {
	case p.Dynasty != "" && p.Author != "":
		return p.Dynasty + " · " + p.Author
	case p.Author != "":
		return p.Author
	default:
		return p.Dynasty
	}
}

// Lines splits the content into display lines without the trailing blank.
func (p Poem) Lines() []string {
	return strings.Split(strings.TrimRight(p.Content, "\n"), "\n")
}

// record mirrors the wire shape. Pointers distinguish absent fields from empty ones.
type record struct {
	Title        *string `json:"title"`
	Author       *string `json:"author"`
	Dynasty      *string `json:"dynasty"`
	Content      *string `json:"content"`
	Appreciation *string `json:"appreciation"`
}

func (r record) valid() bool {
	if r.Title == nil || r.Author == nil || r.Dynasty == nil || r.Content == nil {
		return false
	}
	return strings.TrimSpace(*r.Title) != ""
}

func (r record) poem() Poem {
	appreciation := ""
	if r.Appreciation != nil {
		appreciation = *r.Appreciation
	}
	return New(*r.Title, *r.Author, *r.Dynasty, *r.Content, appreciation)
}

// Decode reads a JSON array of poem-shaped objects. Records missing a
// mandatory field are dropped and counted in skipped.
func Decode(reader io.Reader) (poems []Poem, skipped int, err error) {
	var records []record
	if err := json.NewDecoder(reader).Decode(&records); err != nil {
		return nil, 0, fmt.Errorf("failed to decode poem payload: %w", err)
	}
	poems = make([]Poem, 0, len(records))
	for _, r := range records {
		if !r.valid() {
			skipped++
			continue
		}
		poems = append(poems, r.poem())
	}
	return poems, skipped, nil
}
