package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/csheth/shiyuan/internal/notes"
	"github.com/csheth/shiyuan/internal/poems"
)

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	viewportWidth  int
	viewportHeight int
	listHeight     int
	inputHeight    int
}

func newPageLayout() pageLayout {
	return pageLayout{
		viewportWidth:  80,
		viewportHeight: 20,
		listHeight:     19,
		inputHeight:    1,
	}
}

func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height
	innerWidth := width - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth
	// header, tagline, status bar and the blank lines joinNonEmpty adds
	const chrome = 7
	usable := height - chrome - l.inputHeight
	if usable < 6 {
		usable = 6
	}
	l.viewportHeight = usable
	l.listHeight = usable - 1
	if l.listHeight < 5 {
		l.listHeight = 5
	}
}

type displayView struct {
	content   string
	noteLines map[int]int
}

type contentBuilder struct {
	builder strings.Builder
	lines   int
}

func (cb *contentBuilder) WriteString(s string) {
	cb.builder.WriteString(s)
	cb.lines += strings.Count(s, "\n")
}

func (cb *contentBuilder) WriteRune(r rune) {
	cb.builder.WriteRune(r)
	if r == '\n' {
		cb.lines++
	}
}

func (cb *contentBuilder) String() string {
	return cb.builder.String()
}

func (cb *contentBuilder) Line() int {
	return cb.lines
}

func (m *model) buildDisplayContent() displayView {
	cb := &contentBuilder{}
	noteLines := map[int]int{}
	if m.current == nil {
		return displayView{noteLines: noteLines}
	}
	poem := *m.current
	width := m.wrapWidth(2)

	cb.WriteString(titleStyle.Render(poem.Title))
	cb.WriteRune('\n')
	if byline := poem.Byline(); byline != "" {
		cb.WriteString(bylineStyle.Render(byline))
		cb.WriteRune('\n')
	}
	cb.WriteRune('\n')
	for _, line := range poem.Lines() {
		cb.WriteString(poemTextStyle.Render(wrapText(line, width)))
		cb.WriteRune('\n')
	}

	if strings.TrimSpace(poem.Appreciation) != "" {
		cb.WriteRune('\n')
		cb.WriteString(sectionHeaderStyle.Render("赏析"))
		cb.WriteRune('\n')
		cb.WriteString(wrapText(strings.TrimSpace(poem.Appreciation), width))
		cb.WriteRune('\n')
	}

	cb.WriteRune('\n')
	cb.WriteString(sectionHeaderStyle.Render(fmt.Sprintf("%s (%d)", notesHeading, len(m.poemNotes))))
	cb.WriteRune('\n')
	if len(m.poemNotes) == 0 {
		cb.WriteString(helperStyle.Render("还没有笔记，按 n 添加。"))
		cb.WriteRune('\n')
	}
	for idx, note := range m.poemNotes {
		noteLines[idx] = cb.Line()
		cb.WriteString(m.renderNote(idx, note, width))
		cb.WriteRune('\n')
	}

	return displayView{content: cb.String(), noteLines: noteLines}
}

func (m *model) renderNote(idx int, note notes.Note, width int) string {
	marker := "  "
	if idx == m.noteCursor {
		marker = "▸ "
	}
	body := indentMultiline(wrapText(note.Content, width-4), "    ")
	body = strings.TrimPrefix(body, "    ")
	stamp := note.CreatedAt.Display("2006-01-02 15:04")
	header := fmt.Sprintf("%s%d. %s", marker, idx+1, body)
	if idx == m.noteCursor {
		header = currentLineStyle.Render(header)
	}
	return header + "\n" + helperStyle.Render("    "+stamp)
}

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	return wrap.String(wordwrap.String(text, width), width)
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func (m *model) wrapWidth(padding int) int {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	if padding < 0 {
		padding = 0
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

func poemLabel(poem poems.Poem) string {
	if byline := poem.Byline(); byline != "" {
		return fmt.Sprintf("%s  %s", poem.Title, helperStyle.Render(byline))
	}
	return poem.Title
}

// listWindow returns the [start, end) slice of a list of n rows that keeps
// cursor visible within height rows.
func listWindow(n, cursor, height int) (int, int) {
	if height <= 0 || n <= height {
		return 0, n
	}
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	end := start + height
	if end > n {
		end = n
		start = end - height
	}
	return start, end
}
