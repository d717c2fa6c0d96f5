package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/csheth/shiyuan/internal/notes"
	"github.com/csheth/shiyuan/internal/theme"
)

func (m *model) View() string {
	switch m.stage {
	case stageLoading:
		return m.viewLoading()
	case stageSearch:
		return m.viewSearch()
	case stageResults:
		return m.viewResults()
	case stageDisplay, stageNoteEntry:
		return m.viewDisplay()
	case stageSettings:
		return m.viewSettings()
	default:
		return ""
	}
}

func (m *model) viewLoading() string {
	body := helperStyle.Render(fmt.Sprintf("%s %s", m.spinner.View(), m.infoMessage))
	return joinNonEmpty([]string{m.heroView(), body})
}

func (m *model) viewSearch() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("搜索"))
	b.WriteRune('\n')
	b.WriteString(m.searchInput.View())
	if len(m.suggestions) > 0 {
		b.WriteRune('\n')
		for idx, poem := range m.suggestions {
			b.WriteRune('\n')
			if idx == m.suggestionCursor {
				b.WriteString(currentLineStyle.Render("▸ " + poem.Title + "  " + poem.Byline()))
				continue
			}
			b.WriteString("  " + poemLabel(poem))
		}
	} else if strings.TrimSpace(m.searchInput.Value()) != "" {
		b.WriteRune('\n')
		b.WriteRune('\n')
		b.WriteString(helperStyle.Render("没有匹配的诗词。"))
	}
	return m.frame(b.String())
}

func (m *model) viewResults() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render(fmt.Sprintf("搜索结果：%s (%d)", m.results.Query, m.results.Count)))
	b.WriteRune('\n')
	if m.results.Count == 0 {
		b.WriteString(helperStyle.Render("没有找到匹配的诗词，按 Esc 返回搜索。"))
		return m.frame(b.String())
	}
	start, end := listWindow(len(m.results.Poems), m.resultCursor, m.layout.listHeight)
	rows := make([]string, 0, end-start)
	for idx := start; idx < end; idx++ {
		poem := m.results.Poems[idx]
		if idx == m.resultCursor {
			rows = append(rows, currentLineStyle.Render("▸ "+poem.Title+"  "+poem.Byline()))
			continue
		}
		rows = append(rows, "  "+poemLabel(poem))
	}
	b.WriteString(strings.Join(rows, "\n"))
	return m.frame(b.String())
}

func (m *model) viewDisplay() string {
	m.refreshViewportIfDirty()
	parts := []string{m.viewport.View()}
	if m.stage == stageNoteEntry {
		parts = append(parts, cardStyle.Render(joinLines(
			sectionHeaderStyle.Render("新笔记"),
			m.noteInput.View(),
		)))
	}
	return m.frame(joinNonEmpty(parts))
}

func (m *model) viewSettings() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("主题"))
	b.WriteRune('\n')
	current := theme.Current().Name
	for idx, t := range m.themes {
		marker := "  "
		if t.Name == current {
			marker = "● "
		}
		row := marker + t.Name + "  " + swatches(t.Colors)
		if idx == m.themeCursor && m.settingsMode == settingsModeThemes {
			row = currentLineStyle.Render("▸") + " " + t.Name + "  " + swatches(t.Colors)
		}
		b.WriteString(row)
		b.WriteRune('\n')
	}
	b.WriteRune('\n')
	b.WriteString(sectionHeaderStyle.Render("笔记"))
	b.WriteRune('\n')
	switch m.settingsMode {
	case settingsModeExport:
		b.WriteString(helperStyle.Render("导出全部笔记到："))
		b.WriteRune('\n')
		b.WriteString(m.pathInput.View())
	case settingsModeImport:
		b.WriteString(helperStyle.Render("从文件导入笔记（将替换现有笔记）："))
		b.WriteRune('\n')
		b.WriteString(m.pathInput.View())
	default:
		b.WriteString(helperStyle.Render("e 导出笔记 • i 导入笔记"))
	}
	return m.frame(b.String())
}

func swatches(colors theme.Colors) string {
	cells := make([]string, 0, len(theme.Roles()))
	for _, role := range theme.Roles() {
		cells = append(cells, lipgloss.NewStyle().Background(lipgloss.Color(colors.Get(role))).Render("  "))
	}
	return strings.Join(cells, "")
}

func (m *model) frame(body string) string {
	parts := []string{m.heroView(), body}
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		message := m.infoMessage
		if m.jobsRunning() {
			message = fmt.Sprintf("%s %s", m.spinner.View(), message)
		}
		parts = append(parts, helperStyle.Render(message))
	}
	if m.helpVisible {
		parts = append(parts, m.keyLegendView(), m.helpView())
	}
	parts = append(parts, m.statusBarView())
	return joinNonEmpty(parts)
}

func (m *model) heroView() string {
	title := heroTitleStyle.Render(appTitle)
	if m.current != nil && (m.stage == stageDisplay || m.stage == stageNoteEntry) {
		title = heroTitleStyle.Render(appTitle + " · " + m.current.Title)
	}
	return lipgloss.JoinVertical(lipgloss.Left, heroBoxStyle.Render(title), taglineStyle.Render(heroTagline))
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

func joinLines(lines ...string) string {
	return strings.Join(lines, "\n")
}

func (m *model) stageLabel() string {
	switch m.stage {
	case stageLoading:
		return "加载"
	case stageSearch:
		return "搜索"
	case stageResults:
		return "结果"
	case stageDisplay:
		return "阅读"
	case stageNoteEntry:
		return "笔记"
	case stageSettings:
		return "设置"
	default:
		return ""
	}
}

func (m *model) statusBarView() string {
	stats := []string{
		m.stageLabel(),
		fmt.Sprintf("诗词 %d", len(m.catalog)),
		"主题 " + theme.Current().Name,
	}
	if m.current != nil && m.stage != stageSearch && m.stage != stageResults {
		stats = append(stats, fmt.Sprintf("笔记 %d", len(m.poemNotes)))
	}
	if m.fallback {
		stats = append(stats, "离线")
	}
	stats = append(stats, m.jobStatusBadges()...)
	if m.stage == stageSearch {
		stats = append(stats, "Ctrl+T 设置")
	} else {
		stats = append(stats, "? 帮助")
	}
	return statusBarStyle.Render(strings.Join(stats, "  •  "))
}

type keyHint struct {
	Key         string
	Description string
}

func (m *model) keyHints() []keyHint {
	switch m.stage {
	case stageSearch:
		return []keyHint{
			{"↑/↓", "选择建议"},
			{"Enter", "打开 / 全部结果"},
			{"Esc", "清空 / 退出"},
			{"Ctrl+T", "设置"},
			{"Ctrl+C", "退出"},
		}
	case stageResults:
		return []keyHint{
			{"↑/↓", "移动"},
			{"Enter", "打开"},
			{"g/G", "首/尾"},
			{"Esc", "返回搜索"},
			{"t", "设置"},
			{"q", "退出"},
		}
	case stageDisplay, stageNoteEntry:
		return []keyHint{
			{"↑/↓", "选择笔记"},
			{"j/k", "滚动"},
			{"n", "添加笔记"},
			{"d", "删除笔记"},
			{"Esc", "返回"},
			{"t", "设置"},
		}
	case stageSettings:
		return []keyHint{
			{"↑/↓", "选择主题"},
			{"Enter", "应用主题"},
			{"e", "导出笔记"},
			{"i", "导入笔记"},
			{"Esc", "返回"},
		}
	default:
		return nil
	}
}

func (m *model) keyLegendView() string {
	hints := m.keyHints()
	if len(hints) == 0 {
		return ""
	}
	rows := []string{sectionHeaderStyle.Render("快捷键")}
	const columns = 3
	for i := 0; i < len(hints); i += columns {
		end := i + columns
		if end > len(hints) {
			end = len(hints)
		}
		var cells []string
		for _, hint := range hints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Render(" " + hint.Description + "  ")
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return legendBoxStyle.Render(strings.Join(rows, "\n"))
}

func (m *model) helpView() string {
	lines := []string{
		helperStyle.Render("• 搜索匹配诗名、作者与正文，区分大小写。"),
		helperStyle.Render("• 笔记保存在本地存储，可在设置中导出为 " + notes.ExportFileName + "。"),
		helperStyle.Render("• 导入会替换全部笔记；文件无效时不做任何修改。"),
	}
	return helpBoxStyle.Render(strings.Join(lines, "\n"))
}
