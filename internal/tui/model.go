package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/csheth/shiyuan/internal/notes"
	"github.com/csheth/shiyuan/internal/poems"
	"github.com/csheth/shiyuan/internal/search"
	"github.com/csheth/shiyuan/internal/theme"
)

// Config wires runtime services into the TUI program.
type Config struct {
	Catalog *poems.Catalog
	Notes   *notes.Store
	// Theme persists palette changes; nil keeps them for the session only.
	Theme *theme.Preference
	// ExportPath pre-fills the export and import prompts.
	ExportPath string
	Context    context.Context
	Logger     *slog.Logger
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	if config.Context == nil {
		config.Context = context.Background()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ExportPath == "" {
		config.ExportPath = notes.ExportFileName
	}

	searchInput := textinput.New()
	searchInput.Placeholder = searchPlaceholder
	searchInput.CharLimit = 80
	searchInput.Width = 60
	searchInput.Focus()

	noteInput := textinput.New()
	noteInput.Placeholder = notePlaceholder
	noteInput.CharLimit = 2000
	noteInput.Width = 70

	pathInput := textinput.New()
	pathInput.Placeholder = pathPlaceholder
	pathInput.CharLimit = 512
	pathInput.Width = 70

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	applyPalette(theme.Current().Colors)

	return &model{
		config:           config,
		stage:            stageLoading,
		layout:           newPageLayout(),
		searchInput:      searchInput,
		noteInput:        noteInput,
		pathInput:        pathInput,
		spinner:          spin,
		viewport:         vp,
		suggestionCursor: -1,
		themes:           theme.Builtin(),
		jobs:             newJobBus(config.Context, config.Logger),
		runningJobs:      map[string]jobSnapshot{},
		noteLines:        map[int]int{},
		viewportDirty:    true,
		infoMessage:      "正在加载诗词…",
	}
}

type model struct {
	config Config
	stage  stage
	layout pageLayout

	searchInput textinput.Model
	noteInput   textinput.Model
	pathInput   textinput.Model
	spinner     spinner.Model
	viewport    viewport.Model

	catalog  []poems.Poem
	fallback bool

	suggestions      []poems.Poem
	suggestionCursor int
	results          search.Results
	resultCursor     int

	current     *poems.Poem
	returnStage stage
	poemNotes   []notes.Note
	noteCursor  int
	noteLines   map[int]int

	themes         []theme.Theme
	themeCursor    int
	settingsMode   settingsMode
	settingsReturn stage

	infoMessage   string
	errorMessage  string
	helpVisible   bool
	viewportDirty bool

	jobs        *jobBus
	runningJobs map[string]jobSnapshot
}

func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		m.jobs.Start(jobKindCatalog, loadCatalogJob(m.config.Catalog, m.config.Notes)),
	}
	changes, err := subscribeNotes(m.config.Context, m.config.Notes)
	if err != nil {
		m.config.Logger.Warn("note change notifications disabled", "error", err)
	}
	if cmd := watchNotesCmd(changes); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.stage == stageLoading || m.jobsRunning() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.layout.Update(msg.Width, msg.Height)
		m.viewport.Width = m.layout.viewportWidth
		m.viewport.Height = m.layout.viewportHeight
		m.noteInput.Width = m.layout.viewportWidth - 4
		m.pathInput.Width = m.layout.viewportWidth - 4
		m.markViewportDirty()
		return m, nil
	case jobSignalMsg:
		idle := !m.jobsRunning()
		m.trackJob(msg.Snapshot)
		if idle && m.stage != stageLoading {
			return m, m.spinner.Tick
		}
		return m, nil
	case jobResultEnvelope:
		m.trackJob(msg.Snapshot)
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case catalogLoadedMsg:
		return m, m.handleCatalogLoaded(msg)
	case notesResultMsg:
		m.handleNotesResult(msg)
		return m, nil
	case exportResultMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("导出失败：%v", msg.err)
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("已导出 %d 条笔记到 %s", msg.count, msg.path)
		return m, nil
	case importResultMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("导入失败：%v", msg.err)
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("已从 %s 导入 %d 条笔记", msg.path, msg.count)
		if msg.rekeyed > 0 {
			m.infoMessage += fmt.Sprintf("，迁移 %d 条旧笔记", msg.rekeyed)
		}
		if m.current != nil && m.current.ID == msg.poemID {
			m.poemNotes = msg.notes
			m.clampNoteCursor()
			m.markViewportDirty()
		}
		return m, nil
	case themeSavedMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("主题保存失败：%v", msg.err)
			return m, nil
		}
		m.infoMessage = fmt.Sprintf("主题已切换为「%s」", msg.name)
		return m, nil
	case notesChangedMsg:
		var cmds []tea.Cmd
		if m.current != nil {
			cmds = append(cmds, m.jobs.Start(jobKindNote, listNotesJob(m.config.Notes, m.current.ID)))
		}
		cmds = append(cmds, watchNotesCmd(msg.changes))
		return m, tea.Batch(cmds...)
	case tea.MouseMsg:
		if m.stage == stageDisplay {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleCatalogLoaded(msg catalogLoadedMsg) tea.Cmd {
	m.catalog = msg.poems
	m.fallback = msg.fallback
	m.stage = stageSearch
	m.searchInput.Focus()
	m.errorMessage = ""
	switch {
	case msg.fallback:
		m.errorMessage = "诗词加载失败，仅提供备用诗词。"
		m.infoMessage = ""
	case msg.rekeyed > 0:
		m.infoMessage = fmt.Sprintf("已加载 %d 首诗词，迁移 %d 条旧笔记。", len(msg.poems), msg.rekeyed)
	default:
		m.infoMessage = fmt.Sprintf("已加载 %d 首诗词。", len(msg.poems))
	}
	m.refreshSuggestions()
	return textinput.Blink
}

func (m *model) handleNotesResult(msg notesResultMsg) {
	if m.current == nil || m.current.ID != msg.poemID {
		return
	}
	m.poemNotes = msg.notes
	m.clampNoteCursor()
	switch {
	case msg.err != nil:
		m.errorMessage = msg.err.Error()
	case msg.action == "added":
		m.errorMessage = ""
		m.infoMessage = "笔记已保存。"
		m.noteCursor = len(m.poemNotes) - 1
	case msg.action == "deleted":
		m.errorMessage = ""
		m.infoMessage = "笔记已删除。"
	}
	m.markViewportDirty()
	m.refreshViewportIfDirty()
	m.scrollToNote()
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.stage {
	case stageLoading:
		if key.String() == "esc" || key.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	case stageSearch:
		return m.handleSearchKey(key)
	case stageResults:
		return m.handleResultsKey(key)
	case stageDisplay:
		return m.handleDisplayKey(key)
	case stageNoteEntry:
		return m.handleNoteEntryKey(key)
	case stageSettings:
		return m.handleSettingsKey(key)
	default:
		return m, nil
	}
}

func (m *model) handleSearchKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up":
		if m.suggestionCursor > -1 {
			m.suggestionCursor--
		}
		return m, nil
	case "down":
		if m.suggestionCursor < len(m.suggestions)-1 {
			m.suggestionCursor++
		}
		return m, nil
	case "enter":
		if m.suggestionCursor >= 0 && m.suggestionCursor < len(m.suggestions) {
			return m, m.openPoem(m.suggestions[m.suggestionCursor], stageSearch)
		}
		m.submitSearch(m.searchInput.Value())
		return m, nil
	case "esc":
		if m.searchInput.Value() == "" {
			return m, tea.Quit
		}
		m.searchInput.SetValue("")
		m.refreshSuggestions()
		return m, nil
	case "ctrl+t":
		m.openSettings()
		return m, nil
	}
	var cmd tea.Cmd
	before := m.searchInput.Value()
	m.searchInput, cmd = m.searchInput.Update(key)
	if m.searchInput.Value() != before {
		m.refreshSuggestions()
	}
	return m, cmd
}

func (m *model) refreshSuggestions() {
	m.suggestions = search.Suggest(m.catalog, m.searchInput.Value())
	m.suggestionCursor = -1
}

func (m *model) submitSearch(query string) {
	if strings.TrimSpace(query) == "" {
		m.infoMessage = "请输入关键词。"
		return
	}
	m.results = search.Run(m.catalog, query)
	m.resultCursor = 0
	m.stage = stageResults
	m.searchInput.Blur()
	m.errorMessage = ""
	m.infoMessage = ""
}

func (m *model) handleResultsKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up", "k":
		if m.resultCursor > 0 {
			m.resultCursor--
		}
	case "down", "j":
		if m.resultCursor < len(m.results.Poems)-1 {
			m.resultCursor++
		}
	case "g", "home":
		m.resultCursor = 0
	case "G", "end":
		if n := len(m.results.Poems); n > 0 {
			m.resultCursor = n - 1
		}
	case "enter":
		if m.resultCursor < len(m.results.Poems) {
			return m, m.openPoem(m.results.Poems[m.resultCursor], stageResults)
		}
	case "esc", "/":
		m.backToSearch()
		return m, textinput.Blink
	case "t", "ctrl+t":
		m.openSettings()
	case "?":
		m.helpVisible = !m.helpVisible
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) backToSearch() {
	m.stage = stageSearch
	m.searchInput.Focus()
	m.infoMessage = ""
}

// openPoem shows poem immediately and loads its notes as a job.
func (m *model) openPoem(poem poems.Poem, from stage) tea.Cmd {
	m.current = &poem
	m.returnStage = from
	m.poemNotes = nil
	m.noteCursor = 0
	m.stage = stageDisplay
	m.searchInput.Blur()
	m.errorMessage = ""
	m.infoMessage = ""
	m.viewport.GotoTop()
	m.markViewportDirty()
	return m.jobs.Start(jobKindNote, listNotesJob(m.config.Notes, poem.ID))
}

func (m *model) closePoem() tea.Cmd {
	m.current = nil
	m.poemNotes = nil
	m.infoMessage = ""
	m.errorMessage = ""
	if m.returnStage == stageResults {
		m.stage = stageResults
		return nil
	}
	m.backToSearch()
	return textinput.Blink
}

func (m *model) handleDisplayKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up":
		if m.noteCursor > 0 {
			m.noteCursor--
			m.markViewportDirty()
			m.refreshViewportIfDirty()
			m.scrollToNote()
		}
	case "down":
		if m.noteCursor < len(m.poemNotes)-1 {
			m.noteCursor++
			m.markViewportDirty()
			m.refreshViewportIfDirty()
			m.scrollToNote()
		}
	case "j", "k", "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	case "g", "home":
		m.viewport.GotoTop()
	case "G", "end":
		m.viewport.GotoBottom()
	case "n", "a":
		m.startNoteEntry()
		return m, textinput.Blink
	case "d", "x":
		if m.current == nil || len(m.poemNotes) == 0 {
			m.infoMessage = "没有可删除的笔记。"
			return m, nil
		}
		return m, m.jobs.Start(jobKindNote, deleteNoteJob(m.config.Notes, m.current.ID, m.noteCursor))
	case "esc", "backspace":
		return m, m.closePoem()
	case "t", "ctrl+t":
		m.openSettings()
	case "?":
		m.helpVisible = !m.helpVisible
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) startNoteEntry() {
	m.stage = stageNoteEntry
	m.noteInput.SetValue("")
	m.noteInput.Focus()
	m.errorMessage = ""
	m.infoMessage = "新建笔记"
}

func (m *model) handleNoteEntryKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		m.noteInput.SetValue("")
		m.noteInput.Blur()
		m.stage = stageDisplay
		m.infoMessage = "已取消。"
		return m, nil
	case tea.KeyEnter:
		value := m.noteInput.Value()
		m.noteInput.SetValue("")
		m.noteInput.Blur()
		m.stage = stageDisplay
		m.infoMessage = ""
		if strings.TrimSpace(value) == "" || m.current == nil {
			return m, nil
		}
		return m, m.jobs.Start(jobKindNote, addNoteJob(m.config.Notes, m.current.ID, value))
	}
	var cmd tea.Cmd
	m.noteInput, cmd = m.noteInput.Update(key)
	return m, cmd
}

func (m *model) openSettings() {
	m.settingsReturn = m.stage
	m.stage = stageSettings
	m.settingsMode = settingsModeThemes
	m.searchInput.Blur()
	m.errorMessage = ""
	m.infoMessage = ""
	current := theme.Current().Name
	m.themeCursor = 0
	for idx, t := range m.themes {
		if t.Name == current {
			m.themeCursor = idx
			break
		}
	}
}

func (m *model) closeSettings() tea.Cmd {
	m.pathInput.Blur()
	m.stage = m.settingsReturn
	if m.stage == stageSearch {
		m.searchInput.Focus()
		return textinput.Blink
	}
	return nil
}

func (m *model) handleSettingsKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.settingsMode != settingsModeThemes {
		return m.handlePathKey(key)
	}
	switch key.String() {
	case "up", "k":
		if m.themeCursor > 0 {
			m.themeCursor--
		}
	case "down", "j":
		if m.themeCursor < len(m.themes)-1 {
			m.themeCursor++
		}
	case "enter", " ":
		return m, m.chooseTheme(m.themes[m.themeCursor])
	case "e":
		m.startPathEntry(settingsModeExport)
		return m, textinput.Blink
	case "i":
		m.startPathEntry(settingsModeImport)
		return m, textinput.Blink
	case "esc", "q":
		return m, m.closeSettings()
	}
	return m, nil
}

func (m *model) chooseTheme(chosen theme.Theme) tea.Cmd {
	theme.Apply(chosen)
	applyPalette(chosen.Colors)
	m.markViewportDirty()
	m.errorMessage = ""
	if m.config.Theme == nil {
		m.infoMessage = fmt.Sprintf("主题已切换为「%s」", chosen.Name)
		return nil
	}
	return m.jobs.Start(jobKindTheme, saveThemeJob(m.config.Theme, chosen))
}

func (m *model) startPathEntry(mode settingsMode) {
	m.settingsMode = mode
	m.errorMessage = ""
	m.pathInput.SetValue(m.config.ExportPath)
	m.pathInput.CursorEnd()
	m.pathInput.Focus()
}

func (m *model) handlePathKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		m.settingsMode = settingsModeThemes
		m.pathInput.Blur()
		return m, nil
	case tea.KeyEnter:
		path := strings.TrimSpace(m.pathInput.Value())
		if path == "" {
			m.errorMessage = "请输入文件路径。"
			return m, nil
		}
		mode := m.settingsMode
		m.settingsMode = settingsModeThemes
		m.pathInput.Blur()
		if mode == settingsModeExport {
			return m, m.jobs.Start(jobKindExport, exportNotesJob(m.config.Notes, path))
		}
		openID := ""
		if m.current != nil {
			openID = m.current.ID
		}
		return m, m.jobs.Start(jobKindImport, importNotesJob(m.config.Notes, m.config.Catalog, path, openID))
	}
	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(key)
	return m, cmd
}

func (m *model) clampNoteCursor() {
	if m.noteCursor >= len(m.poemNotes) {
		m.noteCursor = len(m.poemNotes) - 1
	}
	if m.noteCursor < 0 {
		m.noteCursor = 0
	}
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

func (m *model) refreshViewportIfDirty() {
	if !m.viewportDirty {
		return
	}
	view := m.buildDisplayContent()
	m.viewport.SetContent(view.content)
	m.noteLines = view.noteLines
	m.viewportDirty = false
}

func (m *model) scrollToNote() {
	line, ok := m.noteLines[m.noteCursor]
	if !ok {
		return
	}
	switch {
	case line < m.viewport.YOffset:
		m.viewport.SetYOffset(line)
	case line+1 >= m.viewport.YOffset+m.viewport.Height:
		m.viewport.SetYOffset(line - m.viewport.Height + 2)
	}
}

var (
	titleStyle         lipgloss.Style
	bylineStyle        lipgloss.Style
	poemTextStyle      lipgloss.Style
	sectionHeaderStyle lipgloss.Style
	currentLineStyle   lipgloss.Style
	statusBarStyle     lipgloss.Style
	keyStyle           lipgloss.Style
	heroTitleStyle     lipgloss.Style
	heroBoxStyle       lipgloss.Style
	cardStyle          lipgloss.Style

	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helperStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	taglineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Italic(true)
	keyDescStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	legendBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(0, 1)
	helpBoxStyle   = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#7f5af0")).Padding(0, 1)
)

// applyPalette rebuilds the palette-dependent styles.
func applyPalette(colors theme.Colors) {
	primary := lipgloss.Color(colors.Primary)
	secondary := lipgloss.Color(colors.Secondary)
	accent := lipgloss.Color(colors.Accent)
	text := lipgloss.Color(colors.Text)
	button := lipgloss.Color(colors.Button)
	block := lipgloss.Color(colors.Block)
	card := lipgloss.Color(colors.Card)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primary)
	bylineStyle = lipgloss.NewStyle().Foreground(secondary)
	poemTextStyle = lipgloss.NewStyle()
	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(secondary)
	currentLineStyle = lipgloss.NewStyle().Foreground(text).Background(accent)
	statusBarStyle = lipgloss.NewStyle().Foreground(text).Background(block).Padding(0, 1)
	keyStyle = lipgloss.NewStyle().Bold(true).Foreground(text).Background(button).Padding(0, 1)
	heroTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(primary)
	heroBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primary).Padding(0, 2)
	cardStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(card).Padding(0, 1)
}
