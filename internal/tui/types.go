package tui

import (
	"github.com/csheth/shiyuan/internal/notes"
	"github.com/csheth/shiyuan/internal/poems"
)

type stage int

const (
	stageLoading stage = iota
	stageSearch
	stageResults
	stageDisplay
	stageNoteEntry
	stageSettings
)

type settingsMode int

const (
	settingsModeThemes settingsMode = iota
	settingsModeExport
	settingsModeImport
)

const (
	appTitle     = "诗苑"
	heroTagline  = "检索古典诗词，随手记下心得。"
	notesHeading = "我的笔记"
)

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	notePreviewLimit          = 60
)

const (
	searchPlaceholder = "输入诗名、作者或诗句…"
	notePlaceholder   = "写下你的笔记，Enter 保存，Esc 取消"
	pathPlaceholder   = "文件路径"
)

type catalogLoadedMsg struct {
	poems    []poems.Poem
	fallback bool
	rekeyed  int
}

type notesResultMsg struct {
	poemID string
	notes  []notes.Note
	action string
	err    error
}

type exportResultMsg struct {
	path  string
	count int
	err   error
}

type importResultMsg struct {
	path    string
	count   int
	rekeyed int
	poemID  string
	notes   []notes.Note
	err     error
}

type themeSavedMsg struct {
	name string
	err  error
}

type notesChangedMsg struct {
	changes <-chan struct{}
}
