package main

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/csheth/shiyuan/internal/tuitest"
)

func TestBrowserSearchAndOpenPoem(t *testing.T) {
	if testing.Short() {
		t.Skip("builds and drives the binary in a PTY")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain unavailable")
	}
	t.Parallel()

	cmdDir := moduleDir(t)
	fixture := filepath.Join(cmdDir, "testdata", "poems.json")
	binary := buildBinary(t, cmdDir)
	storage := t.TempDir()

	rec, err := tuitest.Run(context.Background(), tuitest.Config{
		Command: []string{
			binary, "browse",
			"--no-alt-screen",
			"--config", filepath.Join(storage, "absent.yaml"),
			"--storage", storage,
			"--source", fixture,
			"--log-file", filepath.Join(storage, "shiyuan.log"),
		},
		Dir:    cmdDir,
		Env:    []string{"SHIYUAN_SOURCES=", "SHIYUAN_STORAGE="},
		Width:  100,
		Height: 32,
		Steps: []tuitest.Step{
			{WaitFor: "已加载", Input: []byte("苏轼")},
			{WaitFor: "江城子", Input: tuitest.KeyDown},
			{Delay: 200 * time.Millisecond, Input: tuitest.KeyEnter},
			{WaitFor: "我的笔记", Input: tuitest.KeyCtrlC},
		},
		Timeout:        10 * time.Second,
		AllowInterrupt: true,
	})
	if err != nil {
		t.Fatalf("run CLI: %v", err)
	}

	if _, ok := rec.FrameContaining("水调歌头"); !ok {
		t.Fatalf("suggestions never rendered:\n%s", lastFrame(rec))
	}
	frame, ok := rec.LastFrameContaining("我的笔记")
	if !ok {
		t.Fatalf("poem view never rendered:\n%s", lastFrame(rec))
	}
	for _, want := range []string{"定风波", "宋 · 苏轼", "我的笔记"} {
		if !strings.Contains(frame.Plain, want) {
			t.Fatalf("final frame missing %q:\n%s", want, frame.Plain)
		}
	}
}

func lastFrame(rec *tuitest.Recording) string {
	frame, _ := rec.FinalFrame()
	return frame.Plain
}

func moduleDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller unavailable")
	}
	return filepath.Dir(file)
}

func buildBinary(t *testing.T, cmdDir string) string {
	t.Helper()
	tmp := t.TempDir()
	name := "shiyuan-integration"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	binPath := filepath.Join(tmp, name)
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = cmdDir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build CLI: %v\n%s", err, output)
	}
	return binPath
}
