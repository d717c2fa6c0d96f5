package tuitest

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestParseFramesSplitsOnClearScreen(t *testing.T) {
	raw := []byte("\x1b[2J\x1b[Hfirst   \n\n\x1b[2J\x1b[H\x1b[1mSecond\x1b[0m line\r\n")
	frames := parseFrames(raw)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %#v", len(frames), frames)
	}
	if frames[0].Plain != "first" {
		t.Fatalf("trailing blanks not trimmed: %q", frames[0].Plain)
	}
	if frames[1].Plain != "Second line" {
		t.Fatalf("ANSI not stripped: %q", frames[1].Plain)
	}

	rec := &Recording{Frames: frames}
	if frame, ok := rec.FrameContaining("Second"); !ok || frame.Index != 1 {
		t.Fatalf("FrameContaining = %+v, %v", frame, ok)
	}
	if _, ok := rec.FrameContaining("missing"); ok {
		t.Fatal("unexpected match")
	}
	if last, ok := rec.FinalFrame(); !ok || last.Index != 1 {
		t.Fatalf("FinalFrame = %+v, %v", last, ok)
	}
}

func TestScreenBufferContainsIgnoresANSI(t *testing.T) {
	var buf screenBuffer
	_, _ = buf.Write([]byte("\x1b[31m诗\x1b[0m苑"))
	if !buf.Contains("诗苑") {
		t.Fatal("expected styled text to match")
	}
}

func TestRunWaitsForPrompt(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh unavailable")
	}

	rec, err := Run(context.Background(), Config{
		Command: []string{"sh", "-c", `printf 'ready\n'; read line; printf 'got %s\n' "$line"`},
		Steps: []Step{
			{WaitFor: "ready", Input: append([]byte("hello"), KeyEnter...)},
		},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(string(rec.Raw), "got hello") {
		t.Fatalf("program output missing reply:\n%s", rec.Raw)
	}
}

func TestTerminalResponderAnswersQueriesInOrder(t *testing.T) {
	var replies strings.Builder
	responder := newTerminalResponder(&replies)

	responder.Process([]byte("text\x1b]11;?\x07more\x1b["))
	responder.Process([]byte("6n"))

	want := "\x1b]11;rgb:0000/0000/0000\x07\x1b[1;1R"
	if replies.String() != want {
		t.Fatalf("replies = %q, want %q", replies.String(), want)
	}
}

func TestPlainTextDropsEscapesAndTrailingBlanks(t *testing.T) {
	got := PlainText("\x1b]0;title\x07\x1b(B诗苑  \n\x1b[?25l\n  \n")
	if got != "诗苑" {
		t.Fatalf("PlainText = %q", got)
	}
}
