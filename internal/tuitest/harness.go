// Package tuitest drives a terminal program through a pseudo-terminal and
// records what it draws.
package tuitest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

const (
	defaultWidth     = 120
	defaultHeight    = 32
	defaultTimeout   = 5 * time.Second
	waitPollInterval = 50 * time.Millisecond
)

// Step is one scripted interaction: sleep for Delay, wait until the screen
// shows WaitFor (when set), then type Input.
type Step struct {
	Delay   time.Duration
	WaitFor string
	Input   []byte
}

// Config describes the program to spawn and the script to replay.
type Config struct {
	Command          []string
	Dir              string
	Env              []string
	Width            int
	Height           int
	Steps            []Step
	Timeout          time.Duration
	AllowedExitCodes []int
	// AllowInterrupt accepts an exit caused by SIGINT, e.g. after KeyCtrlC.
	AllowInterrupt bool
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = defaultWidth
	}
	if c.Height <= 0 {
		c.Height = defaultHeight
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Recording is the raw terminal stream plus the frames parsed from it.
type Recording struct {
	Raw      []byte
	Frames   []Frame
	Duration time.Duration
}

// screenBuffer collects PTY output while steps inspect it.
type screenBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *screenBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *screenBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func (b *screenBuffer) Contains(text string) bool {
	return strings.Contains(PlainText(string(b.Bytes())), text)
}

// Run executes cfg.Command inside a PTY, replays cfg.Steps and captures
// every byte the program writes.
func Run(ctx context.Context, cfg Config) (*Recording, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("tuitest: command is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	s, err := start(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer s.close()

	started := time.Now()
	if err := s.play(ctx, cfg.Steps); err != nil {
		return nil, err
	}
	if err := s.wait(ctx, cfg); err != nil {
		return nil, err
	}
	s.close()

	raw := s.output.Bytes()
	return &Recording{Raw: raw, Frames: parseFrames(raw), Duration: time.Since(started)}, nil
}

type session struct {
	cmd     *exec.Cmd
	ptmx    *os.File
	output  *screenBuffer
	drained chan struct{}
	once    sync.Once
}

func start(ctx context.Context, cfg Config) (*session, error) {
	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = buildEnv(cfg.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(cfg.Height), Cols: uint16(cfg.Width)})
	if err != nil {
		return nil, fmt.Errorf("tuitest: start program: %w", err)
	}
	s := &session{cmd: cmd, ptmx: ptmx, output: &screenBuffer{}, drained: make(chan struct{})}
	go s.pump()
	return s, nil
}

// pump copies PTY output into the buffer and answers terminal queries until
// the PTY is closed.
func (s *session) pump() {
	defer close(s.drained)
	responder := newTerminalResponder(s.ptmx)
	chunk := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(chunk)
		if n > 0 {
			responder.Process(chunk[:n])
			_, _ = s.output.Write(chunk[:n])
		}
		if err != nil {
			return
		}
	}
}

func (s *session) play(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		if step.Delay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("tuitest: step %d: %w", i, ctx.Err())
			case <-time.After(step.Delay):
			}
		}
		if step.WaitFor != "" {
			if err := s.waitForText(ctx, step.WaitFor); err != nil {
				return fmt.Errorf("tuitest: step %d: %w", i, err)
			}
		}
		if len(step.Input) > 0 {
			if _, err := s.ptmx.Write(step.Input); err != nil {
				return fmt.Errorf("tuitest: step %d: write input: %w", i, err)
			}
		}
	}
	return nil
}

func (s *session) waitForText(ctx context.Context, text string) error {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for !s.output.Contains(text) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %q: %w", text, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (s *session) wait(ctx context.Context, cfg Config) error {
	exited := make(chan error, 1)
	go func() { exited <- s.cmd.Wait() }()

	select {
	case err := <-exited:
		if err == nil || exitAllowed(err, cfg) {
			return nil
		}
		return fmt.Errorf("tuitest: program exited with error: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("tuitest: timeout waiting for program exit: %w", ctx.Err())
	}
}

// close releases the PTY and waits for the reader to drain.
func (s *session) close() {
	s.once.Do(func() {
		_ = s.ptmx.Close()
		<-s.drained
	})
}

func exitAllowed(err error, cfg Config) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	for _, code := range cfg.AllowedExitCodes {
		if exitErr.ExitCode() == code {
			return true
		}
	}
	return cfg.AllowInterrupt && strings.Contains(exitErr.Error(), "signal: interrupt")
}

// buildEnv appends extra to the inherited environment and fills in a colour
// terminal and a UTF-8 locale when the caller has none.
func buildEnv(extra []string) []string {
	env := append(os.Environ(), extra...)
	defaults := map[string]string{"TERM": "xterm-256color", "LANG": "C.UTF-8"}
	for _, entry := range env {
		name, _, _ := strings.Cut(entry, "=")
		delete(defaults, name)
	}
	for name, value := range defaults {
		env = append(env, name+"="+value)
	}
	return env
}

var (
	// KeyEnter sends a carriage return.
	KeyEnter = []byte{'\r'}
	// KeyCtrlC interrupts the program.
	KeyCtrlC = []byte{3}
	// KeyCtrlT opens the browser settings.
	KeyCtrlT = []byte{20}
	// KeyEsc steps back one screen.
	KeyEsc = []byte{27}
	// KeyUp and KeyDown move list selections.
	KeyUp   = []byte("\x1b[A")
	KeyDown = []byte("\x1b[B")
)
