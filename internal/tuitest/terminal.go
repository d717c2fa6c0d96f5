package tuitest

import (
	"bytes"
	"io"
)

// queryReply pairs a terminal query the program may emit with the answer a
// real emulator would send back on stdin.
type queryReply struct {
	query []byte
	reply []byte
}

var terminalReplies = []queryReply{
	{[]byte("\x1b[6n"), []byte("\x1b[1;1R")},
	{[]byte("\x1b[c"), []byte("\x1b[?62;22c")},
	{[]byte("\x1b]10;?\x07"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x07")},
	{[]byte("\x1b]10;?\x1b\\"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x1b\\")},
	{[]byte("\x1b]11;?\x07"), []byte("\x1b]11;rgb:0000/0000/0000\x07")},
	{[]byte("\x1b]11;?\x1b\\"), []byte("\x1b]11;rgb:0000/0000/0000\x1b\\")},
}

const (
	responderMaxBuffer = 256
	responderTail      = 64
)

// terminalResponder answers cursor and color queries so lipgloss and
// bubbletea do not stall waiting on a PTY that never replies.
type terminalResponder struct {
	w   io.Writer
	buf []byte
}

func newTerminalResponder(w io.Writer) *terminalResponder {
	return &terminalResponder{w: w, buf: make([]byte, 0, 128)}
}

func (tr *terminalResponder) Process(chunk []byte) {
	tr.buf = append(tr.buf, chunk...)
	for tr.answerNext() {
	}
	// Queries can span reads, so a short tail survives trimming.
	if len(tr.buf) > responderMaxBuffer {
		tr.buf = tr.buf[len(tr.buf)-responderTail:]
	}
}

// answerNext replies to the earliest pending query in the buffer and drops
// everything up to it.
func (tr *terminalResponder) answerNext() bool {
	first, firstIdx := -1, -1
	for i, qr := range terminalReplies {
		idx := bytes.Index(tr.buf, qr.query)
		if idx >= 0 && (firstIdx < 0 || idx < firstIdx) {
			first, firstIdx = i, idx
		}
	}
	if first < 0 {
		return false
	}
	qr := terminalReplies[first]
	tr.buf = tr.buf[firstIdx+len(qr.query):]
	_, _ = tr.w.Write(qr.reply)
	return true
}
