//go:build linux

package main

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/sys/unix"
)

// ReadLine prompts and returns one line without its newline. Ctrl-D on an
// empty line returns io.EOF.
func (r *lineReader) ReadLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		line, err := r.readPlain(prompt)
		if err == nil {
			r.remember(line)
		}
		return line, err
	}

	fd := int(os.Stdin.Fd())
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return r.readPlain(prompt)
	}
	raw := *saved
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() { _ = unix.IoctlSetTermios(fd, unix.TCSETS, saved) }()

	ed := &editState{out: r.out, prompt: prompt, history: r.history, histPos: len(r.history)}
	_, _ = io.WriteString(r.out, prompt)

	for {
		b, err := r.in.ReadByte()
		if err != nil {
			return "", err
		}
		done, err := ed.feed(b)
		if err != nil {
			return "", err
		}
		if done {
			line := string(ed.line)
			r.remember(line)
			return line, nil
		}
	}
}

// editState is the in-progress line of a raw-mode read.
type editState struct {
	out    io.Writer
	prompt string
	line   []rune
	cursor int

	history  []string
	histPos  int
	browsing bool
	draft    string

	esc    int // 0 none, 1 after ESC, 2 inside CSI
	escSeq []byte

	pending []byte // partial UTF-8 sequence
}

func (e *editState) redraw() {
	_, _ = fmt.Fprintf(e.out, "\r%s%s\x1b[K", e.prompt, string(e.line))
	if e.cursor < len(e.line) {
		_, _ = fmt.Fprintf(e.out, "\r%s%s", e.prompt, string(e.line[:e.cursor]))
	}
}

func (e *editState) setLine(s string) {
	e.line = []rune(s)
	e.cursor = len(e.line)
	e.redraw()
}

// feed consumes one input byte and reports whether the line is complete.
// Multi-byte UTF-8 input is assembled by insertByte.
func (e *editState) feed(b byte) (bool, error) {
	switch e.esc {
	case 1:
		if b == '[' || b == 'O' {
			e.esc = 2
			e.escSeq = e.escSeq[:0]
		} else {
			e.esc = 0
			e.meta(b)
		}
		return false, nil
	case 2:
		e.escSeq = append(e.escSeq, b)
		if b >= 0x40 && b <= 0x7e {
			e.esc = 0
			e.csi(string(e.escSeq))
		}
		return false, nil
	}

	switch b {
	case '\r', '\n':
		_, _ = io.WriteString(e.out, "\n")
		return true, nil
	case 0x04: // ctrl-d
		if len(e.line) == 0 {
			_, _ = io.WriteString(e.out, "\n")
			return false, io.EOF
		}
		e.deleteAt(e.cursor)
	case 0x03: // ctrl-c
		_, _ = io.WriteString(e.out, "^C\n")
		return false, io.EOF
	case 0x7f, 0x08:
		if e.cursor > 0 {
			e.cursor--
			e.deleteAt(e.cursor)
		}
	case 0x01: // ctrl-a
		e.cursor = 0
		e.redraw()
	case 0x05: // ctrl-e
		e.cursor = len(e.line)
		e.redraw()
	case 0x0b: // ctrl-k
		e.line = e.line[:e.cursor]
		e.redraw()
	case 0x15: // ctrl-u
		e.line = append(e.line[:0], e.line[e.cursor:]...)
		e.cursor = 0
		e.redraw()
	case 0x17: // ctrl-w
		start := e.wordStart()
		e.line = append(e.line[:start], e.line[e.cursor:]...)
		e.cursor = start
		e.redraw()
	case 0x1b:
		e.esc = 1
	default:
		if b >= 0x20 {
			e.insertByte(b)
		}
	}
	return false, nil
}

func (e *editState) meta(b byte) {
	switch b {
	case 'b':
		e.cursor = e.wordStart()
		e.redraw()
	case 'f':
		e.cursor = e.wordEnd()
		e.redraw()
	}
}

func (e *editState) csi(seq string) {
	switch seq {
	case "A":
		if len(e.history) == 0 {
			return
		}
		if !e.browsing {
			e.draft = string(e.line)
			e.browsing = true
			e.histPos = len(e.history)
		}
		if e.histPos > 0 {
			e.histPos--
			e.setLine(e.history[e.histPos])
		}
	case "B":
		if !e.browsing {
			return
		}
		if e.histPos < len(e.history)-1 {
			e.histPos++
			e.setLine(e.history[e.histPos])
			return
		}
		e.histPos = len(e.history)
		e.browsing = false
		e.setLine(e.draft)
	case "C":
		if e.cursor < len(e.line) {
			e.cursor++
			e.redraw()
		}
	case "D":
		if e.cursor > 0 {
			e.cursor--
			e.redraw()
		}
	case "H", "1~":
		e.cursor = 0
		e.redraw()
	case "F", "4~":
		e.cursor = len(e.line)
		e.redraw()
	case "3~":
		e.deleteAt(e.cursor)
	case "1;5D":
		e.cursor = e.wordStart()
		e.redraw()
	case "1;5C":
		e.cursor = e.wordEnd()
		e.redraw()
	}
}

func (e *editState) insertByte(b byte) {
	e.pending = append(e.pending, b)
	if !utf8.FullRune(e.pending) {
		return
	}
	r, _ := utf8.DecodeRune(e.pending)
	e.pending = e.pending[:0]
	e.line = append(e.line, 0)
	copy(e.line[e.cursor+1:], e.line[e.cursor:])
	e.line[e.cursor] = r
	e.cursor++
	e.redraw()
}

func (e *editState) deleteAt(i int) {
	if i < 0 || i >= len(e.line) {
		return
	}
	e.line = append(e.line[:i], e.line[i+1:]...)
	e.redraw()
}

func isSpaceRune(r rune) bool { return r == ' ' || r == '\t' }

func (e *editState) wordStart() int {
	i := e.cursor
	for i > 0 && isSpaceRune(e.line[i-1]) {
		i--
	}
	for i > 0 && !isSpaceRune(e.line[i-1]) {
		i--
	}
	return i
}

func (e *editState) wordEnd() int {
	i := e.cursor
	for i < len(e.line) && isSpaceRune(e.line[i]) {
		i++
	}
	for i < len(e.line) && !isSpaceRune(e.line[i]) {
		i++
	}
	return i
}
