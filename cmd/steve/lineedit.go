package main

import (
	"bufio"
	"io"
	"os"
	"strings"
)

var stdinIsTTY = isTTY

func isTTY() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// lineReader reads user turns for the talk command. On a terminal it edits
// in raw mode with history; otherwise it reads plain lines.
type lineReader struct {
	in      *bufio.Reader
	out     io.Writer
	history []string
}

func newLineReader(in io.Reader, out io.Writer) *lineReader {
	return &lineReader{in: bufio.NewReader(in), out: out}
}

// readPlain returns io.EOF only when no text was read.
func (r *lineReader) readPlain(prompt string) (string, error) {
	_, _ = io.WriteString(r.out, prompt)
	s, err := r.in.ReadString('\n')
	if err != nil {
		if err == io.EOF && s != "" {
			return trimTrailingNewline(s), nil
		}
		return "", err
	}
	return trimTrailingNewline(s), nil
}

func (r *lineReader) remember(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if n := len(r.history); n > 0 && r.history[n-1] == line {
		return
	}
	r.history = append(r.history, line)
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
