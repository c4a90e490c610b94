// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// maxLineBytes bounds one pasted prompt on non-terminal input.
const maxLineBytes = 1 << 20

// lineReader reads prompts one line at a time.
type lineReader interface {
	// ShowPrompt runs on the loop's goroutine before each ReadLine,
	// which may run on another.
	ShowPrompt()
	ReadLine() (string, error)

	// recordsHistory reports whether the reader adds each line to the
	// prompt history itself.
	recordsHistory() bool

	// Close undoes terminal changes made by a ReadLine that is still
	// blocked. The loop calls it on exit, abandoning such a read.
	Close() error
}

// newLineReader returns a line editor with history browsing when input
// is a terminal, and a plain line scanner otherwise.
func newLineReader(input io.Reader, output io.Writer, prompt string, history term.History) lineReader {
	if file, ok := input.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		terminal := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{file, output}, prompt)
		if history != nil {
			terminal.History = history
		}
		return &terminalReader{fd: int(file.Fd()), terminal: terminal}
	}
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &scannerReader{scanner: scanner, output: output, prompt: prompt}
}

// terminalReader puts the terminal in raw mode only while a line is
// being edited, so streamed answers and Ctrl-C behave normally in
// between. Ctrl-C or Ctrl-D at the prompt ends input.
type terminalReader struct {
	fd       int
	terminal *term.Terminal

	mutex sync.Mutex
	// saved is the cooked state to return to, non-nil while raw.
	saved  *term.State
	closed bool
}

// ShowPrompt does nothing: the line editor draws its own prompt.
func (reader *terminalReader) ShowPrompt() {}

func (reader *terminalReader) ReadLine() (string, error) {
	reader.mutex.Lock()
	if reader.closed {
		reader.mutex.Unlock()
		return "", io.EOF
	}
	state, err := term.MakeRaw(reader.fd)
	if err != nil {
		reader.mutex.Unlock()
		return "", fmt.Errorf("chat: entering raw mode: %w", err)
	}
	reader.saved = state
	reader.mutex.Unlock()
	defer reader.restore()

	if width, height, err := term.GetSize(reader.fd); err == nil {
		reader.terminal.SetSize(width, height)
	}
	return reader.terminal.ReadLine()
}

func (reader *terminalReader) recordsHistory() bool { return true }

func (reader *terminalReader) Close() error {
	reader.mutex.Lock()
	reader.closed = true
	reader.mutex.Unlock()
	return reader.restore()
}

// restore leaves raw mode if the terminal is in it.
func (reader *terminalReader) restore() error {
	reader.mutex.Lock()
	defer reader.mutex.Unlock()
	if reader.saved == nil {
		return nil
	}
	err := term.Restore(reader.fd, reader.saved)
	reader.saved = nil
	if err != nil {
		return fmt.Errorf("chat: restoring terminal: %w", err)
	}
	return nil
}

type scannerReader struct {
	scanner *bufio.Scanner
	output  io.Writer
	prompt  string
}

func (reader *scannerReader) ShowPrompt() {
	fmt.Fprint(reader.output, reader.prompt)
}

func (reader *scannerReader) ReadLine() (string, error) {
	if !reader.scanner.Scan() {
		if err := reader.scanner.Err(); err != nil {
			return "", fmt.Errorf("chat: reading input: %w", err)
		}
		return "", io.EOF
	}
	return reader.scanner.Text(), nil
}

func (reader *scannerReader) recordsHistory() bool { return false }

func (reader *scannerReader) Close() error { return nil }
