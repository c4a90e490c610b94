// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is a single Server-Sent Event.
type SSEEvent struct {
	// Type is the "event:" field, empty for the default event type.
	Type string

	// Data joins the event's "data:" lines with newlines.
	Data string
}

// SSEScanner reads Server-Sent Events from an [io.Reader]. Events are
// delimited by blank lines; comment lines and unknown fields are
// ignored.
//
//	scanner := NewSSEScanner(reader)
//	for scanner.Next() {
//	    event := scanner.Event()
//	}
//	if err := scanner.Err(); err != nil {
//	    // handle error
//	}
type SSEScanner struct {
	reader  *bufio.Reader
	current SSEEvent
	err     error

	eventType string
	data      []string
	hasData   bool
}

// NewSSEScanner creates a scanner that reads SSE events from reader.
func NewSSEScanner(reader io.Reader) *SSEScanner {
	return &SSEScanner{
		reader: bufio.NewReaderSize(reader, 64*1024),
	}
}

// Next advances to the next event. Returns false at end of stream or
// on error; call [SSEScanner.Err] to tell them apart.
func (scanner *SSEScanner) Next() bool {
	if scanner.err != nil {
		return false
	}
	scanner.current = SSEEvent{}

	for {
		line, err := scanner.reader.ReadString('\n')
		if err != nil && line == "" {
			scanner.err = err
			// A final event without a trailing blank line still counts.
			return err == io.EOF && scanner.flush()
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if scanner.flush() {
				return true
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			scanner.data = append(scanner.data, value)
			scanner.hasData = true
		case "event":
			scanner.eventType = value
		}
	}
}

// flush moves the pending fields into current. Returns false when no
// data line was seen since the last boundary.
func (scanner *SSEScanner) flush() bool {
	defer func() {
		scanner.eventType = ""
		scanner.data = scanner.data[:0]
		scanner.hasData = false
	}()
	if !scanner.hasData {
		return false
	}
	scanner.current = SSEEvent{
		Type: scanner.eventType,
		Data: strings.Join(scanner.data, "\n"),
	}
	return true
}

// Event returns the most recently parsed event.
func (scanner *SSEScanner) Event() SSEEvent {
	return scanner.current
}

// Err returns the first non-EOF error encountered during scanning.
func (scanner *SSEScanner) Err() error {
	if scanner.err == io.EOF {
		return nil
	}
	return scanner.err
}
