// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// WriteLines writes a JSONL fixture to path, creating parent
// directories. A string value is written verbatim, which is how tests
// plant malformed lines; anything else is JSON-encoded.
func WriteLines(t TB, path string, lines ...any) {
	t.Helper()
	var buffer bytes.Buffer
	for _, line := range lines {
		if raw, ok := line.(string); ok {
			buffer.WriteString(raw)
			buffer.WriteByte('\n')
			continue
		}
		encoded, err := json.Marshal(line)
		if err != nil {
			t.Fatalf("encoding fixture line %v: %v", line, err)
		}
		buffer.Write(encoded)
		buffer.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating fixture directory: %v", err)
	}
	if err := os.WriteFile(path, buffer.Bytes(), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
}

// ReadLines returns the non-empty lines of the file at path.
func ReadLines(t TB, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
