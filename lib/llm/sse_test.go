// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"strings"
	"testing"
)

func TestSSEScanner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []SSEEvent
	}{
		{
			name:  "typed events",
			input: "event: start\ndata: {\"a\":1}\n\nevent: ping\ndata: {}\n\n",
			want:  []SSEEvent{{Type: "start", Data: `{"a":1}`}, {Type: "ping", Data: "{}"}},
		},
		{
			name:  "multiple data lines",
			input: "data: line one\ndata: line two\n\n",
			want:  []SSEEvent{{Data: "line one\nline two"}},
		},
		{
			name:  "comments ignored",
			input: ": comment\nevent: test\ndata: hello\n: another\n\n",
			want:  []SSEEvent{{Type: "test", Data: "hello"}},
		},
		{
			name:  "empty data",
			input: "data:\n\n",
			want:  []SSEEvent{{Data: ""}},
		},
		{
			name:  "consecutive blanks",
			input: "\n\n\ndata: hello\n\n\n\n",
			want:  []SSEEvent{{Data: "hello"}},
		},
		{
			name:  "no trailing newline",
			input: "event: final\ndata: last event",
			want:  []SSEEvent{{Type: "final", Data: "last event"}},
		},
		{
			name:  "carriage returns",
			input: "event: test\r\ndata: hello\r\n\r\n",
			want:  []SSEEvent{{Type: "test", Data: "hello"}},
		},
		{
			name:  "openai chunks",
			input: "data: {\"choices\":[]}\n\ndata: [DONE]\n\n",
			want:  []SSEEvent{{Data: `{"choices":[]}`}, {Data: "[DONE]"}},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			scanner := NewSSEScanner(strings.NewReader(test.input))
			var got []SSEEvent
			for scanner.Next() {
				got = append(got, scanner.Event())
			}
			if err := scanner.Err(); err != nil {
				t.Fatalf("Err() = %v", err)
			}
			if len(got) != len(test.want) {
				t.Fatalf("got %d events %+v, want %d", len(got), got, len(test.want))
			}
			for i := range got {
				if got[i] != test.want[i] {
					t.Errorf("event %d = %+v, want %+v", i, got[i], test.want[i])
				}
			}
			if scanner.Next() {
				t.Error("Next() returned true after end of stream")
			}
		})
	}
}
