// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

type exitError int

func (code exitError) Error() string { return fmt.Sprintf("exit %d", int(code)) }
func (code exitError) ExitCode() int { return int(code) }

func TestReport(t *testing.T) {
	t.Parallel()

	var output bytes.Buffer
	if code := Report(&output, errors.New("no endpoint configured")); code != 1 {
		t.Errorf("Report = %d, want 1", code)
	}
	if got := output.String(); got != "error: no endpoint configured\n" {
		t.Errorf("output = %q", got)
	}

	output.Reset()
	wrapped := fmt.Errorf("chat: %w", exitError(130))
	if code := Report(&output, wrapped); code != 130 {
		t.Errorf("Report of an exit code error = %d, want 130", code)
	}
	if output.Len() != 0 {
		t.Errorf("exit code error printed %q", output.String())
	}
}
