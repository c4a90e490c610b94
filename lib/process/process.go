// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is implemented by errors that carry their own exit status.
// A zero code exits quietly.
type ExitCoder interface {
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits. The status is 1
// unless err wraps an [ExitCoder].
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report writes err to output the way Fatal does and returns the exit
// status Fatal would use. Errors that carry an exit code of their own
// print nothing: the command already explained itself.
func Report(output io.Writer, err error) int {
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(output, "error: %v\n", err)
	return 1
}
