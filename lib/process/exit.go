// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is implemented by errors that carry an exit status.
type ExitCoder interface {
	ExitCode() int
}

// Fatal reports err to stderr and exits with the status [Report]
// selects.
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report returns the exit status for err. An [ExitCoder] anywhere in
// the chain supplies the status and nothing is printed: the command
// has already written its own output. Any other error is written to
// writer as "error: err" and maps to 1.
func Report(writer io.Writer, err error) int {
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(writer, "error: %v\n", err)
	return 1
}
