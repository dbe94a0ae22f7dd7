// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the entrypoint error handler for lmsession
// binaries. main calls run(), and any error it returns is reported to
// stderr by [Fatal] before the structured logger exists or after it
// has been torn down.
//
// Errors that implement [ExitCoder] choose their own exit status and
// are not printed. A command that has already reported its outcome,
// such as an unavailable model, exits non-zero this way.
package process
