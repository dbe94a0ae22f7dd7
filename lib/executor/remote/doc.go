// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote implements [executor.Backend] over a hosted model API
// reached through an [llm.Provider].
//
// A remote backend is eligible as soon as it is configured: there is
// nothing to download or validate. Token counts are estimates from a
// [contextwindow.CharEstimator] shared by all of the backend's
// sessions, calibrated from the input token counts the API reports at
// the end of each execution.
//
// Payload turns are mapped onto the provider's message shape: system
// turns join into the request's system string, and consecutive turns
// from the same role merge into one message, since the hosted APIs
// require user and assistant messages to alternate.
package remote
