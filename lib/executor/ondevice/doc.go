// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ondevice implements [executor.Backend] for a model installed
// on the local machine and served by a local OpenAI-compatible runtime
// (llama.cpp, vLLM, Ollama).
//
// Eligibility is decided in a fixed order: whether the capability is
// enabled, recent crash and timeout counts, whether the model file is
// installed, whether its BLAKE3 digest matches, and whether the model
// directory's filesystem has the configured free space. A missing
// model with a download URL is "to be installed"; [Backend.Install]
// streams it over HTTP, reporting progress to observers, decompresses
// zstd or lz4 archives by their magic number, verifies the digest, and
// renames it into place before announcing the availability change.
//
// Executions that fail in transport count as crashes, and executions
// that hit their deadline count as timeouts. Either kind reaching its
// limit within the failure window makes the backend ineligible until
// older failures age out on the injected clock.
package ondevice
