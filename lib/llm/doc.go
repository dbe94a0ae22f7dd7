// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm is the HTTP layer between executor backends and model
// APIs that speak either the Anthropic Messages format or the OpenAI
// Chat Completions format.
//
// [Provider] offers a blocking [Provider.Complete] and a streaming
// [Provider.Stream]. Streams are Server-Sent Events parsed by
// [SSEScanner]; [EventStream] yields text deltas as they arrive and
// accumulates the final [Response], including the usage report that
// executors feed back into their token estimators.
//
// Providers are text-only: a conversation is a system string plus
// alternating user and assistant messages. The OpenAI implementation
// is also the client for local inference servers (llama.cpp, vLLM,
// Ollama) that expose the same wire format, which is how on-device
// models are driven.
//
// Credentials are attached per request from an [Endpoint]. Transport
// concerns (timeouts, proxies, TLS) belong to the caller's
// [http.Client].
package llm
