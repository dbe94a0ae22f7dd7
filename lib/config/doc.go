// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for lmsession.
//
// Configuration is loaded from a single file specified by either the
// LMSESSION_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. Files ending in .json or .jsonc are
// JSON with comments and trailing commas; everything else is YAML.
// Unknown keys are errors in both formats.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override the logging and
// snapshot settings when [Config].Environment matches. Production
// defaults to JSON logs.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${LMSESSION_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values; the remote
// API key is read from the variable remote.api_key_env names so it
// never sits in the file.
//
// [Config.Validate] reports every problem at once.
//
// This package depends on no other lmsession packages.
package config
