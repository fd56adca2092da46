// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for navstream.
//
// # Key Types
//
//   - Config: complete configuration ([server], [session], [cache], [log], [ui])
//   - ValidationError, ValidateErrors: field-level validation failures
//   - Watcher: reloads the file on change using fsnotify
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (NAVSTREAM_*)
//   - ~/.navstream/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w, err := config.NewWatcher(path, 0, func(c *config.Config) {
//	    applyLogLevel(c.Log.Level)
//	}, logger)
package config
