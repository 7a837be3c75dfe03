// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by rigchat packages.
//
//   - AtomicWriteFile: crash-safe file writing with fsync, used by the JSON
//     conversation store and config saving
//   - TruncateWidth, PadRight, StringWidth: display-width aware string
//     helpers for terminal tables, built on go-runewidth
//
// # Usage
//
//	title := util.PadRight(util.SingleLine(conv.Title), 40)
//	err := util.AtomicWriteFile(path, data, 0644)
package util
