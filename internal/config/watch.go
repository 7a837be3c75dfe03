// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"
)

// ReloadDebounce is how long the file must stay quiet before it is reloaded.
// Editors often write a file in several steps.
const ReloadDebounce = 250 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes each
// successfully validated result to onChange. A file that fails to load is
// logged and ignored, so the previous configuration stays in effect.
//
// Watch returns once the watcher is running; it stops when ctx is done.
// onChange is called from the watcher goroutine.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: atomic saves replace the file, which drops a
	// watch on the file itself
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	go watchLoop(ctx, watcher, absPath, onChange)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, onChange func(*Config)) {
	defer watcher.Close()

	logger := log.WithField("path", path)
	timer := time.NewTimer(ReloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(ReloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithError(err).Warn("config watcher error")

		case <-timer.C:
			cfg, err := LoadFromPath(path)
			if err != nil {
				logger.WithError(err).Warn("config reload failed, keeping previous settings")
				continue
			}
			logger.Info("config reloaded")
			onChange(cfg)
		}
	}
}
