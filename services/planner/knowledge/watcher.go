// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces editor save bursts into one reload.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a FileKnowledge when its file changes on disk.
//
// # Description
//
// Watches the directory that holds the document rather than the file
// itself, so editors that save by rename-and-replace are still observed.
// Events for other files in the directory are ignored. Bursts of events
// within the debounce window produce a single reload.
//
// # Thread Safety
//
// Start should only be called once. Stop is safe to call multiple times.
type Watcher struct {
	knowledge *FileKnowledge
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	logger    *slog.Logger
	onReload  func(error)
}

// NewWatcher creates a watcher for k's backing file.
//
// # Inputs
//
//   - k: Knowledge loaded with Load. Parsed documents have no file.
//   - onReload: Optional callback after each reload attempt.
//
// # Outputs
//
//   - *Watcher: Ready-to-start watcher.
//   - error: Non-nil if k has no file or the watcher cannot be created.
func NewWatcher(k *FileKnowledge, logger *slog.Logger, onReload func(error)) (*Watcher, error) {
	if k.Path() == "" {
		return nil, errors.New("knowledge has no backing file")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(k.Path())); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &Watcher{
		knowledge: k,
		watcher:   w,
		debounce:  DefaultDebounce,
		logger:    logger,
		onReload:  onReload,
	}, nil
}

// Start processes file events until ctx is cancelled or the watcher is
// stopped. Should be run in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	target := filepath.Clean(w.knowledge.Path())
	var timer *time.Timer
	var fire <-chan time.Time

	w.logger.Debug("watching knowledge", slog.String("path", target))

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("knowledge watcher error", slog.String("error", err.Error()))

		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	err := w.knowledge.Reload()
	if err != nil {
		w.logger.Warn("knowledge reload failed, keeping previous document",
			slog.String("path", w.knowledge.Path()),
			slog.String("error", err.Error()),
		)
	} else {
		w.logger.Info("knowledge reloaded", slog.String("path", w.knowledge.Path()))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// Stop releases the underlying watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
