// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"context"
	"sync"
)

// bufferedExporter collects entries in memory.
type bufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

func newBufferedExporter() *bufferedExporter {
	return &bufferedExporter{}
}

func (e *bufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

func (e *bufferedExporter) Flush(context.Context) error { return nil }

func (e *bufferedExporter) Close() error { return nil }

// Entries returns a copy of the collected entries.
func (e *bufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LogEntry, len(e.entries))
	copy(out, e.entries)
	return out
}

func (e *bufferedExporter) Messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.entries))
	for i, entry := range e.entries {
		out[i] = entry.Message
	}
	return out
}

var _ LogExporter = (*bufferedExporter)(nil)
