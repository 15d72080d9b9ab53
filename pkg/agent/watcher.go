// Copyright 2025 The CoorAgent Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/cooragent/cooragent/pkg/logger"
)

// Watcher hot-reloads agent records edited out of band. Registry writes go
// through the same store directory, so the watcher also observes them; the
// reload is idempotent in that case.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
}

func NewWatcher(registry *Registry) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(registry.store.Dir()); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch agents directory: %w", err)
	}
	return &Watcher{registry: registry, watcher: w}, nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	log := logger.GetLogger()
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name, isRecord := recordName(event.Name)
			if !isRecord {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
				if err := w.registry.replaceFromDisk(name); err != nil {
					log.Warn("Failed to reload agent record", "agent", name, "error", err)
				} else {
					log.Debug("Reloaded agent record", "agent", name)
				}
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				w.registry.dropFromIndex(name)
				log.Debug("Dropped agent record", "agent", name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("Agent watcher error", "error", err)
		}
	}
}

func recordName(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".json") {
		return "", false
	}
	return strings.TrimSuffix(base, ".json"), true
}
