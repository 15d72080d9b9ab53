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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cooragent/cooragent/pkg/logger"
)

// Store persists one JSON record per agent under a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create agents directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Save writes the definition atomically via a temp file rename.
func (s *Store) Save(def *Definition) error {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode agent %s: %w", def.AgentName, err)
	}
	tmp := s.path(def.AgentName) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write agent %s: %w", def.AgentName, err)
	}
	if err := os.Rename(tmp, s.path(def.AgentName)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write agent %s: %w", def.AgentName, err)
	}
	return nil
}

// Load reads a single agent record by name.
func (s *Store) Load(name string) (*Definition, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read agent %s: %w", name, err)
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: agent record %s is not valid JSON: %v", ErrValidation, name, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadAll scans the store directory in lexical order. Records that fail to
// parse or validate are skipped with a warning so one bad file cannot keep
// the process from booting.
func (s *Store) LoadAll() ([]*Definition, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan agents directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)

	log := logger.GetLogger()
	var defs []*Definition
	for _, name := range names {
		def, err := s.Load(name)
		if err != nil {
			log.Warn("Skipping invalid agent record", "agent", name, "error", err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Delete removes the durable record. Deleting an absent record is ErrNotFound.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to remove agent %s: %w", name, err)
	}
	return nil
}

// Dir returns the store directory, used by the hot-reload watcher.
func (s *Store) Dir() string { return s.dir }
