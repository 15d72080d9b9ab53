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
	"fmt"
	"regexp"
	"sync"

	"github.com/cooragent/cooragent/pkg/config"
	"github.com/cooragent/cooragent/pkg/tools"
)

// Registry is the shared agent index. Agents are stored in a single flat map
// keyed by agent_name to enforce global uniqueness; visibility rules apply on
// read. Writes flush to the durable store before updating the index, under an
// exclusive lock. Resolved definitions are snapshots: an in-flight run is not
// affected by concurrent edits.
type Registry struct {
	mu    sync.RWMutex
	index map[string]*Definition
	order []string

	store  *Store
	tools  *tools.Registry
	policy config.CoopPolicy
	admins map[string]bool
}

func NewRegistry(store *Store, toolReg *tools.Registry, cfg config.RegistryConfig) *Registry {
	policy := cfg.CoopPolicy
	if policy == "" {
		policy = config.CoopPolicyGrant
	}
	admins := make(map[string]bool, len(cfg.AdminUsers))
	for _, u := range cfg.AdminUsers {
		admins[u] = true
	}
	return &Registry{
		index:  make(map[string]*Definition),
		store:  store,
		tools:  toolReg,
		policy: policy,
		admins: admins,
	}
}

// Load populates the index from the durable store. Called once at boot.
func (r *Registry) Load() error {
	defs, err := r.store.LoadAll()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		if _, exists := r.index[def.AgentName]; !exists {
			r.order = append(r.order, def.AgentName)
		}
		r.index[def.AgentName] = def
	}
	return nil
}

// snapshotTools resolves every selected tool against the tool registry and
// captures its current schema into the definition.
func (r *Registry) snapshotTools(def *Definition) error {
	for i, ref := range def.SelectedTools {
		t, ok := r.tools.Get(ref.Name)
		if !ok {
			return fmt.Errorf("%w: tool %q is not registered", ErrSchemaMismatch, ref.Name)
		}
		def.SelectedTools[i] = ToolRef{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		}
	}
	return nil
}

// Create validates the definition, snapshots its tool schemas, writes the
// durable record and publishes the binding.
func (r *Registry) Create(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	def = def.Clone()
	if err := r.snapshotTools(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[def.AgentName]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, def.AgentName)
	}
	if err := r.store.Save(def); err != nil {
		return err
	}
	r.index[def.AgentName] = def
	r.order = append(r.order, def.AgentName)
	return nil
}

// Get returns a snapshot of the named agent.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return def.Clone(), nil
}

// Resolve returns the named agent if the caller may use it. viaCoop marks
// that the caller listed the agent explicitly in coop_agents, which grants
// access to foreign agents when the coop policy allows it.
func (r *Registry) Resolve(name, userID string, viaCoop bool) (*Definition, error) {
	def, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if def.Shared() || def.UserID == userID {
		return def, nil
	}
	if viaCoop && r.policy == config.CoopPolicyGrant {
		return def, nil
	}
	return nil, fmt.Errorf("%w: agent %s belongs to another user", ErrForbidden, name)
}

// List returns snapshots of the agents visible to userID, optionally filtered
// by a regular expression on agent_name. Ordering follows insertion order of
// discovery and is stable across calls.
func (r *Registry) List(userID, pattern string) ([]*Definition, error) {
	var matcher *regexp.Regexp
	if pattern != "" {
		var err error
		matcher, err = regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: bad match pattern: %v", ErrValidation, err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Definition
	for _, name := range r.order {
		def := r.index[name]
		if userID != "" && !def.Shared() && def.UserID != userID {
			continue
		}
		if matcher != nil && !matcher.MatchString(def.AgentName) {
			continue
		}
		out = append(out, def.Clone())
	}
	return out, nil
}

// Edit replaces an existing definition in full. When the caller omits
// selected_tools, the previous tool bindings and their schema snapshots are
// preserved; when it supplies them, the schemas are re-snapshotted from the
// tool registry.
func (r *Registry) Edit(def *Definition) error {
	def = def.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.index[def.AgentName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, def.AgentName)
	}
	// An edit never transfers ownership.
	def.UserID = current.UserID
	if def.SelectedTools == nil {
		def.SelectedTools = current.Clone().SelectedTools
	} else if err := r.snapshotTools(def); err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if err := r.store.Save(def); err != nil {
		return err
	}
	r.index[def.AgentName] = def
	return nil
}

// Remove deletes an agent. Share-owned agents may only be removed by an
// administrator.
func (r *Registry) Remove(userID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, exists := r.index[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if def.Shared() && !r.admins[userID] {
		return fmt.Errorf("%w: only administrators may remove shared agent %s", ErrForbidden, name)
	}
	if !def.Shared() && def.UserID != userID && !r.admins[userID] {
		return fmt.Errorf("%w: agent %s belongs to another user", ErrForbidden, name)
	}
	if err := r.store.Delete(name); err != nil {
		return err
	}
	delete(r.index, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// DefaultAgents returns the built-in share-owned roster.
func (r *Registry) DefaultAgents() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Definition
	for _, name := range r.order {
		def := r.index[name]
		if def.Shared() {
			out = append(out, def.Clone())
		}
	}
	return out
}

// replaceFromDisk reloads one record from the store after an out-of-band
// change, keeping the agent's position in the listing order.
func (r *Registry) replaceFromDisk(name string) error {
	def, err := r.store.Load(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[name]; !exists {
		r.order = append(r.order, name)
	}
	r.index[name] = def
	return nil
}

// dropFromIndex removes an agent from the in-memory index only, used when the
// durable record disappeared out of band.
func (r *Registry) dropFromIndex(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[name]; !exists {
		return
	}
	delete(r.index, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
