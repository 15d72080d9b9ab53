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

package workflow

import (
	"sync"

	"github.com/cooragent/cooragent/pkg/llms"
)

// defaultSessionTurns is how many user/assistant turns carry over between
// runs of the same user.
const defaultSessionTurns = 3

// SessionCache keeps a per-user rolling window of recent turns, in memory
// only. It is cleared on process restart.
type SessionCache struct {
	mu    sync.Mutex
	turns int
	users map[string][]llms.Message
}

func NewSessionCache(turns int) *SessionCache {
	if turns <= 0 {
		turns = defaultSessionTurns
	}
	return &SessionCache{turns: turns, users: make(map[string][]llms.Message)}
}

// History returns the cached messages for a user, oldest first.
func (c *SessionCache) History(userID string) []llms.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached := c.users[userID]
	out := make([]llms.Message, len(cached))
	copy(out, cached)
	return out
}

// Append records messages and trims the window to the last N turns, where a
// turn is one user plus one assistant message.
func (c *SessionCache) Append(userID string, messages ...llms.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached := append(c.users[userID], messages...)
	if limit := c.turns * 2; len(cached) > limit {
		cached = cached[len(cached)-limit:]
	}
	c.users[userID] = cached
}

// Clear drops one user's history.
func (c *SessionCache) Clear(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, userID)
}
