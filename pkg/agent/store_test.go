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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	def := testDef("roundtrip", "u1")
	require.NoError(t, store.Save(def))

	loaded, err := store.Load("roundtrip")
	require.NoError(t, err)
	assert.Equal(t, def, loaded)
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreLoadAllSkipsInvalidRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(testDef("good_one", "u1")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))
	// Valid JSON but fails definition validation.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invalid.json"), []byte(`{"agent_name":"invalid"}`), 0o644))

	defs, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "good_one", defs[0].AgentName)
}

func TestStoreDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(testDef("doomed", "u1")))
	require.NoError(t, store.Delete("doomed"))
	require.ErrorIs(t, store.Delete("doomed"), ErrNotFound)
}

func TestDefinitionClone(t *testing.T) {
	def := testDef("cloneme", "u1")
	def.SelectedTools = []ToolRef{{Name: "tavily", InputSchema: map[string]any{"type": "object"}}}

	clone := def.Clone()
	clone.SelectedTools[0].InputSchema["type"] = "mutated"
	clone.SelectedTools[0].Name = "other"

	assert.Equal(t, "tavily", def.SelectedTools[0].Name)
	assert.Equal(t, "object", def.SelectedTools[0].InputSchema["type"])
}
