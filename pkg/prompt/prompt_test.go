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

package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooragent/cooragent/pkg/llms"
)

func TestVars(t *testing.T) {
	template := "Hi <<NAME>>, team <<TEAM_MEMBERS>>, again <<NAME>>."
	assert.Equal(t, []string{"NAME", "TEAM_MEMBERS"}, Vars(template))
	assert.Nil(t, Vars("no placeholders here"))
}

func TestRender(t *testing.T) {
	out, err := Render("Hello <<WHO>>!", map[string]string{"WHO": "world"})
	require.NoError(t, err)
	assert.Equal(t, "Hello world!", out)
}

func TestRenderBindsCurrentTime(t *testing.T) {
	out, err := Render("now: <<CURRENT_TIME>>", nil)
	require.NoError(t, err)
	assert.NotEqual(t, "now: <<CURRENT_TIME>>", out)
	assert.NotContains(t, out, "<<")
}

func TestRenderUnknownVariableFails(t *testing.T) {
	_, err := Render("Hello <<NOBODY>>!", map[string]string{"WHO": "world"})
	require.Error(t, err)
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "NOBODY", te.Var)
}

func TestRenderKeepsLiteralBraces(t *testing.T) {
	out, err := Render(`{"next": "<<AGENT>>"}`, map[string]string{"AGENT": "coder"})
	require.NoError(t, err)
	assert.Equal(t, `{"next": "coder"}`, out)
}

func TestApply(t *testing.T) {
	history := []llms.Message{{Role: "user", Content: "hi"}}
	messages, err := Apply("system for <<USER>>", map[string]string{"USER": "u1"}, history)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "system for u1", messages[0].Content)
	assert.Equal(t, history[0], messages[1])
}

func TestLoaderEmbeddedDefaults(t *testing.T) {
	loader := NewLoader("")
	for _, name := range []string{"coordinator", "planner", "publisher", "agent_factory", "researcher", "coder", "browser", "reporter"} {
		text, err := loader.Get(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, text, name)
	}
	_, err := loader.Get("nonexistent")
	assert.Error(t, err)
}

func TestLoaderOverrideDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coordinator.md"), []byte("custom"), 0o644))

	loader := NewLoader(dir)
	text, err := loader.Get("coordinator")
	require.NoError(t, err)
	assert.Equal(t, "custom", text)

	// Names without an override fall back to the embedded template.
	text, err = loader.Get("planner")
	require.NoError(t, err)
	assert.Contains(t, text, "<<TEAM_MEMBERS>>")
}
