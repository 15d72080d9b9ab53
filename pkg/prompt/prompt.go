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

// Package prompt binds template text against workflow state.
//
// Templates use <<VAR>> placeholders. Binding is pure: the same template and
// variables always produce the same output, except for CURRENT_TIME which the
// binder injects itself.
package prompt

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cooragent/cooragent/pkg/llms"
)

//go:embed templates/*.md
var defaultTemplates embed.FS

// timeFormat matches strftime "%a %b %d %Y %H:%M:%S %z".
const timeFormat = "Mon Jan 02 2006 15:04:05 -0700"

var placeholderPattern = regexp.MustCompile(`<<([^<>]+)>>`)

// TemplateError reports a placeholder with no bound value.
type TemplateError struct {
	Var string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template references unbound variable %q", e.Var)
}

// Loader resolves named templates, preferring overrides on disk over the
// embedded defaults.
type Loader struct {
	overrideDir string
}

// NewLoader creates a loader. overrideDir may be empty to use embedded
// templates only.
func NewLoader(overrideDir string) *Loader {
	return &Loader{overrideDir: overrideDir}
}

// Get returns the template text for the given name.
func (l *Loader) Get(name string) (string, error) {
	if l.overrideDir != "" {
		path := filepath.Join(l.overrideDir, name+".md")
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}
	data, err := defaultTemplates.ReadFile("templates/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("unknown prompt template %q: %w", name, err)
	}
	return string(data), nil
}

// Vars lists the placeholder names a template references, in order of first
// appearance.
func Vars(template string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Render substitutes every <<VAR>> placeholder from vars. CURRENT_TIME is
// bound automatically unless the caller provides it. A placeholder missing
// from vars yields a *TemplateError.
func Render(template string, vars map[string]string) (string, error) {
	var unbound *TemplateError
	result := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := strings.Trim(m, "<>")
		if v, ok := vars[name]; ok {
			return v
		}
		if name == "CURRENT_TIME" {
			return time.Now().Format(timeFormat)
		}
		if unbound == nil {
			unbound = &TemplateError{Var: name}
		}
		return m
	})
	if unbound != nil {
		return "", unbound
	}
	return result, nil
}

// Apply renders the template into a system message and prepends it to the
// conversation history.
func Apply(template string, vars map[string]string, history []llms.Message) ([]llms.Message, error) {
	system, err := Render(template, vars)
	if err != nil {
		return nil, err
	}
	messages := make([]llms.Message, 0, len(history)+1)
	messages = append(messages, llms.Message{Role: "system", Content: system})
	messages = append(messages, history...)
	return messages, nil
}
