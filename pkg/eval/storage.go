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

package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResultStore lays out evaluation artifacts under one root:
// results/<run_id>.json, reports/<run_id>.md and
// transcripts/<run_id>/<task_id>.json.
type ResultStore struct {
	root string
}

func NewResultStore(root string) (*ResultStore, error) {
	for _, sub := range []string{"results", "reports", "transcripts"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create evaluation directory: %w", err)
		}
	}
	return &ResultStore{root: root}, nil
}

// SaveSummary persists the run summary, without per-task transcripts.
func (s *ResultStore) SaveSummary(summary *RunSummary) error {
	trimmed := *summary
	trimmed.Results = make([]TaskResult, len(summary.Results))
	for i, r := range summary.Results {
		r.Events = nil
		trimmed.Results[i] = r
	}
	return s.writeJSON(filepath.Join(s.root, "results", summary.RunID+".json"), &trimmed)
}

// SaveTranscript persists one task's full event transcript.
func (s *ResultStore) SaveTranscript(runID string, result *TaskResult) error {
	dir := filepath.Join(s.root, "transcripts", runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}
	return s.writeJSON(filepath.Join(dir, result.TaskID+".json"), result)
}

// SaveReport renders a human-readable markdown report.
func (s *ResultStore) SaveReport(summary *RunSummary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Evaluation Report: %s\n\n", summary.RunID)
	if summary.Dataset != "" {
		fmt.Fprintf(&b, "Dataset: `%s`\n\n", summary.Dataset)
	}
	fmt.Fprintf(&b, "Started: %s\nFinished: %s\n\n", summary.StartedAt.Format("2006-01-02 15:04:05"), summary.FinishedAt.Format("2006-01-02 15:04:05"))
	m := summary.Metrics
	fmt.Fprintf(&b, "## Metrics\n\n")
	fmt.Fprintf(&b, "| Dimension | Mean |\n|---|---|\n")
	fmt.Fprintf(&b, "| Accuracy | %.3f |\n", m.Accuracy)
	fmt.Fprintf(&b, "| Completeness | %.3f |\n", m.Completeness)
	fmt.Fprintf(&b, "| Efficiency | %.3f |\n", m.Efficiency)
	fmt.Fprintf(&b, "| Tool usage | %.3f |\n", m.ToolUsage)
	fmt.Fprintf(&b, "| **Aggregate** | **%.3f** |\n\n", m.Aggregate)
	fmt.Fprintf(&b, "Tasks: %d, failed: %d\n\n## Tasks\n\n", m.NumTasks, m.NumFailed)
	fmt.Fprintf(&b, "| Task | Answer | Accuracy | Attempts | Error |\n|---|---|---|---|---|\n")
	for _, r := range summary.Results {
		answer := "(none)"
		if r.Answer != nil {
			answer = *r.Answer
		}
		fmt.Fprintf(&b, "| %s | %s | %.1f | %d | %s |\n", r.TaskID, answer, r.Score.Accuracy, r.Attempts, r.Error)
	}
	path := filepath.Join(s.root, "reports", summary.RunID+".md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (s *ResultStore) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
