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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAnswer(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"final answer marker", "Reasoning...\nFinal Answer: 42.\nMore text", "42"},
		{"answer marker", "blah\nAnswer: Paris", "Paris"},
		{"result marker", "Result: 3.14 is the value\nnext line", "3.14 is the value"},
		{"case insensitive", "FINAL ANSWER: yes", "yes"},
		{"marker takes first line only", "Answer: one\ntwo", "one"},
		{"final answer beats earlier result", "Intermediate result: 3\nFinal Answer: 7", "7"},
		{"answer beats result", "Result: 2\nAnswer: 5", "5"},
		{"hyphen separator", "Answer - Lisbon", "Lisbon"},
		{"fallback last numeric", "prices were 10 then 25 then 300", "300"},
		{"numeric with separators", "the total is 1,234.56 dollars", "1,234.56"},
		{"fallback full text", "  no markers here  ", "no markers here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAnswer(tt.text))
		})
	}
}

func TestDefaultScore(t *testing.T) {
	tests := []struct {
		name      string
		extracted string
		expected  string
		want      float64
	}{
		{"exact match", "42", "42", 1.0},
		{"substring match", "the answer is 42 indeed", "42", 1.0},
		{"case insensitive", "PARIS", "paris", 1.0},
		{"mismatch", "London", "Paris", 0.0},
		{"no expected", "anything", "", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultScore(tt.extracted, tt.expected)
			assert.Equal(t, tt.want, s.Accuracy)
			assert.Zero(t, s.Completeness)
		})
	}
}

func TestComputeMetrics(t *testing.T) {
	results := []TaskResult{
		{Score: Score{Accuracy: 1.0, ToolUsage: 0.5}},
		{Score: Score{Accuracy: 0.0}, Error: "Cancelled"},
	}

	m := ComputeMetrics(results)
	assert.Equal(t, 0.5, m.Accuracy)
	assert.Equal(t, 0.25, m.ToolUsage)
	assert.Equal(t, 2, m.NumTasks)
	assert.Equal(t, 1, m.NumFailed)
	assert.InDelta(t, (0.5+0+0+0.25)/4, m.Aggregate, 1e-9)

	assert.Zero(t, ComputeMetrics(nil).NumTasks)
}

func TestScoreAggregate(t *testing.T) {
	s := Score{Accuracy: 1, Completeness: 1, Efficiency: 0, ToolUsage: 0}
	assert.Equal(t, 0.5, s.Aggregate())
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.jsonl")
	content := `{"task_id": "t1", "question": "What is 2+2?", "expected_answer": "4"}

{"question": "Capital of France?", "expected_answer": "Paris"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tasks, err := LoadDataset(path)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t1", tasks[0].ID)
	// Tasks without an id get a positional one.
	assert.Equal(t, "task_002", tasks[1].ID)
}

func TestLoadDatasetRejectsBadLines(t *testing.T) {
	dir := t.TempDir()

	badJSON := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(badJSON, []byte("{broken\n"), 0o644))
	_, err := LoadDataset(badJSON)
	assert.Error(t, err)

	noQuestion := filepath.Join(dir, "noq.jsonl")
	require.NoError(t, os.WriteFile(noQuestion, []byte(`{"task_id": "t1"}`+"\n"), 0o644))
	_, err = LoadDataset(noQuestion)
	assert.Error(t, err)
}

func TestResultStoreLayout(t *testing.T) {
	root := t.TempDir()
	store, err := NewResultStore(root)
	require.NoError(t, err)

	answer := "42"
	summary := &RunSummary{
		RunID:      "run_test",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Results: []TaskResult{
			{TaskID: "t1", Answer: &answer, Score: Score{Accuracy: 1}, Attempts: 1},
		},
	}
	summary.Metrics = ComputeMetrics(summary.Results)

	require.NoError(t, store.SaveSummary(summary))
	require.NoError(t, store.SaveReport(summary))
	require.NoError(t, store.SaveTranscript("run_test", &summary.Results[0]))

	assert.FileExists(t, filepath.Join(root, "results", "run_test.json"))
	assert.FileExists(t, filepath.Join(root, "reports", "run_test.md"))
	assert.FileExists(t, filepath.Join(root, "transcripts", "run_test", "t1.json"))

	report, err := os.ReadFile(filepath.Join(root, "reports", "run_test.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "run_test")
	assert.Contains(t, string(report), "42")
}
