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

// Package eval drives benchmark tasks through the orchestrator with bounded
// concurrency and persists scored results.
package eval

import (
	"time"

	"github.com/cooragent/cooragent/pkg/graph"
)

// Task is one benchmark question.
type Task struct {
	ID         string         `json:"task_id"`
	Question   string         `json:"question"`
	Expected   string         `json:"expected_answer,omitempty"`
	Attachment string         `json:"attachment,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Score holds the four scoring dimensions, each in [0,1].
type Score struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Efficiency   float64 `json:"efficiency"`
	ToolUsage    float64 `json:"tool_usage"`
}

// Aggregate is the mean of the four dimensions.
func (s Score) Aggregate() float64 {
	return (s.Accuracy + s.Completeness + s.Efficiency + s.ToolUsage) / 4
}

// TaskResult is the outcome of one task, after retries.
type TaskResult struct {
	TaskID   string  `json:"task_id"`
	Answer   *string `json:"answer"`
	Error    string  `json:"error,omitempty"`
	Score    Score   `json:"score"`
	Attempts int     `json:"attempts"`
	Duration float64 `json:"duration_seconds"`

	// RawText is the concatenation of all message deltas of the final attempt.
	RawText string `json:"raw_text,omitempty"`
	// Events is the final attempt's transcript, kept when details are saved.
	Events []graph.Event `json:"events,omitempty"`
}

// RunSummary aggregates one evaluation run.
type RunSummary struct {
	RunID      string       `json:"run_id"`
	Dataset    string       `json:"dataset,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Metrics    Metrics      `json:"metrics"`
	Results    []TaskResult `json:"results"`
}
