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

// Metrics are arithmetic means over all tasks of a run.
type Metrics struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Efficiency   float64 `json:"efficiency"`
	ToolUsage    float64 `json:"tool_usage"`
	Aggregate    float64 `json:"aggregate"`
	NumTasks     int     `json:"num_tasks"`
	NumFailed    int     `json:"num_failed"`
}

// ComputeMetrics aggregates per-task scores.
func ComputeMetrics(results []TaskResult) Metrics {
	m := Metrics{NumTasks: len(results)}
	if len(results) == 0 {
		return m
	}
	for _, r := range results {
		m.Accuracy += r.Score.Accuracy
		m.Completeness += r.Score.Completeness
		m.Efficiency += r.Score.Efficiency
		m.ToolUsage += r.Score.ToolUsage
		if r.Error != "" {
			m.NumFailed++
		}
	}
	n := float64(len(results))
	m.Accuracy /= n
	m.Completeness /= n
	m.Efficiency /= n
	m.ToolUsage /= n
	m.Aggregate = (m.Accuracy + m.Completeness + m.Efficiency + m.ToolUsage) / 4
	return m
}
