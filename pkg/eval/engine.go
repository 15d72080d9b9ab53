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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/cooragent/cooragent/pkg/config"
	"github.com/cooragent/cooragent/pkg/graph"
	"github.com/cooragent/cooragent/pkg/llms"
	"github.com/cooragent/cooragent/pkg/logger"
	"github.com/cooragent/cooragent/pkg/workflow"
)

// Engine runs tasks through the orchestrator, at most MaxConcurrentTasks at
// a time, and persists the scored outcome.
type Engine struct {
	service *workflow.Service
	cfg     config.EvalConfig
	store   *ResultStore
}

func NewEngine(service *workflow.Service, cfg config.EvalConfig, store *ResultStore) *Engine {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}
	return &Engine{service: service, cfg: cfg, store: store}
}

// Run evaluates the tasks and returns the run summary. The summary and the
// report are always persisted; per-task transcripts only when SaveDetails is
// set.
func (e *Engine) Run(ctx context.Context, dataset string, tasks []Task) (*RunSummary, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks to evaluate")
	}

	runID := time.Now().Format("20060102_150405") + "_" + uuid.NewString()[:8]
	log := logger.GetLogger()
	log.Info("Starting evaluation run", "run_id", runID, "tasks", len(tasks), "concurrency", e.cfg.MaxConcurrentTasks)

	summary := &RunSummary{
		RunID:     runID,
		Dataset:   dataset,
		StartedAt: time.Now(),
		Results:   make([]TaskResult, len(tasks)),
	}

	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrentTasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			defer sem.Release(1)
			summary.Results[i] = e.runTask(ctx, runID, task)
		}(i, task)
	}
	wg.Wait()

	summary.FinishedAt = time.Now()
	summary.Metrics = ComputeMetrics(summary.Results)

	if err := e.store.SaveSummary(summary); err != nil {
		return nil, err
	}
	if err := e.store.SaveReport(summary); err != nil {
		return nil, err
	}
	if e.cfg.SaveDetails {
		for i := range summary.Results {
			if err := e.store.SaveTranscript(runID, &summary.Results[i]); err != nil {
				log.Warn("Failed to save transcript", "task", summary.Results[i].TaskID, "error", err)
			}
		}
	}

	log.Info("Evaluation run finished", "run_id", runID, "aggregate", summary.Metrics.Aggregate, "failed", summary.Metrics.NumFailed)
	return summary, nil
}

// runTask executes one task with retries. The last attempt's outcome wins.
func (e *Engine) runTask(ctx context.Context, runID string, task Task) TaskResult {
	log := logger.GetLogger()
	started := time.Now()

	attempts := 1
	if e.cfg.RetryFailedTasks && e.cfg.MaxRetries > 0 {
		attempts += e.cfg.MaxRetries
	}

	result := TaskResult{TaskID: task.ID}
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt
		text, events, err := e.attempt(ctx, runID, task)
		result.RawText = text
		result.Events = events
		if err == nil {
			answer := ExtractAnswer(text)
			result.Answer = &answer
			result.Error = ""
			result.Score = DefaultScore(answer, task.Expected)
			break
		}
		result.Answer = nil
		result.Error = string(graph.Classify(err).Kind)
		result.Score = Score{}
		if ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			log.Warn("Task failed, retrying", "task", task.ID, "attempt", attempt, "error", err)
		}
	}
	result.Duration = time.Since(started).Seconds()
	return result
}

// attempt runs the orchestrator once and assembles the streamed text.
func (e *Engine) attempt(ctx context.Context, runID string, task Task) (string, []graph.Event, error) {
	runCtx := ctx
	if e.cfg.TimeoutPerTask > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutPerTask)*time.Second)
		defer cancel()
	}

	question := task.Question
	if task.Attachment != "" {
		question += "\n\nAttachment summary:\n" + task.Attachment
	}
	req := &workflow.Request{
		UserID:   "eval_" + runID,
		TaskType: string(graph.FlavorWorkflow),
		Messages: []llms.Message{{Role: "user", Content: question}},
	}

	stream, err := e.service.Run(runCtx, req)
	if err != nil {
		return "", nil, err
	}

	var events []graph.Event
	var text string
	var runErr error
	for ev := range stream.Events() {
		events = append(events, ev)
		switch ev.Event {
		case graph.EventMessage:
			if delta, ok := ev.Data["delta"].(map[string]any); ok {
				if content, ok := delta["content"].(string); ok {
					text += content
				}
			}
		case graph.EventError:
			msg, _ := ev.Data["error"].(string)
			kind, _ := ev.Data["kind"].(string)
			if kind == "" {
				kind = string(graph.KindInternal)
			}
			runErr = &graph.Error{Kind: graph.Kind(kind), Reason: msg}
		}
	}
	if runErr == nil && runCtx.Err() != nil {
		runErr = runCtx.Err()
	}
	return text, events, runErr
}
