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

// Package server exposes the HTTP surface. Streaming endpoints answer with
// newline-delimited JSON; management endpoints answer with one-line result
// documents and never take down the process.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cooragent/cooragent/pkg/agent"
	"github.com/cooragent/cooragent/pkg/config"
	"github.com/cooragent/cooragent/pkg/logger"
	"github.com/cooragent/cooragent/pkg/tools"
	"github.com/cooragent/cooragent/pkg/workflow"
)

// Server wires the workflow service and registries into HTTP handlers.
type Server struct {
	cfg       config.ServerConfig
	agents    *agent.Registry
	tools     *tools.Registry
	workflows *workflow.Service
	http      *http.Server
}

func New(cfg config.ServerConfig, agents *agent.Registry, toolReg *tools.Registry, workflows *workflow.Service) *Server {
	s := &Server{
		cfg:       cfg,
		agents:    agents,
		tools:     toolReg,
		workflows: workflows,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/workflow", s.handleWorkflow)
		r.Post("/list_agents", s.handleListAgents)
		r.Get("/list_default_agents", s.handleListDefaultAgents)
		r.Get("/list_default_tools", s.handleListDefaultTools)
		r.Post("/edit_agent", s.handleEditAgent)
		r.Post("/remove_agent", s.handleRemoveAgent)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	logger.GetLogger().Info("HTTP server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.GetLogger().Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String())
	})
}

// ndjsonWriter emits one JSON document per line, flushing after each so slow
// consumers see progress immediately.
type ndjsonWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
}

func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)
	return &ndjsonWriter{w: w, flusher: flusher, enc: json.NewEncoder(w)}
}

func (n *ndjsonWriter) Write(v any) error {
	if err := n.enc.Encode(v); err != nil {
		return err
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return nil
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflow.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(w, http.StatusBadRequest, "error", "invalid request body")
		return
	}

	// The request context doubles as the run's cancellation token: a dropped
	// consumer aborts the workflow.
	stream, err := s.workflows.Run(r.Context(), &req)
	if err != nil {
		writeResult(w, http.StatusBadRequest, "error", err.Error())
		return
	}

	out := newNDJSONWriter(w)
	for ev := range stream.Events() {
		if err := out.Write(ev); err != nil {
			logger.GetLogger().Debug("Workflow consumer dropped", "error", err)
			return
		}
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Match  string `json:"match,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(w, http.StatusBadRequest, "error", "invalid request body")
		return
	}
	defs, err := s.agents.List(req.UserID, req.Match)
	if err != nil {
		writeResult(w, http.StatusBadRequest, "error", err.Error())
		return
	}
	out := newNDJSONWriter(w)
	for _, def := range defs {
		if err := out.Write(def); err != nil {
			return
		}
	}
}

func (s *Server) handleListDefaultAgents(w http.ResponseWriter, r *http.Request) {
	out := newNDJSONWriter(w)
	for _, def := range s.agents.DefaultAgents() {
		if err := out.Write(def); err != nil {
			return
		}
	}
}

func (s *Server) handleListDefaultTools(w http.ResponseWriter, r *http.Request) {
	out := newNDJSONWriter(w)
	for _, info := range s.tools.ListInfos() {
		if err := out.Write(info); err != nil {
			return
		}
	}
}

func (s *Server) handleEditAgent(w http.ResponseWriter, r *http.Request) {
	var def agent.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"result": "error", "message": "invalid request body"})
		return
	}
	if err := s.agents.Edit(&def); err != nil {
		if errors.Is(err, agent.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]string{"result": "agent not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"result": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "success"})
}

func (s *Server) handleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		AgentName string `json:"agent_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"result": "error", "message": "invalid request body"})
		return
	}
	if err := s.agents.Remove(req.UserID, req.AgentName); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"result": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"result":  "success",
		"message": fmt.Sprintf("agent %s removed", req.AgentName),
	})
}

func writeResult(w http.ResponseWriter, status int, result, message string) {
	writeJSON(w, status, map[string]string{"result": result, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
