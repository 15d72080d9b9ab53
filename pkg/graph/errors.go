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

package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/cooragent/cooragent/pkg/agent"
	"github.com/cooragent/cooragent/pkg/tools"
)

// Kind classifies a run-terminating failure.
type Kind string

const (
	KindValidation    Kind = "ValidationError"
	KindNotFound      Kind = "NotFound"
	KindAlreadyExists Kind = "AlreadyExists"
	KindProtocol      Kind = "ProtocolError"
	KindTool          Kind = "ToolError"
	KindLM            Kind = "LMError"
	KindCancelled     Kind = "Cancelled"
	KindInternal      Kind = "Internal"
)

// Error is the classified failure surfaced in a terminal error event.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds a classified error in place.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Classify maps an arbitrary failure onto the error taxonomy. Already
// classified errors pass through unchanged.
func Classify(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	var te *tools.ToolError
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindCancelled, Reason: "run cancelled", Err: err}
	case errors.As(err, &te):
		return &Error{Kind: KindTool, Reason: te.Tool, Err: err}
	case errors.Is(err, agent.ErrAlreadyExists):
		return &Error{Kind: KindAlreadyExists, Reason: "agent already exists", Err: err}
	case errors.Is(err, agent.ErrNotFound):
		return &Error{Kind: KindNotFound, Reason: "agent not found", Err: err}
	case errors.Is(err, agent.ErrValidation) || errors.Is(err, agent.ErrSchemaMismatch):
		return &Error{Kind: KindValidation, Reason: "invalid agent definition", Err: err}
	default:
		return &Error{Kind: KindInternal, Reason: "unexpected failure", Err: err}
	}
}
