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

import "errors"

var (
	// ErrAlreadyExists is returned when creating an agent whose name is taken.
	ErrAlreadyExists = errors.New("agent already exists")
	// ErrNotFound is returned when editing or removing an absent agent.
	ErrNotFound = errors.New("agent not found")
	// ErrSchemaMismatch is returned when a referenced tool is missing from the
	// tool registry at bind time.
	ErrSchemaMismatch = errors.New("tool schema mismatch")
	// ErrValidation is returned for malformed definitions.
	ErrValidation = errors.New("invalid agent definition")
	// ErrForbidden is returned when a caller may not perform the operation.
	ErrForbidden = errors.New("operation not permitted")
)
