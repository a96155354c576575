// Copyright (C) 2025 Fraud Shield (security@fraudshield.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "fmt"

// Pipeline stages, used in PipelineError to identify where a run
// failed.
const (
	StagePersist = "persist"
	StageAlert   = "alert"
)

// PipelineError wraps a failure at a named pipeline stage.
//
// Only persistence failures surface to the orchestrator's caller; an
// unstored result would be a silent loss. Assessment and notification
// failures degrade in place and never carry this type out of the
// engine.
type PipelineError struct {
	// Stage is the pipeline stage that failed.
	Stage string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("fraud pipeline stage %s: %v", e.Stage, e.Err)
}

// Unwrap supports errors.Is/As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}
