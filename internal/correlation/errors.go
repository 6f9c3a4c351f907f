// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package correlation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStepTimeout is matched by every StepTimeoutError.
	ErrStepTimeout = errors.New("step timed out")
	// ErrSuspensionPending is returned when a correlation id already has an unresolved suspension.
	ErrSuspensionPending = errors.New("suspension already pending")
)

// StepTimeoutError reports a step whose reply did not arrive before its deadline.
type StepTimeoutError struct {
	CorrelationID string
	Step          string
	Timeout       time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Step)
}

func (e *StepTimeoutError) Unwrap() error {
	return ErrStepTimeout
}
