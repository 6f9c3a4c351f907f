// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"errors"
	"fmt"

	"github.com/noldarim/ragbus/internal/correlation"
	"github.com/noldarim/ragbus/internal/protocol"
)

// ErrUnexpectedReply is returned when a step is settled by a payload it cannot use.
var ErrUnexpectedReply = errors.New("unexpected reply")

// WorkerError carries the message of an ERROR envelope that ended a workflow.
// Its Error text is the worker's message, unchanged.
type WorkerError struct {
	CorrelationID string
	Step          string
	Worker        string
	Message       string
}

func (e *WorkerError) Error() string {
	return e.Message
}

func unexpectedReply(step string, env protocol.Envelope) error {
	pt := protocol.PayloadType("none")
	if env.Payload != nil {
		pt = env.Payload.PayloadType()
	}
	return fmt.Errorf("%w: %s step got %s %s from %s", ErrUnexpectedReply, step, env.Kind, pt, env.Sender)
}

func isTimeout(err error) bool {
	return errors.Is(err, correlation.ErrStepTimeout)
}
