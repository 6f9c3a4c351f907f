// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/noldarim/ragbus/internal/protocol"
	"github.com/samber/lo"
)

// State is the position of a workflow in its state machine.
type State string

const (
	StateAwaitingStep1 State = "AWAITING_STEP_1"
	StateAwaitingStep2 State = "AWAITING_STEP_2"
	StateDone          State = "DONE"
	StateTimedOut      State = "TIMED_OUT"
	StateFailed        State = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateTimedOut || s == StateFailed
}

// Workflow names the kind of request a run serves.
type Workflow string

const (
	WorkflowQuery     Workflow = "query"
	WorkflowIngestion Workflow = "ingestion"
)

// RunSnapshot is a read-only view of an in-flight workflow.
type RunSnapshot struct {
	CorrelationID string    `json:"correlation_id"`
	Workflow      Workflow  `json:"workflow"`
	State         State     `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type run struct {
	correlationID string
	workflow      Workflow
	startedAt     time.Time

	mu        sync.Mutex
	state     State
	updatedAt time.Time
}

func (r *run) transition(to State) {
	r.mu.Lock()
	from := r.state
	r.state = to
	r.updatedAt = time.Now().UTC()
	r.mu.Unlock()

	getLog().Debug().
		Str("correlation_id", r.correlationID).
		Str("workflow", string(r.workflow)).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Workflow transition")
}

func (r *run) snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunSnapshot{
		CorrelationID: r.correlationID,
		Workflow:      r.workflow,
		State:         r.state,
		StartedAt:     r.startedAt,
		UpdatedAt:     r.updatedAt,
	}
}

func (c *Coordinator) startRun(w Workflow) *run {
	now := time.Now().UTC()
	r := &run{
		correlationID: protocol.NewCorrelationID(),
		workflow:      w,
		startedAt:     now,
		state:         StateAwaitingStep1,
		updatedAt:     now,
	}

	c.mu.Lock()
	c.runs[r.correlationID] = r
	c.mu.Unlock()

	getLog().Info().
		Str("correlation_id", r.correlationID).
		Str("workflow", string(w)).
		Msg("Workflow started")
	return r
}

// finish moves r to a terminal state and drops every trace of it.
func (c *Coordinator) finish(r *run, state State, err error) {
	r.transition(state)

	c.mu.Lock()
	delete(c.runs, r.correlationID)
	c.mu.Unlock()

	event := getLog().Info()
	if err != nil {
		event = getLog().Warn().Err(err)
	}
	event.
		Str("correlation_id", r.correlationID).
		Str("workflow", string(r.workflow)).
		Str("state", string(state)).
		Dur("elapsed", time.Since(r.startedAt)).
		Msg("Workflow finished")
}

// Runs returns the workflows currently in flight, oldest first.
func (c *Coordinator) Runs() []RunSnapshot {
	c.mu.RLock()
	snaps := lo.MapToSlice(c.runs, func(_ string, r *run) RunSnapshot {
		return r.snapshot()
	})
	c.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
	return snaps
}

// Run returns the in-flight workflow for correlationID.
func (c *Coordinator) Run(correlationID string) (RunSnapshot, bool) {
	c.mu.RLock()
	r, ok := c.runs[correlationID]
	c.mu.RUnlock()
	if !ok {
		return RunSnapshot{}, false
	}
	return r.snapshot(), true
}
