// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Here lies the definition of the data that workers exchange over the bus.
// Every unit of inter-worker communication is an Envelope. Envelopes are values:
// once constructed they are never mutated, they are only copied and routed.
//
// The CorrelationID is the sole join key between a request and its eventual reply.
// It is allocated by whoever starts a logical request and copied onto every
// envelope that belongs to that request, including replies.
package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentProtocolVersion defines the current version of the envelope wire format.
const CurrentProtocolVersion = "v1.0.0"

// Kind enumerates what an envelope means to its receiver.
type Kind string

const (
	KindTaskRequest     Kind = "TASK_REQUEST"
	KindTaskResult      Kind = "TASK_RESULT"
	KindContextRequest  Kind = "CONTEXT_REQUEST"
	KindContextResponse Kind = "CONTEXT_RESPONSE"
	KindError           Kind = "ERROR"
	KindLog             Kind = "LOG"
)

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTaskRequest, KindTaskResult, KindContextRequest, KindContextResponse, KindError, KindLog:
		return true
	}
	return false
}

// Worker identities known to the system.
const (
	CoordinatorAgent = "CoordinatorAgent"
	IngestionAgent   = "IngestionAgent"
	RetrievalAgent   = "RetrievalAgent"
	LLMResponseAgent = "LLMResponseAgent"
)

// ErrInvalidEnvelope is returned when an envelope is missing required fields.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// Envelope is one unit of inter-worker communication.
type Envelope struct {
	ID            string
	CorrelationID string
	CreatedAt     time.Time
	Sender        string
	Receiver      string
	Kind          Kind
	Payload       Payload
}

// NewCorrelationID allocates a fresh correlation id for a logical request.
func NewCorrelationID() string {
	return uuid.New().String()
}

// NewEnvelope builds an envelope with a fresh ID and timestamp.
// An empty correlationID allocates a new one, which starts a new logical request.
func NewEnvelope(sender, receiver string, kind Kind, payload Payload, correlationID string) (Envelope, error) {
	if sender == "" || receiver == "" {
		return Envelope{}, fmt.Errorf("%w: sender and receiver are required", ErrInvalidEnvelope)
	}
	if !kind.Valid() {
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEnvelope, kind)
	}
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return Envelope{
		ID:            uuid.New().String(),
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
		Sender:        sender,
		Receiver:      receiver,
		Kind:          kind,
		Payload:       clonePayload(payload),
	}, nil
}

// Reply builds the envelope answering env: addressed back to env.Sender,
// carrying env.CorrelationID.
func (e Envelope) Reply(kind Kind, payload Payload) (Envelope, error) {
	return NewEnvelope(e.Receiver, e.Sender, kind, payload, e.CorrelationID)
}

// Task returns the task tag carried by the payload, or "" when the payload is not a task.
func (e Envelope) Task() Task {
	if tp, ok := e.Payload.(TaskPayload); ok {
		return tp.Task()
	}
	return ""
}

// IsTaskRequest reports whether the envelope asks its receiver to do work.
func (e Envelope) IsTaskRequest() bool {
	return e.Kind == KindTaskRequest
}

// String renders a compact one-line description used in logs.
func (e Envelope) String() string {
	return fmt.Sprintf("%s -> %s [%s] %s", e.Sender, e.Receiver, e.Kind, e.CorrelationID)
}
