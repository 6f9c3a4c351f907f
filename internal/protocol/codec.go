// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireEnvelope is the JSON shape of an Envelope. Kind values are kept verbatim
// and PayloadType tells the decoder which variant to rebuild.
type wireEnvelope struct {
	Version       string          `json:"version"`
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Sender        string          `json:"sender"`
	Receiver      string          `json:"receiver"`
	Kind          Kind            `json:"kind"`
	PayloadType   PayloadType     `json:"payload_type,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{
		Version:       CurrentProtocolVersion,
		ID:            e.ID,
		CorrelationID: e.CorrelationID,
		CreatedAt:     e.CreatedAt,
		Sender:        e.Sender,
		Receiver:      e.Receiver,
		Kind:          e.Kind,
	}
	if e.Payload != nil {
		body, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Payload.PayloadType(), err)
		}
		w.PayloadType = e.Payload.PayloadType()
		w.Payload = body
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEnvelope, w.Kind)
	}

	payload, err := decodePayload(w.PayloadType, w.Payload)
	if err != nil {
		return err
	}

	*e = Envelope{
		ID:            w.ID,
		CorrelationID: w.CorrelationID,
		CreatedAt:     w.CreatedAt,
		Sender:        w.Sender,
		Receiver:      w.Receiver,
		Kind:          w.Kind,
		Payload:       payload,
	}
	return nil
}

func decodePayload(pt PayloadType, raw json.RawMessage) (Payload, error) {
	if pt == "" {
		return nil, nil
	}
	var target Payload
	switch pt {
	case PayloadIngestFile:
		target = &IngestFileRequest{}
	case PayloadEmbedChunks:
		target = &EmbedChunksRequest{}
	case PayloadRetrieveContext:
		target = &RetrieveContextRequest{}
	case PayloadGenerateResponse:
		target = &GenerateResponseRequest{}
	case PayloadUnknownTask:
		target = &UnknownTask{}
	case PayloadIngestResult:
		target = &IngestResult{}
	case PayloadContextResult:
		target = &ContextResult{}
	case PayloadGenerateResult:
		target = &GenerateResult{}
	case PayloadError:
		target = &ErrorPayload{}
	case PayloadLog:
		target = &LogPayload{}
	default:
		return nil, fmt.Errorf("%w: unknown payload type %q", ErrInvalidEnvelope, pt)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", pt, err)
		}
	}
	return deref(target), nil
}

// deref turns the decode target back into the value variant workers switch on.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *IngestFileRequest:
		return *v
	case *EmbedChunksRequest:
		return *v
	case *RetrieveContextRequest:
		return *v
	case *GenerateResponseRequest:
		return *v
	case *UnknownTask:
		return *v
	case *IngestResult:
		return *v
	case *ContextResult:
		return *v
	case *GenerateResult:
		return *v
	case *ErrorPayload:
		return *v
	case *LogPayload:
		return *v
	}
	return p
}
