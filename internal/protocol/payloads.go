// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import "maps"

// Task is the tag selecting which operation a TASK_REQUEST asks for.
type Task string

const (
	TaskIngestFile       Task = "ingest_file"
	TaskEmbedChunks      Task = "embed_chunks"
	TaskRetrieveContext  Task = "retrieve_context"
	TaskGenerateResponse Task = "generate_response"
)

// PayloadType discriminates payload variants on the wire.
type PayloadType string

const (
	PayloadIngestFile       PayloadType = "ingest_file"
	PayloadEmbedChunks      PayloadType = "embed_chunks"
	PayloadRetrieveContext  PayloadType = "retrieve_context"
	PayloadGenerateResponse PayloadType = "generate_response"
	PayloadUnknownTask      PayloadType = "unknown_task"
	PayloadIngestResult     PayloadType = "ingest_result"
	PayloadContextResult    PayloadType = "context_result"
	PayloadGenerateResult   PayloadType = "generate_result"
	PayloadError            PayloadType = "error"
	PayloadLog              PayloadType = "log"
)

// Payload is the closed set of envelope bodies. Each variant corresponds to
// one (kind, task) pair.
type Payload interface {
	PayloadType() PayloadType
}

// TaskPayload is implemented by request payloads carrying a task tag.
type TaskPayload interface {
	Payload
	Task() Task
}

// IngestFileRequest asks the ingestion worker to extract, chunk and index a file.
type IngestFileRequest struct {
	FilePath string `json:"file_path"`
	FileName string `json:"file_name"`
}

func (IngestFileRequest) PayloadType() PayloadType { return PayloadIngestFile }
func (IngestFileRequest) Task() Task               { return TaskIngestFile }

// ChunkMetadata is attached to every chunk of one ingested document.
type ChunkMetadata struct {
	Source string `json:"source"`
}

// EmbedChunksRequest asks the retrieval worker to index chunks. No reply is expected.
type EmbedChunksRequest struct {
	Chunks   []string      `json:"chunks"`
	Metadata ChunkMetadata `json:"metadata"`
}

func (EmbedChunksRequest) PayloadType() PayloadType { return PayloadEmbedChunks }
func (EmbedChunksRequest) Task() Task               { return TaskEmbedChunks }

// RetrieveContextRequest asks the retrieval worker for the chunks closest to Query.
type RetrieveContextRequest struct {
	Query    string `json:"query"`
	NResults int    `json:"n_results"`
}

func (RetrieveContextRequest) PayloadType() PayloadType { return PayloadRetrieveContext }
func (RetrieveContextRequest) Task() Task               { return TaskRetrieveContext }

// GenerateResponseRequest asks the response worker to answer Query from Context.
type GenerateResponseRequest struct {
	Query   string `json:"query"`
	Context string `json:"context"`
}

func (GenerateResponseRequest) PayloadType() PayloadType { return PayloadGenerateResponse }
func (GenerateResponseRequest) Task() Task               { return TaskGenerateResponse }

// UnknownTask carries a task tag no worker in this process understands.
// Workers ignore it.
type UnknownTask struct {
	Name Task           `json:"task"`
	Args map[string]any `json:"args,omitempty"`
}

func (UnknownTask) PayloadType() PayloadType { return PayloadUnknownTask }
func (u UnknownTask) Task() Task             { return u.Name }

// IngestResult is the terminal reply of the ingestion worker.
type IngestResult struct {
	Status      string `json:"status"`
	File        string `json:"file"`
	ChunksCount int    `json:"chunks_count"`
}

func (IngestResult) PayloadType() PayloadType { return PayloadIngestResult }

// ContextResult is the CONTEXT_RESPONSE body of the retrieval worker.
type ContextResult struct {
	Context       string `json:"context"`
	OriginalQuery string `json:"original_query"`
}

func (ContextResult) PayloadType() PayloadType { return PayloadContextResult }

// GenerateResult is the terminal reply of the response worker.
type GenerateResult struct {
	Answer string `json:"answer"`
	Query  string `json:"query"`
}

func (GenerateResult) PayloadType() PayloadType { return PayloadGenerateResult }

// ErrorPayload is the body of every ERROR envelope.
type ErrorPayload struct {
	Error string `json:"error"`
}

func (ErrorPayload) PayloadType() PayloadType { return PayloadError }

// LogPayload is the body of a LOG envelope.
type LogPayload struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (LogPayload) PayloadType() PayloadType { return PayloadLog }

// clonePayload detaches slices and maps from the caller so an emitted
// envelope cannot be changed through a retained reference.
func clonePayload(p Payload) Payload {
	switch v := p.(type) {
	case EmbedChunksRequest:
		v.Chunks = append([]string(nil), v.Chunks...)
		return v
	case UnknownTask:
		v.Args = maps.Clone(v.Args)
		return v
	case LogPayload:
		v.Fields = maps.Clone(v.Fields)
		return v
	}
	return p
}
