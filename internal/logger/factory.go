// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"github.com/rs/zerolog"
)

// Static logger getters that map directly to config.yaml log.levels
// These ensure consistent logger names across the codebase

// GetBusLogger returns a logger for the message router
func GetBusLogger() zerolog.Logger {
	return GetLogger("bus")
}

// GetOrchestratorLogger returns a logger for the coordinator and its workflows
func GetOrchestratorLogger() zerolog.Logger {
	return GetLogger("orchestrator")
}

// GetAgentsLogger returns a logger for the ingestion, retrieval and response workers
func GetAgentsLogger() zerolog.Logger {
	return GetLogger("agents")
}

// GetStoreLogger returns a logger for the vector store and embedders
func GetStoreLogger() zerolog.Logger {
	return GetLogger("store")
}

// GetLLMLogger returns a logger for answer generators
func GetLLMLogger() zerolog.Logger {
	return GetLogger("llm")
}

// GetAPILogger returns a logger for API operations
func GetAPILogger() zerolog.Logger {
	return GetLogger("api")
}
