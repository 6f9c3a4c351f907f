// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements ragctl, a thin client for the ragbus HTTP API.
package cli

import (
	"fmt"
	"io"
	"os"
)

const (
	appName    = "ragctl"
	appVersion = "0.1.0-alpha"
)

// Execute runs the CLI against os.Args.
func Execute() error {
	return Run(os.Args[1:], os.Stdout)
}

// Run dispatches one subcommand, writing results to out.
func Run(args []string, out io.Writer) error {
	if len(args) < 1 {
		return printUsage(out)
	}

	command, rest := args[0], args[1:]
	switch command {
	case "ingest":
		return ingestCommand(rest, out)
	case "ask":
		return askCommand(rest, out)
	case "trace":
		return traceCommand(rest, out)
	case "runs":
		return runsCommand(rest, out)
	case "version":
		fmt.Fprintf(out, "%s version %s\n", appName, appVersion)
		return nil
	case "help", "-h", "--help":
		return printUsage(out)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		if err := printUsage(out); err != nil {
			return err
		}
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage(out io.Writer) error {
	_, err := fmt.Fprintf(out, `%s - client for the ragbus RAG server

Usage:
  %s <command> [flags] [arguments]

Commands:
  ingest <file>   Upload a document and index it
  ask <query>     Ask a question against the indexed documents
  trace           Show routed envelopes, optionally for one correlation id
  runs            List workflows still in flight
  version         Print version information
  help            Show this help message

Common flags:
  -server URL     API base URL (defaults to the configured server address)
  -config PATH    Config file used to find the server address

Examples:
  %s ingest ./reports/q4.csv
  %s ask "What is the projected revenue for Q4?"
  %s trace -correlation-id 1f0c... -o yaml

`, appName, appName, appName, appName, appName)
	return err
}
