// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/protocol"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimeout = 2 * time.Minute
	previewWidth   = 60
)

type commonOptions struct {
	configPath string
	serverURL  string
	timeout    time.Duration
}

func (o *commonOptions) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "config.yaml", "Path to config file")
	fs.StringVar(&o.serverURL, "server", "", "API base URL (overrides the config file)")
	fs.DurationVar(&o.timeout, "timeout", defaultTimeout, "Request timeout")
}

func (o *commonOptions) client() (*Client, error) {
	if o.serverURL != "" {
		return NewClient(o.serverURL, o.timeout), nil
	}
	cfg, err := config.NewConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewClient(fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port), o.timeout), nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func ingestCommand(args []string, out io.Writer) error {
	opts := &commonOptions{}
	fs := newFlagSet("ingest", out)
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one file required\n\nUsage:\n  ragctl ingest <file>")
	}

	client, err := opts.client()
	if err != nil {
		return err
	}
	result, err := client.Ingest(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Ingested %s: %d chunks (%s)\n", result.File, result.ChunksCount, result.Status)
	fmt.Fprintf(out, "Trace: %s\n", result.CorrelationID)
	return nil
}

func askCommand(args []string, out io.Writer) error {
	opts := &commonOptions{}
	var showContext bool
	fs := newFlagSet("ask", out)
	opts.register(fs)
	fs.BoolVar(&showContext, "show-context", false, "Print the retrieved context as well")
	if err := fs.Parse(args); err != nil {
		return err
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return errors.New("query required\n\nUsage:\n  ragctl ask \"<question>\"")
	}

	client, err := opts.client()
	if err != nil {
		return err
	}
	result, err := client.Ask(context.Background(), query)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, result.Answer)
	if showContext {
		fmt.Fprintf(out, "\n── Context ──\n%s\n", result.Context)
	}
	fmt.Fprintf(out, "\nTrace: %s\n", result.CorrelationID)
	return nil
}

func traceCommand(args []string, out io.Writer) error {
	opts := &commonOptions{}
	var correlationID, format string
	fs := newFlagSet("trace", out)
	opts.register(fs)
	fs.StringVar(&correlationID, "correlation-id", "", "Only show envelopes of this workflow")
	fs.StringVar(&format, "o", "table", "Output format: table, json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := opts.client()
	if err != nil {
		return err
	}
	resp, err := client.Trace(context.Background(), correlationID)
	if err != nil {
		return err
	}
	return writeTrace(out, resp.Envelopes, format)
}

func writeTrace(out io.Writer, envs []protocol.Envelope, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(envs)
	case "yaml":
		docs, err := toGeneric(envs)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		writeTraceTable(out, envs)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// toGeneric round-trips envelopes through their JSON form so YAML output
// carries the same field names and payload discriminator.
func toGeneric(envs []protocol.Envelope) ([]map[string]any, error) {
	data, err := json.Marshal(envs)
	if err != nil {
		return nil, err
	}
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func writeTraceTable(out io.Writer, envs []protocol.Envelope) {
	if len(envs) == 0 {
		fmt.Fprintln(out, "No envelopes routed.")
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-12s  %-36s  %-16s  %-16s  %-16s  %s\n", "TIME", "CORRELATION", "SENDER", "RECEIVER", "KIND", "PAYLOAD")
	fmt.Fprintln(out, "────────────  ────────────────────────────────────  ────────────────  ────────────────  ────────────────  ────────────────────────────────")
	for _, env := range envs {
		fmt.Fprintf(out, "%-12s  %-36s  %-16s  %-16s  %-16s  %s\n",
			env.CreatedAt.Format("15:04:05.000"),
			env.CorrelationID,
			truncate(env.Sender, 16),
			truncate(env.Receiver, 16),
			env.Kind,
			preview(env.Payload))
	}
	fmt.Fprintln(out)

	counts := lo.CountValuesBy(envs, func(e protocol.Envelope) string { return e.CorrelationID })
	fmt.Fprintf(out, "%d envelopes across %d workflows\n", len(envs), len(counts))
}

func runsCommand(args []string, out io.Writer) error {
	opts := &commonOptions{}
	fs := newFlagSet("runs", out)
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := opts.client()
	if err != nil {
		return err
	}
	runs, err := client.Runs(context.Background())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No workflows in flight.")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-10s  %-16s  %s\n", "CORRELATION", "WORKFLOW", "STATE", "STARTED")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-10s  %-16s  %s\n", r.CorrelationID, r.Workflow, r.State, r.StartedAt.Format(time.RFC3339))
	}
	return nil
}

func preview(p protocol.Payload) string {
	if p == nil {
		return ""
	}
	data, err := json.Marshal(p)
	if err != nil {
		return string(p.PayloadType())
	}
	return truncate(string(p.PayloadType())+" "+string(data), previewWidth)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
