// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Command report lists stored benchmark results.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/absmach/mqbench/config"
	"github.com/absmach/mqbench/results"
	"github.com/absmach/mqbench/storage"
	"github.com/absmach/mqbench/storage/backend"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	broker := flag.String("broker", "", "Only list results of this broker")
	status := flag.String("status", "", "Only list results with this status (success, partial, failed)")
	limit := flag.Int("limit", 0, "Maximum number of results, newest first (0 = all)")
	format := flag.String("format", "table", "Output format: table, markdown")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	f := storage.Filter{Broker: *broker, Status: results.Status(*status), Limit: *limit}
	if err := report(context.Background(), os.Stdout, cfg.Storage, f, *format); err != nil {
		slog.Error("Failed to list results", "error", err)
		os.Exit(1)
	}
}

func report(ctx context.Context, w io.Writer, cfg config.StorageConfig, f storage.Filter, format string) error {
	switch f.Status {
	case "", results.StatusSuccess, results.StatusPartial, results.StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", f.Status)
	}
	if f.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}

	store, err := backend.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer store.Close()

	rs, err := store.List(ctx, f)
	if err != nil {
		return err
	}

	switch format {
	case "table":
		if len(rs) == 0 {
			_, err := fmt.Fprintln(w, "No results found.")
			return err
		}
		return results.WriteTable(w, rs)
	case "markdown":
		return results.WriteMarkdown(w, rs, "")
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
