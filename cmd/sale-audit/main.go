package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"tokensale/audit"
	"tokensale/config"
)

type eventReport struct {
	ID         int64             `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

func main() {
	configPath := flag.String("config", "./config.toml", "Path to node configuration file")
	eventType := flag.String("type", "", "Restrict output to one event type")
	limit := flag.Int("limit", 50, "Maximum number of events to print")
	counts := flag.Bool("counts", false, "Print event counts per type instead of rows")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := audit.Open(cfg.AuditDatabase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open audit database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	if *counts {
		byType, err := store.CountByType(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to count events: %v\n", err)
			os.Exit(1)
		}
		printJSON(byType)
		return
	}

	var rows []audit.StoredEvent
	if *eventType != "" {
		rows, err = store.EventsByType(ctx, *eventType, *limit)
	} else {
		rows, err = store.RecentEvents(ctx, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to query events: %v\n", err)
		os.Exit(1)
	}

	report := make([]eventReport, 0, len(rows))
	for _, row := range rows {
		report = append(report, eventReport{
			ID:         row.ID,
			Type:       row.Type,
			Attributes: row.Attributes,
			RecordedAt: row.RecordedAt,
		})
	}
	printJSON(report)
}

func printJSON(v interface{}) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}
