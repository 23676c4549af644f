package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/scanner"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: scan-test <backup-root>")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Scan never touches the registry.
	s := scanner.NewScanner(backup.NewDir(os.Args[1], logger), nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	records, result, err := s.Scan(ctx, scanner.ScanOptions{
		Workers: 4,
		OnProgress: func(p scanner.Progress) {
			fmt.Printf("[%s] %d/%d - %s\n",
				p.Phase, p.Current, p.Total, p.CurrentItem)
		},
	})

	if err != nil {
		logger.Error("scan failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Scan Complete ===\n")
	fmt.Printf("Duration: %s\n", result.Duration())
	fmt.Printf("Packages: %d\n", result.Packages)
	fmt.Printf("Backups: %d\n", len(records))
	fmt.Printf("Errors: %d\n", result.Errors)
	if result.Progress != nil {
		for _, e := range result.Progress.Errors {
			fmt.Printf("  %s: %v\n", e.Path, e.Error)
		}
	}
}
