package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/NeoBackup/data/registry")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Registry Store Inspection ===")
	fmt.Println()

	packageCount := 0
	recordCount := 0
	var totalSize int64

	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("rec:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var records []domain.BackupRecord
				if err := json.Unmarshal(val, &records); err != nil {
					return err
				}

				packageCount++
				recordCount += len(records)
				for _, r := range records {
					totalSize += r.Size
				}

				// Show the first few packages
				if packageCount <= 5 {
					fmt.Printf("Package: %s\n", item.Key()[len("rec:"):])
					for i, r := range records {
						if i < 3 {
							fmt.Printf("    %s  %s  %d bytes\n",
								r.BackupDate.Format(domain.BackupDateLayout), r.VersionName, r.Size)
						}
					}
					if len(records) > 3 {
						fmt.Printf("    ... and %d more\n", len(records)-3)
					}
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to read records: %v", err)
	}

	fmt.Println()
	fmt.Printf("Packages: %d\n", packageCount)
	fmt.Printf("Backups: %d\n", recordCount)
	fmt.Printf("Total size: %d bytes\n", totalSize)
	fmt.Println()

	batchCount := 0
	failed := 0
	var latest *domain.BatchResult

	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("batch:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var b domain.BatchResult
				if err := json.Unmarshal(val, &b); err != nil {
					return err
				}
				batchCount++
				if !b.Success {
					failed++
				}
				if latest == nil || b.CompletedAt.After(latest.CompletedAt) {
					latest = &b
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to read batch history: %v", err)
	}

	fmt.Println("=== Batch History ===")
	fmt.Printf("Batches: %d (%d failed)\n", batchCount, failed)
	if latest != nil {
		fmt.Printf("Latest: %s (schedule %d) %d/%d units, completed %s\n",
			latest.Name, latest.ScheduleID, latest.Finished, latest.Queued,
			latest.CompletedAt.Format("2006-01-02 15:04:05"))
		if latest.Errors != "" {
			fmt.Printf("  Errors: %s\n", latest.Errors)
		}
	}
}
