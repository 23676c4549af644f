package domain

import "time"

// Instance describes this server for discovery and the health endpoint.
type Instance struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	BackupRoot string    `json:"backup_root"`
	StartedAt  time.Time `json:"started_at"`
}
