package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/service"
)

func (s *Server) registerBackupRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listPackages",
		Method:      http.MethodGet,
		Path:        "/api/v1/packages",
		Summary:     "List packages",
		Description: "Returns installed and backed-up packages with backup totals, ordered by label",
		Tags:        []string{"Backups"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListPackages)

	huma.Register(s.api, huma.Operation{
		OperationID: "listBackups",
		Method:      http.MethodGet,
		Path:        "/api/v1/packages/{package}/backups",
		Summary:     "List backups of a package",
		Description: "Returns the backups of a package, newest first",
		Tags:        []string{"Backups"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBackups)

	huma.Register(s.api, huma.Operation{
		OperationID: "rewriteBackup",
		Method:      http.MethodPatch,
		Path:        "/api/v1/packages/{package}/backups/{date}",
		Summary:     "Rewrite backup metadata",
		Description: "Corrects label, persistence or version of an existing backup",
		Tags:        []string{"Backups"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRewriteBackup)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteBackup",
		Method:        http.MethodDelete,
		Path:          "/api/v1/packages/{package}/backups/{date}",
		Summary:       "Delete backup",
		Tags:          []string{"Backups"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteBackup)

	huma.Register(s.api, huma.Operation{
		OperationID: "rescanBackups",
		Method:      http.MethodPost,
		Path:        "/api/v1/backups/rescan",
		Summary:     "Rescan backup location",
		Description: "Rebuilds the backup registry from the backup location",
		Tags:        []string{"Backups"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRescan)

	huma.Register(s.api, huma.Operation{
		OperationID: "housekeepBackups",
		Method:      http.MethodPost,
		Path:        "/api/v1/backups/housekeeping",
		Summary:     "Run housekeeping",
		Description: "Removes backups beyond the configured revision count for one or all packages",
		Tags:        []string{"Backups"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleHousekeep)
}

// === DTOs ===

// ListPackagesOutput wraps the package listing for Huma.
type ListPackagesOutput struct {
	Body struct {
		Packages []service.PackageSummary `json:"packages" doc:"Packages ordered by label"`
	}
}

// BackupsOutput wraps a list of backups for Huma.
type BackupsOutput struct {
	Body struct {
		Backups []domain.BackupRecord `json:"backups" doc:"Backups"`
	}
}

// BackupInput selects one backup. Date uses the properties file layout,
// e.g. 2026-10-19-08-00-00.000.
type BackupInput struct {
	Package string `path:"package" doc:"Package name"`
	Date    string `path:"date" doc:"Backup date (UTC) as yyyy-MM-dd-HH-mm-ss.SSS"`
}

// RewriteBackupRequest lists the fields a rewrite may change.
type RewriteBackupRequest struct {
	PackageLabel *string `json:"package_label,omitempty" doc:"Display label"`
	Persistent   *bool   `json:"persistent,omitempty" doc:"Protect from housekeeping"`
	VersionCode  *int64  `json:"version_code,omitempty" doc:"App version code"`
	VersionName  *string `json:"version_name,omitempty" doc:"App version name"`
}

// RewriteBackupInput wraps the rewrite request for Huma.
type RewriteBackupInput struct {
	Package string `path:"package" doc:"Package name"`
	Date    string `path:"date" doc:"Backup date (UTC) as yyyy-MM-dd-HH-mm-ss.SSS"`
	Body    RewriteBackupRequest
}

// BackupOutput wraps one backup for Huma.
type BackupOutput struct {
	Body domain.BackupRecord
}

// RescanResponse summarizes a rescan.
type RescanResponse struct {
	Packages   int    `json:"packages" doc:"Package directories found"`
	Records    int    `json:"records" doc:"Backups found"`
	Added      int    `json:"added" doc:"Backups new to the registry"`
	Removed    int    `json:"removed" doc:"Backups no longer present"`
	Errors     int    `json:"errors" doc:"Unreadable properties files"`
	DurationMs int64  `json:"duration_ms" doc:"Scan duration"`
	Message    string `json:"message,omitempty" doc:"Additional status information"`
}

// RescanOutput wraps the rescan response for Huma.
type RescanOutput struct {
	Body RescanResponse
}

// HousekeepRequest selects the package to housekeep.
type HousekeepRequest struct {
	Package string `json:"package,omitempty" doc:"Package name; empty means every package"`
}

// HousekeepInput wraps the housekeeping request for Huma.
type HousekeepInput struct {
	Body HousekeepRequest
}

// === Handlers ===

func (s *Server) handleListPackages(ctx context.Context, _ *struct{}) (*ListPackagesOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	out := &ListPackagesOutput{}
	out.Body.Packages = s.services.Backup.ListPackages(ctx)
	return out, nil
}

func (s *Server) handleListBackups(ctx context.Context, input *PackageInput) (*BackupsOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	records, err := s.services.Backup.GetRecords(ctx, input.Package)
	if err != nil {
		return nil, s.toAPIError(err, "list backups")
	}
	out := &BackupsOutput{}
	out.Body.Backups = records
	return out, nil
}

func (s *Server) handleRewriteBackup(ctx context.Context, input *RewriteBackupInput) (*BackupOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	date, err := parseBackupDate(input.Date)
	if err != nil {
		return nil, s.toAPIError(err, "rewrite backup")
	}
	rec, err := s.services.Backup.RewriteRecord(ctx, input.Package, date, service.RecordPatch{
		PackageLabel: input.Body.PackageLabel,
		Persistent:   input.Body.Persistent,
		VersionCode:  input.Body.VersionCode,
		VersionName:  input.Body.VersionName,
	})
	if err != nil {
		return nil, s.toAPIError(err, "rewrite backup")
	}
	return &BackupOutput{Body: *rec}, nil
}

func (s *Server) handleDeleteBackup(ctx context.Context, input *BackupInput) (*struct{}, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	date, err := parseBackupDate(input.Date)
	if err != nil {
		return nil, s.toAPIError(err, "delete backup")
	}
	if err := s.services.Backup.DeleteRecord(ctx, input.Package, date); err != nil {
		return nil, s.toAPIError(err, "delete backup")
	}
	return nil, nil
}

func (s *Server) handleRescan(ctx context.Context, _ *struct{}) (*RescanOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	result, err := s.services.Backup.Rescan(ctx)
	if err != nil {
		return nil, s.toAPIError(err, "rescan")
	}
	resp := RescanResponse{
		Packages:   result.Packages,
		Records:    result.Records,
		Added:      result.Added,
		Removed:    result.Removed,
		Errors:     result.Errors,
		DurationMs: result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
	}
	if result.Errors > 0 {
		resp.Message = "some properties files could not be read"
	}
	return &RescanOutput{Body: resp}, nil
}

func (s *Server) handleHousekeep(ctx context.Context, input *HousekeepInput) (*BackupsOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	removed, err := s.services.Backup.Housekeep(ctx, input.Body.Package)
	if err != nil {
		return nil, s.toAPIError(err, "housekeeping")
	}
	out := &BackupsOutput{}
	out.Body.Backups = removed
	if out.Body.Backups == nil {
		out.Body.Backups = []domain.BackupRecord{}
	}
	return out, nil
}

func parseBackupDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(domain.BackupDateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, domainerrors.Validationf("invalid backup date %q", raw)
	}
	return t, nil
}
