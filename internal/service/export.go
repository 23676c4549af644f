package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/store/sqlite"
)

const (
	exportFormatVersion = 1
	exportSuffix        = ".json.zst"
	// maxExportSize bounds decompressed imports.
	maxExportSize = 16 << 20
)

var exportNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ExportDocument is the decompressed content of an export file.
type ExportDocument struct {
	Version         int                 `json:"version"`
	ExportedAt      time.Time           `json:"exported_at"`
	Schedules       []*domain.Schedule  `json:"schedules"`
	GlobalBlocklist []string            `json:"global_blocklist"`
	Blocklists      map[string][]string `json:"blocklists,omitempty"` // by schedule name
}

// ExportInfo describes an export file.
type ExportInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportResult reports what an import changed.
type ImportResult struct {
	Created   []string `json:"created"`
	Skipped   []string `json:"skipped"`
	Blocklist int      `json:"blocklist_added"`
}

// ExportService writes schedules and blocklists to zstd-compressed JSON
// files under <data>/exports and reads them back.
type ExportService struct {
	store     *sqlite.Store
	schedules *ScheduleService
	dir       string
	logger    *slog.Logger
	now       func() time.Time
}

// NewExportService creates a new export service storing files in dir.
func NewExportService(store *sqlite.Store, schedules *ScheduleService, dir string, logger *slog.Logger) *ExportService {
	return &ExportService{
		store:     store,
		schedules: schedules,
		dir:       dir,
		logger:    logger,
		now:       time.Now,
	}
}

// Export writes all schedules and blocklists to a new file. An empty name
// is derived from the current time.
func (s *ExportService) Export(ctx context.Context, name string) (*ExportInfo, error) {
	now := s.now()
	if name == "" {
		name = "schedules-" + now.UTC().Format("20060102-150405")
	}
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, domainerrors.AlreadyExistsf("export %s already exists", name)
	}

	doc, err := s.collect(ctx, now)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create exports dir: %w", err)
	}
	if err := writeCompressed(path, doc); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	s.logger.Info("schedules exported",
		slog.String("name", name),
		slog.Int("schedules", len(doc.Schedules)),
		slog.Int64("bytes", info.Size()))
	return &ExportInfo{Name: name, Size: info.Size(), CreatedAt: info.ModTime()}, nil
}

// List returns the export files, newest first.
func (s *ExportService) List() ([]ExportInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ExportInfo{}, nil
		}
		return nil, fmt.Errorf("read exports dir: %w", err)
	}

	out := make([]ExportInfo, 0, len(entries))
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), exportSuffix)
		if !ok || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ExportInfo{Name: name, Size: info.Size(), CreatedAt: info.ModTime()})
	}
	slices.SortFunc(out, func(a, b ExportInfo) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// Read decodes an export file.
func (s *ExportService) Read(name string) (*ExportDocument, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domainerrors.NotFoundf("export %s not found", name)
		}
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var doc ExportDocument
	if err := json.NewDecoder(io.LimitReader(zr, maxExportSize)).Decode(&doc); err != nil {
		return nil, domainerrors.Validationf("export %s is not readable: %v", name, err)
	}
	if doc.Version != exportFormatVersion {
		return nil, domainerrors.Validationf("export %s has unsupported version %d", name, doc.Version)
	}
	return &doc, nil
}

// Import creates the schedules of an export that do not exist by name and
// merges its global blocklist into the current one.
func (s *ExportService) Import(ctx context.Context, name string) (*ImportResult, error) {
	doc, err := s.Read(name)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Created: []string{}, Skipped: []string{}}
	for _, sched := range doc.Schedules {
		if _, err := s.store.GetScheduleByName(ctx, sched.Name); err == nil {
			result.Skipped = append(result.Skipped, sched.Name)
			continue
		} else if !isNotFound(err) {
			return result, err
		}

		created, err := s.schedules.CreateSchedule(ctx, sched)
		if err != nil {
			return result, fmt.Errorf("import schedule %q: %w", sched.Name, err)
		}
		if list := doc.Blocklists[sched.Name]; len(list) > 0 {
			if _, err := s.schedules.SetBlocklist(ctx, created.ID, list); err != nil {
				return result, fmt.Errorf("import blocklist of %q: %w", sched.Name, err)
			}
		}
		result.Created = append(result.Created, created.Name)
	}

	current, err := s.store.GetBlocklist(ctx, domain.GlobalBlocklistID)
	if err != nil {
		return result, err
	}
	for _, pkg := range doc.GlobalBlocklist {
		if !slices.Contains(current, pkg) {
			current = append(current, pkg)
			result.Blocklist++
		}
	}
	if result.Blocklist > 0 {
		if _, err := s.schedules.SetBlocklist(ctx, domain.GlobalBlocklistID, current); err != nil {
			return result, err
		}
	}

	s.logger.Info("schedules imported",
		slog.String("name", name),
		slog.Int("created", len(result.Created)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("blocklist_added", result.Blocklist))
	return result, nil
}

// Delete removes an export file.
func (s *ExportService) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domainerrors.NotFoundf("export %s not found", name)
		}
		return err
	}
	return nil
}

func (s *ExportService) collect(ctx context.Context, now time.Time) (*ExportDocument, error) {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	global, err := s.store.GetBlocklist(ctx, domain.GlobalBlocklistID)
	if err != nil {
		return nil, fmt.Errorf("get global blocklist: %w", err)
	}

	doc := &ExportDocument{
		Version:         exportFormatVersion,
		ExportedAt:      now.UTC(),
		Schedules:       make([]*domain.Schedule, 0, len(schedules)),
		GlobalBlocklist: global,
		Blocklists:      map[string][]string{},
	}
	for _, sched := range schedules {
		list, err := s.store.GetBlocklist(ctx, sched.ID)
		if err != nil {
			return nil, fmt.Errorf("get blocklist of %d: %w", sched.ID, err)
		}
		if len(list) > 0 {
			doc.Blocklists[sched.Name] = list
		}
		// Runtime state is not part of an export.
		c := sched.Copy()
		c.TimePlaced = time.Time{}
		c.TimeToRun = time.Time{}
		doc.Schedules = append(doc.Schedules, c)
	}
	return doc, nil
}

func (s *ExportService) path(name string) (string, error) {
	if !exportNameRe.MatchString(name) {
		return "", domainerrors.Validationf("invalid export name %q", name)
	}
	return filepath.Join(s.dir, name+exportSuffix), nil
}

// writeCompressed encodes doc through a zstd writer into a temp file and
// renames it into place.
func writeCompressed(path string, doc *ExportDocument) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	bufWriter := bufio.NewWriter(f)
	zw, err := zstd.NewWriter(bufWriter, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	return os.Rename(tmp, path)
}
