package api

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/command"
	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/dispatcher"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/housekeeping"
	"github.com/neobackupapp/neobackup-server/internal/inventory"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/ratelimit"
	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/scanner"
	"github.com/neobackupapp/neobackup-server/internal/search"
	"github.com/neobackupapp/neobackup-server/internal/service"
	"github.com/neobackupapp/neobackup-server/internal/sse"
	"github.com/neobackupapp/neobackup-server/internal/store"
	"github.com/neobackupapp/neobackup-server/internal/store/sqlite"
	"github.com/neobackupapp/neobackup-server/internal/validation"
)

var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

// testEnvelope is the typed form of APIEnvelope for decoding responses.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// fakeDispatcher stands in for the schedule dispatcher. It arms alarms in a
// map and records triggers.
type fakeDispatcher struct {
	mu        sync.Mutex
	alarms    map[int64]time.Time
	runs      map[int64]dispatcher.Run
	triggered []int64
	outcome   dispatcher.Outcome
	batches   []domain.BatchResult
	manual    []dispatcher.ManualRequest
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		alarms:  map[int64]time.Time{},
		runs:    map[int64]dispatcher.Run{},
		outcome: dispatcher.OutcomeRunning,
	}
}

func (f *fakeDispatcher) Trigger(_ context.Context, id int64, source dispatcher.Source) (dispatcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, id)
	res := dispatcher.Result{Outcome: f.outcome, RunID: "run-test"}
	if f.outcome == dispatcher.OutcomeRunning {
		res.Batch = "batch-test"
		res.Packages = 2
		f.runs[id] = dispatcher.Run{ScheduleID: id, RunID: res.RunID, Source: source, Batch: res.Batch, StartedAt: testNow}
	}
	return res, nil
}

func (f *fakeDispatcher) Rearm(_ context.Context, id int64, _ bool) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at := testNow.Add(time.Hour)
	f.alarms[id] = at
	return at, nil
}

func (f *fakeDispatcher) Disarm(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.alarms[id]
	delete(f.alarms, id)
	return ok
}

func (f *fakeDispatcher) NextAlarm(id int64) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.alarms[id]
	return at, ok
}

func (f *fakeDispatcher) Preview(s *domain.Schedule) time.Time {
	return dispatcher.NextTrigger(s, testNow, 0)
}

func (f *fakeDispatcher) RunOf(id int64) (dispatcher.Run, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	return r, ok
}

func (f *fakeDispatcher) Guard(ctx context.Context, _ string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domainerrors.Internalf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (f *fakeDispatcher) Running() []dispatcher.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dispatcher.Run, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out
}

func (f *fakeDispatcher) Alarms() []dispatcher.Alarm {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dispatcher.Alarm, 0, len(f.alarms))
	for id, at := range f.alarms {
		out = append(out, dispatcher.Alarm{ScheduleID: id, At: at})
	}
	return out
}

func (f *fakeDispatcher) WakeLockHeld() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs) > 0
}

func (f *fakeDispatcher) ActiveBatches() []domain.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

func (f *fakeDispatcher) RunManual(_ context.Context, req dispatcher.ManualRequest) (dispatcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Direction != domain.DirectionBackup && req.Direction != domain.DirectionRestore {
		return dispatcher.Result{}, domainerrors.Validationf("unknown direction %q", req.Direction)
	}
	f.manual = append(f.manual, req)
	return dispatcher.Result{
		Outcome:  dispatcher.OutcomeRunning,
		RunID:    "run-manual",
		Batch:    "Manual " + string(req.Direction) + " @ test",
		Packages: len(req.Packages),
	}, nil
}

// fakeBatches cancels batches known to the fake dispatcher.
type fakeBatches struct {
	cancelled []string
}

func (b *fakeBatches) Cancel(name string) (int, error) {
	if name != "batch-test" {
		return 0, domainerrors.NotFoundf("batch %s not found", name)
	}
	b.cancelled = append(b.cancelled, name)
	return 3, nil
}

type testServer struct {
	*Server
	api        humatest.TestAPI
	db         *sqlite.Store
	history    *store.Store
	registry   *registry.Registry
	dir        *backup.Dir
	dispatcher *fakeDispatcher
	batches    *fakeBatches
	tokens     *auth.TokenService
	key        []byte
}

type testOptions struct {
	authRequired bool
	debug        bool
	limiter      *ratelimit.KeyedRateLimiter
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	return setupTestServerWith(t, testOptions{debug: true})
}

func setupTestServerWith(t *testing.T, opts testOptions) *testServer {
	t.Helper()
	log := logger.Discard()
	tmpDir := t.TempDir()

	db, err := sqlite.Open(filepath.Join(tmpDir, "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	history, err := store.New(filepath.Join(tmpDir, "badger"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	key, err := auth.LoadOrGenerateKey(filepath.Join(tmpDir, "auth.key"))
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)

	cfg := &config.Config{
		Backup:    config.BackupConfig{Root: filepath.Join(tmpDir, "backups")},
		Discovery: config.DiscoveryConfig{Name: "Test Scheduler"},
		Auth:      config.AuthConfig{Required: opts.authRequired},
	}

	reg := registry.New(log)
	dir := backup.NewDir(cfg.Backup.Root, log)
	inv := inventory.NewStatic([]domain.Package{
		{Name: "org.mozilla.firefox", Label: "Firefox", IsInstalled: true},
		{Name: "com.termux", Label: "Termux", IsInstalled: true},
	}, log)
	hk := housekeeping.New(dir, reg, housekeeping.Policy{Keep: 2, SkipPersistent: true}, log)
	sc := scanner.NewScanner(dir, reg, log)

	index, err := search.NewSearchIndex(search.Options{DataPath: filepath.Join(tmpDir, "search"), Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	disp := newFakeDispatcher()
	batches := &fakeBatches{}
	validator := validation.New()
	schedules := service.NewScheduleService(db, disp, validator, log)
	searchService := service.NewSearchService(index, reg, inv, db, log)

	services := &Services{
		Instance: service.NewInstanceService(db, log, cfg),
		Schedule: schedules,
		Backup:   service.NewBackupService(reg, inv, dir, sc, hk, history, log),
		Extras:   service.NewExtrasService(db, searchService, validator, log),
		Search:   searchService,
		Export:   service.NewExportService(db, schedules, filepath.Join(tmpDir, "exports"), log),
		Commands: command.NewHandler(db, disp, batches, opts.debug, time.UTC, log),
		Status:   disp,
		Manual:   disp,
	}

	s := NewServer(services, sse.NewManager(log), Options{
		Version:        "test",
		AuthRequired:   opts.authRequired,
		Tokens:         tokens,
		CommandLimiter: opts.limiter,
	}, log)

	return &testServer{
		Server:     s,
		api:        humatest.Wrap(t, s.API()),
		db:         db,
		history:    history,
		registry:   reg,
		dir:        dir,
		dispatcher: disp,
		batches:    batches,
		tokens:     tokens,
		key:        key,
	}
}

// token issues a bearer header value with the given scopes.
func (ts *testServer) token(t *testing.T, scopes ...auth.Scope) string {
	t.Helper()
	tok, _, err := ts.tokens.Issue("test-client", scopes)
	require.NoError(t, err)
	return "Authorization: Bearer " + tok
}

// createSchedule creates a schedule through the API and returns it.
func (ts *testServer) createSchedule(t *testing.T, body map[string]any) ScheduleResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/schedules", body)
	require.Equal(t, 201, resp.Code, "create failed: %s", resp.Body.String())
	return decodeData[ScheduleResponse](t, resp.Body.Bytes())
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	require.True(t, env.Success, "body: %s", body)
	return env.Data
}

func decodeError(t *testing.T, body []byte) APIErrorEnvelope {
	t.Helper()
	var env APIErrorEnvelope
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	require.False(t, env.Success)
	return env
}
func itoa(n int64) string { return strconv.FormatInt(n, 10) }
