package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/store"
)

// scheduleColumns is the ordered list of columns selected in schedule queries.
// Must match the scan order in scanSchedule.
const scheduleColumns = `id, name, enabled, time_hour, time_minute, interval_days, mode, filter,
	special_filter, custom_list, block_list, tags_list, time_placed, time_to_run`

// scanSchedule scans a sql.Row (or sql.Rows via its Scan method) into a domain.Schedule.
func scanSchedule(scanner interface{ Scan(dest ...any) error }) (*domain.Schedule, error) {
	var s domain.Schedule

	var (
		enabled       int
		mode          int
		specialFilter string
		customList    string
		blockList     string
		tagsList      string
		timePlaced    sql.NullString
		timeToRun     sql.NullString
	)

	err := scanner.Scan(
		&s.ID,
		&s.Name,
		&enabled,
		&s.TimeHour,
		&s.TimeMinute,
		&s.Interval,
		&mode,
		&s.Filter,
		&specialFilter,
		&customList,
		&blockList,
		&tagsList,
		&timePlaced,
		&timeToRun,
	)
	if err != nil {
		return nil, err
	}

	s.Enabled = enabled != 0
	s.Mode = domain.Mode(mode)

	if err := json.Unmarshal([]byte(specialFilter), &s.SpecialFilter); err != nil {
		return nil, fmt.Errorf("special_filter: %w", err)
	}
	for _, col := range []struct {
		raw  string
		dest *[]string
	}{
		{customList, &s.CustomList},
		{blockList, &s.BlockList},
		{tagsList, &s.TagsList},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, err
		}
	}

	if s.TimePlaced, err = parseNullTime(timePlaced); err != nil {
		return nil, err
	}
	if s.TimeToRun, err = parseNullTime(timeToRun); err != nil {
		return nil, err
	}

	return &s, nil
}

// scheduleArgs marshals the mutable columns in scheduleColumns order,
// without the id.
func scheduleArgs(s *domain.Schedule) ([]any, error) {
	specialFilter, err := json.Marshal(s.SpecialFilter)
	if err != nil {
		return nil, err
	}
	lists := make([]string, 0, 3)
	for _, l := range [][]string{s.CustomList, s.BlockList, s.TagsList} {
		if l == nil {
			l = []string{}
		}
		data, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		lists = append(lists, string(data))
	}

	return []any{
		s.Name,
		boolToInt(s.Enabled),
		s.TimeHour,
		s.TimeMinute,
		s.Interval,
		int(s.Mode),
		s.Filter,
		string(specialFilter),
		lists[0],
		lists[1],
		lists[2],
		nullTime(s.TimePlaced),
		nullTime(s.TimeToRun),
	}, nil
}

// CreateSchedule inserts a schedule and sets its ID.
// Returns store.ErrAlreadyExists when the name is taken.
func (s *Store) CreateSchedule(ctx context.Context, sched *domain.Schedule) error {
	args, err := scheduleArgs(sched)
	if err != nil {
		return err
	}
	now := formatTime(time.Now())
	args = append(args, now, now)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (
			name, enabled, time_hour, time_minute, interval_days, mode, filter,
			special_filter, custom_list, block_list, tags_list, time_placed, time_to_run,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return store.AlreadyExists("schedule", sched.Name)
		}
		return err
	}

	sched.ID, err = res.LastInsertId()
	return err
}

// GetSchedule retrieves a schedule by ID.
// Returns store.ErrNotFound if the schedule does not exist.
func (s *Store) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)

	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, store.NotFound("schedule", id)
	}
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// GetScheduleByName retrieves a schedule by its unique name.
func (s *Store) GetScheduleByName(ctx context.Context, name string) (*domain.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE name = ?`, name)

	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, store.NotFound("schedule", name)
	}
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// ListSchedules returns all schedules ordered by ID.
func (s *Store) ListSchedules(ctx context.Context) ([]*domain.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*domain.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return schedules, nil
}

// CountSchedules returns the number of stored schedules.
func (s *Store) CountSchedules(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedules`).Scan(&n)
	return n, err
}

// UpdateSchedule performs a full row update on an existing schedule.
// Returns store.ErrNotFound if the schedule does not exist.
func (s *Store) UpdateSchedule(ctx context.Context, sched *domain.Schedule) error {
	args, err := scheduleArgs(sched)
	if err != nil {
		return err
	}
	args = append(args, formatTime(time.Now()), sched.ID)

	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET
			name = ?, enabled = ?, time_hour = ?, time_minute = ?, interval_days = ?,
			mode = ?, filter = ?, special_filter = ?, custom_list = ?, block_list = ?,
			tags_list = ?, time_placed = ?, time_to_run = ?, updated_at = ?
		WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return store.AlreadyExists("schedule", sched.Name)
		}
		return err
	}
	return rowsAffectedOrNotFound(res, "schedule", sched.ID)
}

// UpdateScheduleTimes writes the anchor and next trigger time only, leaving
// user-edited columns untouched.
func (s *Store) UpdateScheduleTimes(ctx context.Context, id int64, placed, toRun time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET time_placed = ?, time_to_run = ? WHERE id = ?`,
		nullTime(placed), nullTime(toRun), id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res, "schedule", id)
}

// DeleteSchedule removes a schedule and its blocklist.
// Returns store.ErrNotFound if the schedule does not exist.
func (s *Store) DeleteSchedule(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := rowsAffectedOrNotFound(res, "schedule", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blocklists WHERE list_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
