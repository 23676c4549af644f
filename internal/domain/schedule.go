package domain

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Schedule is a persisted definition of a recurring backup job.
// ID is assigned by the store and never changes.
type Schedule struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name" validate:"required,max=128"`
	Enabled       bool          `json:"enabled"`
	TimeHour      int           `json:"time_hour" validate:"gte=0,lte=23"`
	TimeMinute    int           `json:"time_minute" validate:"gte=0,lte=59"`
	Interval      int           `json:"interval" validate:"gte=1,lte=365"` // days
	Mode          Mode          `json:"mode"`
	Filter        int           `json:"filter"`
	SpecialFilter SpecialFilter `json:"special_filter"`
	CustomList    []string      `json:"custom_list,omitempty"`
	BlockList     []string      `json:"block_list,omitempty"`
	TagsList      []string      `json:"tags_list,omitempty"`

	// TimePlaced anchors the interval. Zero means "today".
	TimePlaced time.Time `json:"time_placed"`
	// TimeToRun is the last armed trigger time, informational.
	TimeToRun time.Time `json:"time_to_run"`
}

// NewSchedule returns a schedule with the defaults used when a user creates one.
func NewSchedule(name string) *Schedule {
	if name == "" {
		name = RandomScheduleName()
	}
	return &Schedule{
		Name:       name,
		TimeHour:   12,
		TimeMinute: 0,
		Interval:   1,
		Mode:       ModeAll,
		Filter:     MainFilterUser,
	}
}

// Copy returns a deep copy.
func (s *Schedule) Copy() *Schedule {
	c := *s
	c.CustomList = slices.Clone(s.CustomList)
	c.BlockList = slices.Clone(s.BlockList)
	c.TagsList = slices.Clone(s.TagsList)
	return &c
}

// WithTime returns a copy with a new time of day.
func (s *Schedule) WithTime(hour, minute int) *Schedule {
	c := s.Copy()
	c.TimeHour = hour
	c.TimeMinute = minute
	return c
}

// TimeOfDay formats the trigger time as HH:MM.
func (s *Schedule) TimeOfDay() string {
	return fmt.Sprintf("%02d:%02d", s.TimeHour, s.TimeMinute)
}

// Validate checks invariants the store relies on.
func (s *Schedule) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return fmt.Errorf("schedule name is required")
	case s.TimeHour < 0 || s.TimeHour > 23:
		return fmt.Errorf("hour %d out of range", s.TimeHour)
	case s.TimeMinute < 0 || s.TimeMinute > 59:
		return fmt.Errorf("minute %d out of range", s.TimeMinute)
	case s.Interval < 1:
		return fmt.Errorf("interval must be at least one day, got %d", s.Interval)
	case !s.Mode.Valid():
		return fmt.Errorf("invalid mode %d", s.Mode)
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(v string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, 0, fmt.Errorf("time %q is not HH:MM", v)
	}
	if hour, err = strconv.Atoi(h); err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	if minute, err = strconv.Atoi(m); err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return hour, minute, nil
}

var scheduleAdjectives = []string{
	"Fast", "Modern", "Jumpy", "Smart", "Agile", "Dynamic", "Swift", "Calm",
	"Daily", "Weekly", "Flexible", "Reliable", "Steady", "Balanced", "Rapid",
	"Focused", "Lean", "Quiet", "Reactive", "Robust", "Simple", "Clean", "Turbo",
	"Fresh", "Bright", "Sharp", "Prime", "Bold", "Compact", "Cosmic", "Zippy",
}

// RandomScheduleName returns a friendly name for unnamed schedules.
func RandomScheduleName() string {
	return scheduleAdjectives[rand.IntN(len(scheduleAdjectives))] + " Schedule"
}
