package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowmill/flowmill/pkg/types"
)

// Calendar is a parsed schedule definition. Definitions are key=value
// entries separated by newlines or semicolons:
//
//	second=0
//	minute=*/5
//	hour=*
//	dayOfMonth=1
//	timezone=Europe/Berlin
//
// Supported keys: second, minute, hour, dayOfWeek, dayOfMonth, month,
// year, timezone, start, end. Whitespace is tolerated, unknown keys are
// ignored. The field values follow cron syntax; year, start and end act
// as filters on the computed fire times.
type Calendar struct {
	spec     string
	schedule cron.Schedule
	location *time.Location
	years    map[int]bool
	start    time.Time
	end      time.Time
}

var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCalendar parses a schedule definition.
func ParseCalendar(definition string) (*Calendar, error) {
	fields := map[string]string{
		"second":     "0",
		"minute":     "*",
		"hour":       "*",
		"dayofmonth": "*",
		"month":      "*",
		"dayofweek":  "*",
	}
	cal := &Calendar{location: time.Local}

	for _, entry := range splitEntries(definition) {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			return nil, types.NewWorkflowError("scheduler", types.CodeSchedulerError,
				fmt.Sprintf("invalid calendar entry: %q", entry))
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "second", "minute", "hour", "dayofmonth", "month", "dayofweek":
			fields[key] = value
		case "year":
			years, err := parseYears(value)
			if err != nil {
				return nil, err
			}
			cal.years = years
		case "timezone":
			loc, err := time.LoadLocation(value)
			if err != nil {
				return nil, types.WrapWorkflowError("scheduler", types.CodeSchedulerError,
					fmt.Sprintf("invalid timezone %q", value), err)
			}
			cal.location = loc
		case "start":
			t, err := parseBound(value)
			if err != nil {
				return nil, err
			}
			cal.start = t
		case "end":
			t, err := parseBound(value)
			if err != nil {
				return nil, err
			}
			cal.end = t
		default:
			// unknown keys are ignored
		}
	}

	cal.spec = fmt.Sprintf("%s %s %s %s %s %s",
		fields["second"], fields["minute"], fields["hour"],
		fields["dayofmonth"], fields["month"], fields["dayofweek"])
	schedule, err := cronParser.Parse(cal.spec)
	if err != nil {
		return nil, types.WrapWorkflowError("scheduler", types.CodeSchedulerError,
			fmt.Sprintf("invalid calendar definition %q", cal.spec), err)
	}
	cal.schedule = schedule
	return cal, nil
}

// Next computes the next fire time after the given instant. The second
// return value is false when the schedule has no further fire time
// within its bounds.
func (c *Calendar) Next(after time.Time) (time.Time, bool) {
	t := after.In(c.location)
	if !c.start.IsZero() && t.Before(c.start) {
		t = c.start.In(c.location)
	}
	for i := 0; i < 1000; i++ {
		t = c.schedule.Next(t)
		if t.IsZero() {
			return time.Time{}, false
		}
		if !c.end.IsZero() && t.After(c.end) {
			return time.Time{}, false
		}
		if c.years != nil && !c.years[t.Year()] {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

func splitEntries(definition string) []string {
	var entries []string
	for _, line := range strings.FieldsFunc(definition, func(r rune) bool {
		return r == '\n' || r == ';'
	}) {
		line = strings.TrimSpace(line)
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries
}

func parseYears(value string) (map[int]bool, error) {
	if value == "*" || value == "" {
		return nil, nil
	}
	years := make(map[int]bool)
	for _, entry := range strings.Split(value, ",") {
		year, err := strconv.Atoi(strings.TrimSpace(entry))
		if err != nil {
			return nil, types.NewWorkflowError("scheduler", types.CodeSchedulerError,
				fmt.Sprintf("invalid year %q", entry))
		}
		years[year] = true
	}
	return years, nil
}

func parseBound(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, types.NewWorkflowError("scheduler", types.CodeSchedulerError,
		fmt.Sprintf("invalid time bound %q", value))
}
