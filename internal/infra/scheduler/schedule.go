package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// intervalSchedule activates exactly one interval after the given time.
// cron.Every truncates to whole seconds, which is too coarse for short intervals.
type intervalSchedule struct {
	interval time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.interval)
}

// NewIntervalSchedule returns a schedule that fires a fixed interval after the previous cycle ended.
func NewIntervalSchedule(interval time.Duration) (cron.Schedule, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return intervalSchedule{interval: interval}, nil
}

// ParseCronSchedule parses a cron expression such as "0 3 * * *" or a descriptor such as "@daily".
// An optional leading seconds field and a CRON_TZ= prefix are accepted.
func ParseCronSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("cron spec is empty")
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return sched, nil
}
