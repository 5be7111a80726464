package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Every fires at a fixed interval, rounded to whole seconds.
func Every(d time.Duration) cron.Schedule {
	return cron.Every(d)
}

// DailyAt fires once a day at hour:minute UTC.
func DailyAt(hour, minute int) (cron.Schedule, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid daily time %02d:%02d", hour, minute)
	}
	return Parse(fmt.Sprintf("%d %d * * *", minute, hour))
}

// Parse reads a standard five-field cron expression or a descriptor such as
// "@hourly" or "@every 6h". Expressions without a CRON_TZ prefix are
// evaluated in UTC.
func Parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule expression")
	}
	if !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = "CRON_TZ=UTC " + expr
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return sched, nil
}
