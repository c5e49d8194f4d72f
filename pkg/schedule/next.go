package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// NextRun calculates the next fire time for a spec in unix milliseconds
func NextRun(spec Spec) (int64, error) {
	switch spec.Kind {
	case KindAt:
		return nextAt(spec)
	case KindEvery:
		return nextEvery(spec)
	case KindCron:
		return nextCron(spec)
	default:
		return 0, fmt.Errorf("unknown schedule kind: %s", spec.Kind)
	}
}

func nextAt(spec Spec) (int64, error) {
	if spec.At == "" {
		return 0, fmt.Errorf("'at' schedule requires 'at' field")
	}

	t, err := time.Parse(time.RFC3339, spec.At)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp: %w", err)
	}

	return t.UnixMilli(), nil
}

func nextEvery(spec Spec) (int64, error) {
	if spec.EveryMs <= 0 {
		return 0, fmt.Errorf("'every' schedule requires positive 'every_ms' value")
	}

	return time.Now().UnixMilli() + spec.EveryMs, nil
}

func nextCron(spec Spec) (int64, error) {
	if spec.Expr == "" {
		return 0, fmt.Errorf("'cron' schedule requires 'expr' field")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec.Expr)
	if err != nil {
		return 0, fmt.Errorf("invalid cron expression: %w", err)
	}

	now := time.Now()
	if spec.TZ != "" {
		loc, err := time.LoadLocation(spec.TZ)
		if err != nil {
			return 0, fmt.Errorf("invalid timezone: %w", err)
		}
		now = now.In(loc)
	}

	return sched.Next(now).UnixMilli(), nil
}
