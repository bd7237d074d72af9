package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// cronParser — стандартный пятипольный формат и дескрипторы (@daily, @every 1h).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// DefaultTimezone — часовой пояс расписаний без явного Timezone.
const DefaultTimezone = "UTC"

// NextDue вычисляет следующее срабатывание расписания после from.
// Время вычисляется в часовом поясе расписания и возвращается в UTC.
func NextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := location(sched.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	schedule, err := cronParser.Parse(sched.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
	}
	return schedule.Next(from.In(loc)).UTC(), nil
}

// Validate проверяет cron-выражение и часовой пояс.
func Validate(sched *domain.Schedule) error {
	if _, err := cronParser.Parse(sched.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sched.CronExpr, err)
	}
	if _, err := location(sched.Timezone); err != nil {
		return err
	}
	return nil
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}
