package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts the same standard five-field expressions (and @descriptors)
// as cron.ParseStandard.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type TriggerInfo struct {
	Expression string    `json:"expression"`
	Next       time.Time `json:"next"`
	Last       time.Time `json:"last"`

	TimeSinceLast time.Duration `json:"time_since_last,omitempty"`
	TimeUntilNext time.Duration `json:"time_until_next"`
}

// GetTriggerInfo returns the fire times around refTime. Last stays zero when
// the expression did not fire within the previous year.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	nextTime := schedule.Next(refTime)

	// Walk back an hour at a time until a window contains a fire time, then
	// take the latest one not after refTime.
	var prevTime time.Time
	for i := 1; i <= 366*24; i++ {
		windowStart := refTime.Add(-time.Duration(i) * time.Hour)
		candidate := schedule.Next(windowStart)
		if candidate.After(refTime) {
			continue
		}
		for !candidate.After(refTime) {
			prevTime = candidate
			candidate = schedule.Next(candidate)
		}
		break
	}

	info := &TriggerInfo{
		Expression:    cronExpr,
		Next:          nextTime,
		Last:          prevTime,
		TimeUntilNext: nextTime.Sub(refTime),
	}
	if !prevTime.IsZero() {
		info.TimeSinceLast = refTime.Sub(prevTime)
	}
	return info, nil
}
