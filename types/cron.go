package types

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

type CronManager interface {
	LifecycleManager
	Add(name, spec string, job func(ctx context.Context) error) error
	Remove(name string) error
	Jobs() []JobInfo
}

type JobInfo struct {
	ID       cron.EntryID  `json:"id"`
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	LastRun  time.Time     `json:"last_run"`
	NextRun  time.Time     `json:"next_run"`
	Duration time.Duration `json:"last_duration"`
	RunCount int64         `json:"run_count"`
	LastErr  string        `json:"last_error,omitempty"`
}
