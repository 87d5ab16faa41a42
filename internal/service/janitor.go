package service

import (
	"context"
	"log/slog"
	"time"
)

// CleanupTask deletes rows that no reader can use any more, such as expired
// tokens or finished rate windows, and reports how many it removed.
type CleanupTask struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

type Janitor struct {
	tasks    []CleanupTask
	interval time.Duration
}

func NewJanitor(interval time.Duration, tasks ...CleanupTask) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{tasks: tasks, interval: interval}
}

// Start runs every task once immediately and then on each tick until ctx is
// cancelled.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *Janitor) RunOnce(ctx context.Context) {
	for _, task := range j.tasks {
		removed, err := task.Run(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("cleanup task failed", "task", task.Name, "error", err)
			}
			continue
		}
		if removed > 0 {
			slog.Info("cleanup task completed", "task", task.Name, "removed", removed)
		}
	}
}
