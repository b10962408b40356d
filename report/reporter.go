// Package report periodically logs a summary of the task queue.
package report

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chaos-io/removebg/dispatch"
	"github.com/chaos-io/removebg/task"
)

type Source interface {
	Summary() map[task.Status]int
}

type StatusSource interface {
	AppStatus() dispatch.AppStatus
	Pending() []int
}

type Reporter struct {
	tasks  Source
	app    StatusSource
	cron   *cron.Cron
	logger *zap.Logger
}

// New 按 schedule（cron 表达式或 @every 1m）定时打印队列概况
func New(tasks Source, app StatusSource, schedule string, logger *zap.Logger) (*Reporter, error) {
	r := &Reporter{
		tasks:  tasks,
		app:    app,
		cron:   cron.New(),
		logger: logger,
	}
	if _, err := r.cron.AddFunc(schedule, r.Report); err != nil {
		return nil, fmt.Errorf("invalid report schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (r *Reporter) Report() {
	summary := r.tasks.Summary()
	r.logger.Info("Task summary",
		zap.String("app_status", string(r.app.AppStatus())),
		zap.Int("queued", len(r.app.Pending())),
		zap.Int(string(task.StatusPending), summary[task.StatusPending]),
		zap.Int(string(task.StatusDispatched), summary[task.StatusDispatched]),
		zap.Int(string(task.StatusProcessing), summary[task.StatusProcessing]),
		zap.Int(string(task.StatusComplete), summary[task.StatusComplete]),
		zap.Int(string(task.StatusError), summary[task.StatusError]),
	)
}
