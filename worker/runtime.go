package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chaos-io/removebg/task"
)

// Pipeline is the background-removal collaborator the worker drives. Run draws
// the finished image into canvas.
type Pipeline interface {
	Load(ctx context.Context) error
	Run(ctx context.Context, source string, canvas *task.Canvas) error
}

// namedError lets pipeline errors carry a classification for the task row.
type namedError interface {
	ErrorName() string
}

type Runtime struct {
	ch       *Channel
	pipeline Pipeline
	logger   *zap.Logger
	now      func() time.Time
}

func NewRuntime(ch *Channel, pipeline Pipeline, logger *zap.Logger) *Runtime {
	return &Runtime{
		ch:       ch,
		pipeline: pipeline,
		logger:   logger,
		now:      time.Now,
	}
}

// Run loads the model and then serves requests one at a time until the
// channel is closed or ctx ends. The message stream is closed on return.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.ch.end()

	if err := r.ch.Send(ctx, Initiate{}); err != nil {
		return err
	}

	if err := r.pipeline.Load(ctx); err != nil {
		r.logger.Error("Failed to load model", zap.Error(err))
		_ = r.ch.Send(ctx, Error{Global: true, Err: toTaskError(err)})
		return err
	}

	if err := r.ch.Send(ctx, Ready{}); err != nil {
		return err
	}
	r.logger.Info("Worker ready")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.ch.Done():
			return nil
		case req := <-r.ch.Requests():
			if err := r.handle(ctx, req); err != nil {
				return err
			}
		}
	}
}

// handle sends exactly one terminal message for req.
func (r *Runtime) handle(ctx context.Context, req CreateTask) error {
	r.logger.Debug("Received task", zap.Int("task_id", req.ID), zap.String("source", req.Source))

	if err := r.ch.Send(ctx, Process{ID: req.ID}); err != nil {
		return err
	}

	start := r.now()
	err := r.pipeline.Run(ctx, req.Source, req.Canvas)
	if err != nil {
		r.logger.Error("Task failed", zap.Int("task_id", req.ID), zap.Error(err))
		return r.ch.Send(ctx, Error{ID: req.ID, Err: toTaskError(err)})
	}

	elapsed := r.now().Sub(start)
	r.logger.Info("Task complete", zap.Int("task_id", req.ID), zap.Duration("time", elapsed))
	return r.ch.Send(ctx, Complete{ID: req.ID, Result: task.Result{Time: elapsed}})
}

func toTaskError(err error) task.Error {
	var te *task.Error
	if errors.As(err, &te) {
		return *te
	}

	name := "Error"
	var named namedError
	switch {
	case errors.As(err, &named):
		name = named.ErrorName()
	case errors.Is(err, context.DeadlineExceeded):
		name = "TimeoutError"
	case errors.Is(err, context.Canceled):
		name = "AbortError"
	}
	return task.Error{Name: name, Message: err.Error()}
}
