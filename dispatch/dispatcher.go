package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chaos-io/removebg/task"
	"github.com/chaos-io/removebg/worker"
)

// Channel is the UI end of the worker channel.
type Channel interface {
	Post(req worker.CreateTask) error
	Messages() <-chan worker.Msg
}

// AppStatus is the app-wide banner state, separate from per-task status.
type AppStatus string

const (
	AppInitiate AppStatus = "initiate"
	AppReady    AppStatus = "ready"
	AppProcess  AppStatus = "process"
)

type Dispatcher struct {
	mu    sync.Mutex
	store *task.Store
	queue *Queue
	ch    Channel

	// phase 只由 Initiate/Ready 消息推进，是 worker 阶段的唯一来源
	phase    worker.Phase
	busy     bool
	inflight int
	loadErr  *task.Error

	logger *zap.Logger
}

func New(store *task.Store, ch Channel, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		queue:    NewQueue(),
		ch:       ch,
		phase:    worker.PhaseUninitialized,
		inflight: -1,
		logger:   logger,
	}
}

// Submit allocates a task and enqueues it in one step, so ids and queue
// order agree.
func (d *Dispatcher) Submit(source, name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.store.Allocate(source, name)
	d.enqueueLocked(id)
	return id
}

func (d *Dispatcher) Enqueue(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.enqueueLocked(id)
}

func (d *Dispatcher) enqueueLocked(id int) {
	d.queue.Push(id)
	d.logger.Debug("Task enqueued", zap.Int("task_id", id), zap.Int("queued", d.queue.Len()))
	d.tryDispatchNextLocked()
}

// tryDispatchNextLocked sends the queue head when the worker is ready and free.
func (d *Dispatcher) tryDispatchNextLocked() {
	for !d.busy && d.phase == worker.PhaseReady && d.queue.Len() > 0 {
		id, _ := d.queue.Pop()

		t, err := d.store.Get(id)
		if err != nil {
			d.logger.Error("Dropping unknown task", zap.Int("task_id", id), zap.Error(err))
			continue
		}

		canvas, err := t.Surface.Transfer()
		if err != nil {
			d.logger.Error("Surface already transferred", zap.Int("task_id", id), zap.Error(err))
			continue
		}

		if _, err := d.store.Update(id, task.Update{Status: task.StatusDispatched}); err != nil {
			d.logger.Error("Failed to mark task dispatched", zap.Int("task_id", id), zap.Error(err))
			continue
		}

		d.busy = true
		d.inflight = id
		if err := d.ch.Post(worker.CreateTask{ID: id, Source: t.Source, Canvas: canvas}); err != nil {
			// 通道已关闭，会话结束，任务停留在 dispatched
			d.logger.Error("Failed to post task to worker", zap.Int("task_id", id), zap.Error(err))
			return
		}
		d.logger.Info("Task dispatched", zap.Int("task_id", id), zap.Int("queued", d.queue.Len()))
	}
}

// Handle applies one worker message. Terminal messages free the worker and
// dispatch the next task within the same call.
func (d *Dispatcher) Handle(msg worker.Msg) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch m := msg.(type) {
	case worker.Initiate:
		d.phase = worker.PhaseInitializing
		d.logger.Info("Worker phase changed", zap.Stringer("phase", d.phase))
		return nil

	case worker.Ready:
		d.phase = worker.PhaseReady
		d.loadErr = nil
		d.logger.Info("Worker phase changed", zap.Stringer("phase", d.phase))
		d.tryDispatchNextLocked()
		return nil

	case worker.Process:
		_, err := d.store.Update(m.ID, task.Update{Status: task.StatusProcessing})
		return err

	case worker.Complete:
		return d.finishLocked(m.ID, task.Update{Status: task.StatusComplete, Result: &m.Result})

	case worker.Error:
		if m.Global {
			e := m.Err
			d.loadErr = &e
			d.logger.Error("Worker failed to start", zap.String("name", e.Name), zap.String("message", e.Message))
			return nil
		}
		return d.finishLocked(m.ID, task.Update{Status: task.StatusError, Err: &m.Err})

	case worker.CreateTask:
		return fmt.Errorf("%w: %s only travels to the worker", worker.ErrUnhandledMessage, m.Status())

	default:
		return fmt.Errorf("%w: %T", worker.ErrUnhandledMessage, msg)
	}
}

func (d *Dispatcher) finishLocked(id int, u task.Update) error {
	var err error
	if t, getErr := d.store.Get(id); getErr != nil {
		err = getErr
	} else if reclaimErr := t.Surface.Reclaim(); reclaimErr != nil {
		err = fmt.Errorf("reclaim surface of task %d: %w", id, reclaimErr)
	} else {
		_, err = d.store.Update(id, u)
	}

	if id == d.inflight {
		d.busy = false
		d.inflight = -1
		d.tryDispatchNextLocked()
	} else {
		d.logger.Warn("Terminal message for task not in flight",
			zap.Int("task_id", id), zap.Int("inflight", d.inflight))
	}
	return err
}

// Run applies worker messages until the stream closes or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) {
	msgs := d.ch.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				d.logger.Info("Worker message stream closed")
				return
			}
			d.logger.Debug("Worker message", zap.String("status", msg.Status()))
			if err := d.Handle(msg); err != nil {
				d.logger.Error("Failed to apply worker message",
					zap.String("status", msg.Status()), zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) Phase() worker.Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

func (d *Dispatcher) AppStatus() AppStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.phase != worker.PhaseReady:
		return AppInitiate
	case d.busy:
		return AppProcess
	default:
		return AppReady
	}
}

// LoadError returns the model load failure reported by the worker, if any.
func (d *Dispatcher) LoadError() *task.Error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loadErr == nil {
		return nil
	}
	e := *d.loadErr
	return &e
}

// Pending returns the queued task ids in dispatch order.
func (d *Dispatcher) Pending() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Snapshot()
}
