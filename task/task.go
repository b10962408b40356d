// Package task holds the per-image task records, their status state machine
// and the append-only store the dispatcher and the ingestion adapters write to.
package task

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Status string

const (
	// StatusPending 已提交，等待调度
	StatusPending Status = "pending"
	// StatusDispatched 已发送给 worker，尚未确认
	StatusDispatched Status = "dispatched"
	// StatusProcessing worker 已确认并开始处理
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusDispatched},
	StatusDispatched: {StatusProcessing},
	StatusProcessing: {StatusComplete, StatusError},
}

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Result struct {
	Time time.Duration
}

// Error is the failure reported by the worker for a single task.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

type Task struct {
	ID int
	// Source 图片来源，blob 定位符或 URL
	Source string
	// Name 展示名，来自文件名或 host+path，可为空
	Name    string
	Status  Status
	Surface *Surface
	Result  *Result
	Err     *Error

	CreatedAt time.Time
	UpdatedAt time.Time
}

// clone returns a snapshot that shares nothing mutable with t except the
// Surface handle, which guards itself.
func (t *Task) clone() Task {
	c := *t
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	if t.Err != nil {
		e := *t.Err
		c.Err = &e
	}
	return c
}
