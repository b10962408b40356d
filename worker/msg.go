// Package worker is the boundary to the single background execution context
// that runs background removal. The UI side and the worker side talk only
// through the messages defined here.
package worker

import (
	"errors"

	"github.com/chaos-io/removebg/task"
)

var ErrUnhandledMessage = errors.New("unhandled worker message")

// Msg is the closed set of messages crossing the worker boundary.
type Msg interface {
	Status() string
	isMsg()
}

// Initiate worker 开始加载模型
type Initiate struct{}

// Ready 模型加载完成，可以接收任务
type Ready struct{}

// CreateTask ui -> worker，Canvas 的所有权随消息转移
type CreateTask struct {
	ID     int
	Source string
	Canvas *task.Canvas
}

// Process worker 开始处理任务 ID
type Process struct {
	ID int
}

type Complete struct {
	ID     int
	Result task.Result
}

// Error reports a task failure. Global errors (model load) carry no task id.
type Error struct {
	ID     int
	Global bool
	Err    task.Error
}

func (Initiate) Status() string   { return "initiate" }
func (Ready) Status() string      { return "ready" }
func (CreateTask) Status() string { return "createTask" }
func (Process) Status() string    { return "process" }
func (Complete) Status() string   { return "complete" }
func (Error) Status() string      { return "error" }

func (Initiate) isMsg()   {}
func (Ready) isMsg()      {}
func (CreateTask) isMsg() {}
func (Process) isMsg()    {}
func (Complete) isMsg()   {}
func (Error) isMsg()      {}
