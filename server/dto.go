package server

import (
	"fmt"
	"time"

	"github.com/chaos-io/removebg/blob"
	"github.com/chaos-io/removebg/dispatch"
	"github.com/chaos-io/removebg/task"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

type TaskError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type TaskResponse struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	// SourceURL 原图地址：上传的文件走 /source，URL 任务就是原 URL
	SourceURL string     `json:"source_url"`
	ImageURL  string     `json:"image_url,omitempty"`
	TimeMs    *int64     `json:"time_ms,omitempty"`
	Error     *TaskError `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func newTaskResponse(t task.Task) TaskResponse {
	resp := TaskResponse{
		ID:        t.ID,
		Name:      t.Name,
		Status:    string(t.Status),
		SourceURL: t.Source,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if blob.IsLocator(t.Source) {
		resp.SourceURL = fmt.Sprintf("/api/tasks/%d/source", t.ID)
	}
	if t.Result != nil {
		ms := t.Result.Time.Milliseconds()
		resp.TimeMs = &ms
		resp.ImageURL = fmt.Sprintf("/api/tasks/%d/image", t.ID)
	}
	if t.Err != nil {
		resp.Error = &TaskError{Name: t.Err.Name, Message: t.Err.Message}
	}
	return resp
}

type StatusResponse struct {
	Supported bool               `json:"supported"`
	Status    dispatch.AppStatus `json:"status"`
	Error     string             `json:"error,omitempty"`
	Summary   map[string]int     `json:"summary"`
}

type SubmitResponse struct {
	IDs     []int    `json:"ids"`
	Skipped []string `json:"skipped,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

type URLRequest struct {
	URL string `json:"url"`
}

type TransferItem struct {
	Kind string `json:"kind"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	// Data 文件内容，JSON 里是 base64
	Data  []byte `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
}

type TransferRequest struct {
	Items []TransferItem `json:"items"`
}

type eventMessage struct {
	Type   string          `json:"type"`
	Task   *TaskResponse   `json:"task,omitempty"`
	Status *StatusResponse `json:"status,omitempty"`
	Error  string          `json:"error,omitempty"`
}
