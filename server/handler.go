package server

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/removebg/blob"
	"github.com/chaos-io/removebg/dispatch"
	"github.com/chaos-io/removebg/export"
	"github.com/chaos-io/removebg/ingest"
	"github.com/chaos-io/removebg/task"
)

// AppState is the dispatcher view the handlers need.
type AppState interface {
	AppStatus() dispatch.AppStatus
	LoadError() *task.Error
}

// Deps 在不支持的环境下只需要 Store、Logger 和 Unsupported
type Deps struct {
	Store   *task.Store
	Blobs   *blob.Store
	App     AppState
	Ingest  *ingest.Adapter
	Encoder *export.Encoder
	// Unsupported 非空时进入降级模式，所有任务接口返回 503
	Unsupported error

	MaxUploadBytes int64
	EventBuffer    int
	Logger         *zap.Logger
}

type Handler struct {
	deps   Deps
	logger *zap.Logger
}

func NewHandler(deps Deps) *Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 32 << 20
	}
	if deps.EventBuffer <= 0 {
		deps.EventBuffer = 64
	}
	return &Handler{deps: deps, logger: deps.Logger}
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

func (h *Handler) status() StatusResponse {
	resp := StatusResponse{
		Supported: h.deps.Unsupported == nil,
		Status:    dispatch.AppInitiate,
		Summary:   make(map[string]int),
	}
	for status, n := range h.deps.Store.Summary() {
		resp.Summary[string(status)] = n
	}

	if h.deps.Unsupported != nil {
		resp.Error = h.deps.Unsupported.Error()
		return resp
	}
	resp.Status = h.deps.App.AppStatus()
	if loadErr := h.deps.App.LoadError(); loadErr != nil {
		resp.Error = loadErr.Error()
	}
	return resp
}

// RequireSupported 降级模式下拦截任务接口
func (h *Handler) RequireSupported(c *gin.Context) {
	if h.deps.Unsupported != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   h.deps.Unsupported.Error(),
			TraceID: GetTraceID(c),
		})
		return
	}
	c.Next()
}

// RequireWorker 模型加载失败后不再接收新任务，已排队的任务保持 pending
func (h *Handler) RequireWorker(c *gin.Context) {
	if loadErr := h.deps.App.LoadError(); loadErr != nil {
		h.handleError(c, "Model failed to load: "+loadErr.Error(), loadErr, http.StatusServiceUnavailable)
		return
	}
	c.Next()
}

func (h *Handler) UploadFiles(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.deps.MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.handleError(c, "Upload too large", err, http.StatusRequestEntityTooLarge)
			return
		}
		h.handleError(c, "Failed to parse form", err, http.StatusBadRequest)
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		h.handleError(c, "No files uploaded", nil, http.StatusBadRequest)
		return
	}

	files := make([]ingest.File, 0, len(headers))
	for _, header := range headers {
		f, err := readFormFile(header)
		if err != nil {
			h.handleError(c, "Failed to read file", err, http.StatusBadRequest)
			return
		}
		files = append(files, f)
	}

	h.respondSubmit(c, h.deps.Ingest.FromFiles(files))
}

func readFormFile(header *multipart.FileHeader) (ingest.File, error) {
	file, err := header.Open()
	if err != nil {
		return ingest.File{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return ingest.File{}, err
	}
	return ingest.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *Handler) Transfer(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.deps.MaxUploadBytes)

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, "Invalid request body", err, http.StatusBadRequest)
		return
	}

	items := make([]ingest.Item, 0, len(req.Items))
	for _, it := range req.Items {
		item := ingest.Item{Kind: it.Kind, Type: it.Type, Value: it.Value}
		if it.Kind == ingest.KindFile && (it.Data != nil || it.Name != "") {
			item.File = &ingest.File{Name: it.Name, ContentType: it.Type, Data: it.Data}
		}
		items = append(items, item)
	}

	h.respondSubmit(c, h.deps.Ingest.FromDataTransfer(items))
}

func (h *Handler) SubmitURL(c *gin.Context) {
	var req URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, "Invalid request body", err, http.StatusBadRequest)
		return
	}

	id, err := h.deps.Ingest.FromURL(req.URL)
	if err != nil {
		h.handleError(c, ingest.InvalidURLMessage, err, http.StatusUnprocessableEntity)
		return
	}
	c.JSON(http.StatusCreated, SubmitResponse{IDs: []int{id}})
}

func (h *Handler) respondSubmit(c *gin.Context, res ingest.Result) {
	resp := SubmitResponse{IDs: res.IDs, Skipped: res.Skipped}
	if resp.IDs == nil {
		resp.IDs = []int{}
	}
	for range res.Errors {
		resp.Errors = append(resp.Errors, ingest.InvalidURLMessage)
	}

	switch {
	case len(res.IDs) > 0:
		c.JSON(http.StatusCreated, resp)
	case len(res.Errors) > 0:
		c.JSON(http.StatusUnprocessableEntity, resp)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

func (h *Handler) ListTasks(c *gin.Context) {
	tasks := h.deps.Store.All()
	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, newTaskResponse(t))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetTask(c *gin.Context) {
	t, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(t))
}

// Image 下载结果 PNG，未完成的任务返回 409
func (h *Handler) Image(c *gin.Context) {
	t, ok := h.lookup(c)
	if !ok {
		return
	}

	data, err := h.deps.Encoder.Encode(t.ID)
	if err != nil {
		if errors.Is(err, export.ErrNotComplete) {
			h.handleError(c, "Task is not complete", err, http.StatusConflict)
			return
		}
		h.handleError(c, "Failed to encode image", err, http.StatusInternalServerError)
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": export.FileName(t.Name),
	}))
	c.Data(http.StatusOK, "image/png", data)
}

func (h *Handler) Source(c *gin.Context) {
	t, ok := h.lookup(c)
	if !ok {
		return
	}

	if !blob.IsLocator(t.Source) {
		c.Redirect(http.StatusFound, t.Source)
		return
	}

	obj, err := h.deps.Blobs.Get(t.Source)
	if err != nil {
		h.handleError(c, "Source not found", err, http.StatusNotFound)
		return
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, obj.Data)
}

func (h *Handler) lookup(c *gin.Context) (task.Task, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 {
		h.handleError(c, "Invalid task id", err, http.StatusBadRequest)
		return task.Task{}, false
	}

	t, err := h.deps.Store.Get(id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			h.handleError(c, "Task not found", err, http.StatusNotFound)
			return task.Task{}, false
		}
		h.handleError(c, "Failed to get task", err, http.StatusInternalServerError)
		return task.Task{}, false
	}
	return t, true
}

func (h *Handler) handleError(c *gin.Context, message string, err error, status int) {
	traceID := GetTraceID(c)
	log := h.logger.Warn
	if status >= http.StatusInternalServerError {
		log = h.logger.Error
	}
	log(message,
		zap.String("trace_id", traceID),
		zap.Int("status", status),
		zap.Error(err),
	)

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}
