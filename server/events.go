package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventsWriteWait = 10 * time.Second
	eventsPongWait  = 60 * time.Second
	eventsPingEvery = (eventsPongWait * 9) / 10
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Events 推送任务状态变化和应用状态，连上后先发一次全量
func (h *Handler) Events(c *gin.Context) {
	conn, err := eventsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.String("trace_id", GetTraceID(c)), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(eventsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})

	events, unsubscribe := h.deps.Store.Subscribe(h.deps.EventBuffer)
	defer unsubscribe()

	writeCh := make(chan eventMessage, h.deps.EventBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		ticker := time.NewTicker(eventsPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(eventsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(eventsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	h.pushStatus(writeCh)
	for _, t := range h.deps.Store.All() {
		resp := newTaskResponse(t)
		pushEvent(writeCh, eventMessage{Type: "task", Task: &resp})
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				t, err := h.deps.Store.Get(evt.ID)
				if err != nil {
					continue
				}
				resp := newTaskResponse(t)
				pushEvent(writeCh, eventMessage{Type: "task", Task: &resp})
				h.pushStatus(writeCh)
			}
		}
	}()

	for {
		var in eventMessage
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch in.Type {
		case "ping":
			pushEvent(writeCh, eventMessage{Type: "pong"})
		case "status":
			h.pushStatus(writeCh)
		default:
			pushEvent(writeCh, eventMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Handler) pushStatus(writeCh chan eventMessage) {
	status := h.status()
	pushEvent(writeCh, eventMessage{Type: "status", Status: &status})
}

// pushEvent 写队列满时丢掉最旧的一条
func pushEvent(writeCh chan eventMessage, out eventMessage) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
