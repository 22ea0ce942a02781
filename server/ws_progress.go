package server

import (
	"net/http"
	"time"

	"ClearFM/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// JobProgressHandler 通过 WebSocket 推送转换任务进度
// 任务进入终态或客户端断开后关闭连接
func (h *APIHandler) JobProgressHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	registry := h.manager.Registry()
	events, cancel := registry.Subscribe(jobID)
	defer cancel()

	// 先推当前快照，订阅期之前的状态不会重放
	if status := registry.Get(jobID); status != nil {
		if err := conn.WriteJSON(status); err != nil {
			return
		}
		if status.State.Terminal() {
			return
		}
	}

	// 客户端断开探测
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug("进度推送失败，客户端可能已断开",
					logger.String("jobId", jobID),
					logger.ErrorField(err))
				return
			}
			if event.State.Terminal() {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
