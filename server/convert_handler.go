package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"ClearFM/logger"

	"github.com/gorilla/mux"
)

// convertRequest 转换触发请求体
type convertRequest struct {
	SourceKey    string `json:"sourceKey"`
	TargetFolder string `json:"targetFolder"`
	Sync         bool   `json:"sync"`
}

// ConvertHandler 触发一次 HLS 转换
// sync=true 时等待转换完成返回完整结果，否则立即返回排队状态
func (h *APIHandler) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SourceKey) == "" || strings.TrimSpace(req.TargetFolder) == "" {
		writeError(w, http.StatusBadRequest, "sourceKey and targetFolder are required")
		return
	}
	if strings.Contains(req.TargetFolder, "..") || strings.HasPrefix(req.TargetFolder, "/") {
		writeError(w, http.StatusBadRequest, "invalid targetFolder")
		return
	}

	exists, err := h.store.Exists(r.Context(), req.SourceKey)
	if err != nil {
		logger.Error("源对象检查失败",
			logger.String("sourceKey", req.SourceKey),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "source check failed")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "source object not found")
		return
	}

	if req.Sync {
		result := h.manager.ConvertSync(r.Context(), req.SourceKey, req.TargetFolder)
		status := http.StatusOK
		if !result.Success {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, result)
		return
	}

	if !h.manager.Enqueue(req.SourceKey, req.TargetFolder) {
		writeError(w, http.StatusServiceUnavailable, "conversion queue is full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"sourceKey": req.SourceKey,
	})
}

// JobStatusHandler 查询转换任务状态
// 先查内存注册表，未命中再回落到持久化记录
func (h *APIHandler) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	if status := h.manager.Registry().Get(jobID); status != nil {
		writeJSON(w, http.StatusOK, status)
		return
	}

	if h.jobs != nil {
		record, err := h.jobs.GetByID(r.Context(), jobID)
		if err != nil {
			logger.Error("查询任务记录失败",
				logger.String("jobId", jobID),
				logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "job lookup failed")
			return
		}
		if record != nil {
			writeJSON(w, http.StatusOK, record)
			return
		}
	}

	writeError(w, http.StatusNotFound, "job not found")
}
