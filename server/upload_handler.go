package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"ClearFM/logger"
	"ClearFM/model"
)

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)
var multipleSpaces = regexp.MustCompile(`\s+`)

// generateSafeObjectName 把上传标题转成对象存储安全的名字
func generateSafeObjectName(title string) string {
	base := strings.TrimSpace(title)
	if base == "" {
		base = "untitled_upload"
	}
	base = multipleSpaces.ReplaceAllString(base, "_")
	base = nonAlphaNumeric.ReplaceAllString(base, "")

	maxLength := 150
	if len(base) > maxLength {
		base = base[:maxLength]
	}
	if base == "" {
		base = "untitled_upload"
	}
	return base
}

// UploadHandler handles audio file uploads and metadata.
// Expected multipart form fields:
// - audioFile: the audio file (WAV, MP3, etc.)
// - title: display title
// - genre: genre label (optional)
// - convert: "1" to enqueue HLS conversion immediately (optional)
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil { // 64MB max memory
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse multipart form: %v", err))
		return
	}

	audioFile, audioHeader, err := r.FormFile("audioFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'audioFile' in form")
		return
	}
	defer audioFile.Close()

	title := r.FormValue("title")
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(audioHeader.Filename, filepath.Ext(audioHeader.Filename))
	}
	genre := r.FormValue("genre")

	ext := strings.ToLower(filepath.Ext(audioHeader.Filename))
	contentType := audioHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	objectKey := fmt.Sprintf("uploads/%s%s", generateSafeObjectName(title), ext)

	if h.assets != nil {
		existing, err := h.assets.GetByKey(r.Context(), objectKey)
		if err != nil {
			logger.Error("查询资产失败", logger.String("key", objectKey), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "asset lookup failed")
			return
		}
		if existing != nil {
			writeError(w, http.StatusConflict, fmt.Sprintf("asset %s already exists", objectKey))
			return
		}
	}

	if err := h.store.Upload(r.Context(), objectKey, audioFile, audioHeader.Size, contentType); err != nil {
		logger.Error("上传音频到对象存储失败",
			logger.String("key", objectKey),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	asset := &model.MediaAsset{
		Key:         objectKey,
		Title:       title,
		Genre:       genre,
		ContentType: contentType,
		Status:      "uploaded",
	}
	if h.assets != nil {
		if err := h.assets.Create(r.Context(), asset); err != nil {
			logger.Error("创建资产记录失败",
				logger.String("key", objectKey),
				logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "asset record failed")
			return
		}
	}

	enqueued := false
	if r.FormValue("convert") == "1" && h.manager != nil {
		targetFolder := "streams/" + strings.TrimSuffix(filepath.Base(objectKey), ext)
		enqueued = h.manager.Enqueue(objectKey, targetFolder)
		if enqueued && h.assets != nil {
			if err := h.assets.UpdateStatus(r.Context(), objectKey, "processing"); err != nil {
				logger.Warn("更新资产状态失败", logger.String("key", objectKey), logger.ErrorField(err))
			}
		}
	}

	logger.Info("音频上传完成",
		logger.String("key", objectKey),
		logger.String("title", title),
		logger.Int64("size", audioHeader.Size),
		logger.Bool("conversionEnqueued", enqueued))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"key":                objectKey,
		"title":              title,
		"conversionEnqueued": enqueued,
	})
}

// ListAssetsHandler 列出全部媒体资产
func (h *APIHandler) ListAssetsHandler(w http.ResponseWriter, r *http.Request) {
	if h.assets == nil {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	assets, err := h.assets.ListAll(r.Context())
	if err != nil {
		logger.Error("列出资产失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "asset listing failed")
		return
	}
	writeJSON(w, http.StatusOK, assets)
}
