package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"ClearFM/cache"
	"ClearFM/core/auth"
	"ClearFM/core/breaker"
	"ClearFM/logger"
	"ClearFM/model"
)

// streamRequest 封装流媒体请求参数
type streamRequest struct {
	folder string
	file   string
	key    string
}

// parseStreamPath 解析流媒体路径
// 格式: /stream/folder[/sub]/filename，最后一段是文件名
func parseStreamPath(urlPath string) (*streamRequest, error) {
	path := strings.TrimPrefix(urlPath, "/stream/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" {
		return nil, fmt.Errorf("invalid stream path: %s", urlPath)
	}
	for _, p := range parts {
		if p == "" || p == ".." {
			return nil, fmt.Errorf("invalid stream path: %s", urlPath)
		}
	}

	folder := strings.Join(parts[:len(parts)-1], "/")
	file := parts[len(parts)-1]
	return &streamRequest{
		folder: folder,
		file:   file,
		key:    folder + "/" + file,
	}, nil
}

// keyAuthorized 判断令牌主题是否覆盖请求的对象键
// 主题可以是精确对象键，也可以是整个流目录
// 目录主题同时覆盖洁净版镜像目录，改投后的清单里引用的分片才能拉取
func keyAuthorized(subject, key string) bool {
	if subject == key {
		return true
	}
	subject = strings.TrimSuffix(subject, "/")
	if strings.HasPrefix(key, subject+"/") {
		return true
	}
	return strings.HasPrefix(key, subject+"-clean/")
}

// StreamMediaHandler 受令牌保护的流媒体投递端点
// 支持 token=JWT 或 ticket=一次性凭证两种放行方式
func (h *APIHandler) StreamMediaHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseStreamPath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stream path")
		return
	}

	allowExplicit, ok := h.authorizeStream(w, r, req)
	if !ok {
		return
	}

	key := req.key

	// 不允许显式内容时改投洁净版清单
	if !allowExplicit && strings.HasSuffix(req.file, ".m3u8") && !strings.HasSuffix(req.folder, "-clean") {
		cleanKey := req.folder + "-clean/" + req.file
		if exists, err := h.store.Exists(r.Context(), cleanKey); err == nil && exists {
			logger.Debug("改投洁净版清单",
				logger.String("requested", key),
				logger.String("served", cleanKey))
			key = cleanKey
		}
	}

	// mp3 对象按音质档位解析
	if strings.HasSuffix(req.file, ".mp3") {
		if q := r.URL.Query().Get("quality"); q != "" {
			variant := h.catalog.Resolve(key, model.AudioQuality(q))
			if exists, err := h.store.Exists(r.Context(), variant.Key); err == nil && exists {
				key = variant.Key
			}
		}
	}

	// redirect=1 时改发限时直链
	if r.URL.Query().Get("redirect") == "1" {
		h.redirectPresigned(w, r, key)
		return
	}

	h.serveObject(w, r, key)
}

// authorizeStream 校验请求携带的令牌或一次性凭证
func (h *APIHandler) authorizeStream(w http.ResponseWriter, r *http.Request, req *streamRequest) (allowExplicit bool, ok bool) {
	query := r.URL.Query()

	if ticket := query.Get("ticket"); ticket != "" {
		boundKey, err := h.tickets.Redeem(ticket, clientIP(r))
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrTokenUsed) || errors.Is(err, auth.ErrTokenIPMismatch) {
				status = http.StatusForbidden
			}
			logger.Warn("一次性凭证校验失败",
				logger.String("key", req.key),
				logger.ErrorField(err))
			writeError(w, status, "ticket rejected")
			return false, false
		}
		if !keyAuthorized(boundKey, req.key) {
			writeError(w, http.StatusForbidden, "ticket does not cover this object")
			return false, false
		}
		// 一次性凭证不携带内容分级，按保守档处理
		return false, true
	}

	if token := query.Get("token"); token != "" {
		subject, allowExplicit, valid := h.issuer.Validate(token)
		if !valid {
			writeError(w, http.StatusUnauthorized, "invalid stream token")
			return false, false
		}
		if !keyAuthorized(subject, req.key) {
			writeError(w, http.StatusForbidden, "token does not cover this object")
			return false, false
		}
		return allowExplicit, true
	}

	writeError(w, http.StatusUnauthorized, "missing stream credentials")
	return false, false
}

// redirectPresigned 通过签名器换取限时直链并302跳转
func (h *APIHandler) redirectPresigned(w http.ResponseWriter, r *http.Request, key string) {
	url, err := h.signer.Sign(r.Context(), key, h.cfg.PresignTTL)
	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen) {
			writeError(w, http.StatusServiceUnavailable, "presign temporarily unavailable")
			return
		}
		logger.Error("预签名失败",
			logger.String("key", key),
			logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "presign failed")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// serveObject 直接投递对象字节，支持 Range 请求
func (h *APIHandler) serveObject(w http.ResponseWriter, r *http.Request, key string) {
	rangeHeader := r.Header.Get("Range")

	// 无 Range 的热分片请求先查缓存
	if rangeHeader == "" && h.segCache != nil && isSegmentFile(key) {
		folder, file := splitObjectKey(key)
		if data, err := h.segCache.Get(cache.SegmentKey(folder, file)); err == nil && data != nil {
			h.writeFullResponse(w, key, data)
			return
		}
	}

	size, err := h.store.Stat(r.Context(), key)
	if err != nil {
		logger.Warn("对象不存在",
			logger.String("key", key),
			logger.ErrorField(err))
		writeError(w, http.StatusNotFound, "object not found")
		return
	}

	if rangeHeader == "" {
		reader, err := h.store.Download(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusNotFound, "object not found")
			return
		}
		defer reader.Close()

		h.setStreamHeaders(w, key)
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, reader); err != nil {
			logger.Warn("写入响应失败", logger.String("key", key), logger.ErrorField(err))
		}
		return
	}

	offset, end, err := parseByteRange(rangeHeader, size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		writeError(w, http.StatusRequestedRangeNotSatisfiable, "invalid range")
		return
	}

	length := end - offset + 1
	reader, err := h.store.DownloadRange(r.Context(), key, offset, length)
	if err != nil {
		logger.Warn("区间下载失败",
			logger.String("key", key),
			logger.Int64("offset", offset),
			logger.ErrorField(err))
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	defer reader.Close()

	h.setStreamHeaders(w, key)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.Copy(w, reader); err != nil {
		logger.Warn("写入区间响应失败", logger.String("key", key), logger.ErrorField(err))
	}
}

// writeFullResponse 从内存数据写完整响应
func (h *APIHandler) writeFullResponse(w http.ResponseWriter, key string, data []byte) {
	h.setStreamHeaders(w, key)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Warn("写入缓存响应失败", logger.String("key", key), logger.ErrorField(err))
	}
}

// setStreamHeaders 设置流媒体通用响应头
func (h *APIHandler) setStreamHeaders(w http.ResponseWriter, key string) {
	w.Header().Set("Content-Type", contentTypeForKey(key))
	w.Header().Set("Accept-Ranges", "bytes")
	if strings.HasSuffix(key, ".m3u8") {
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=31536000")
	}
}

// parseByteRange 解析单段 Range 头，返回闭区间 [offset, end]
// 支持 bytes=a-b、bytes=a- 和后缀形式 bytes=-n
func parseByteRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("unsupported range: %s", header)
	}

	start, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range: %s", header)
	}

	// 后缀形式：最后 n 字节
	if start == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("malformed suffix range: %s", header)
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}

	offset, err := strconv.ParseInt(start, 10, 64)
	if err != nil || offset < 0 || offset >= size {
		return 0, 0, fmt.Errorf("range start out of bounds: %s", header)
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < offset {
			return 0, 0, fmt.Errorf("malformed range end: %s", header)
		}
		if end >= size {
			end = size - 1
		}
	}
	return offset, end, nil
}

// isSegmentFile HLS 产物才走热缓存
func isSegmentFile(key string) bool {
	return strings.HasSuffix(key, ".ts") || strings.HasSuffix(key, ".m3u8")
}

// splitObjectKey 把对象键拆成目录与文件名
func splitObjectKey(key string) (string, string) {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return "", key
	}
	return key[:idx], key[idx+1:]
}

// contentTypeForKey 根据对象键后缀给出 Content-Type
func contentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(key, ".ts"):
		return "video/MP2T"
	case strings.HasSuffix(key, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(key, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(key, ".flac"):
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
