package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"ClearFM/config"
	"ClearFM/core/audio"
	"ClearFM/core/auth"
	"ClearFM/core/pipeline"
	"ClearFM/core/signer"
	"ClearFM/logger"
	"ClearFM/repository"
	"ClearFM/storage"
)

// SegmentReader 热分片缓存的读取侧，*cache.SegmentCache 满足之
type SegmentReader interface {
	Get(key string) ([]byte, error)
}

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg      *config.Config
	store    storage.ObjectStore
	assets   repository.AssetRepository
	jobs     repository.JobRepository
	manager  *pipeline.Manager
	issuer   *auth.StreamTokenIssuer
	tickets  *auth.OneTimeTokenStore
	signer   *signer.PresignSigner
	segCache SegmentReader
	catalog  *audio.QualityCatalog
}

// NewAPIHandler 创建新的API处理器
// assets/jobs/segCache 可为 nil，对应能力降级
func NewAPIHandler(
	cfg *config.Config,
	store storage.ObjectStore,
	assets repository.AssetRepository,
	jobs repository.JobRepository,
	manager *pipeline.Manager,
	issuer *auth.StreamTokenIssuer,
	tickets *auth.OneTimeTokenStore,
	presigner *signer.PresignSigner,
	segCache SegmentReader,
) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		store:    store,
		assets:   assets,
		jobs:     jobs,
		manager:  manager,
		issuer:   issuer,
		tickets:  tickets,
		signer:   presigner,
		segCache: segCache,
		catalog:  audio.NewQualityCatalog(),
	}
}

// writeJSON 写入JSON响应
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("写入JSON响应失败", logger.ErrorField(err))
	}
}

// writeError 写入JSON错误响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// clientIP 提取请求来源IP，优先使用代理头
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
