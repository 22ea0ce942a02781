package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ClearFM/core/auth"
	"ClearFM/logger"
)

// tokenRequest 流令牌签发请求体
type tokenRequest struct {
	Key           string `json:"key"`
	TTLMinutes    int    `json:"ttlMinutes"`
	AllowExplicit bool   `json:"allowExplicit"`
}

// StreamTokenHandler 签发可复用的流访问令牌
func (h *APIHandler) StreamTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	ttl := h.cfg.StreamTokenTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	token, err := h.issuer.Issue(req.Key, ttl, req.AllowExplicit)
	if err != nil {
		logger.Error("签发流令牌失败",
			logger.String("key", req.Key),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":         token,
		"expiresIn":     int(ttl.Seconds()),
		"allowExplicit": req.AllowExplicit,
	})
}

// ticketRequest 一次性凭证签发请求体
type ticketRequest struct {
	Key string `json:"key"`
}

// StreamTicketHandler 签发一次性流访问凭证，绑定请求来源IP
func (h *APIHandler) StreamTicketHandler(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	ticket, err := h.tickets.Issue(req.Key, clientIP(r))
	if err != nil {
		logger.Error("签发一次性凭证失败",
			logger.String("key", req.Key),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "ticket issue failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket":    ticket,
		"expiresIn": int(auth.OneTimeTokenTTL.Seconds()),
	})
}
