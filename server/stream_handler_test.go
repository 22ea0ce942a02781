package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ClearFM/config"
	"ClearFM/core/auth"
	"ClearFM/core/signer"
	"ClearFM/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory ObjectStore for handler tests.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ storage.ObjectStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

func (s *fakeStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

func (s *fakeStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.put(key, data)
	return nil
}

func (s *fakeStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.get(key)
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) DownloadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	data, ok := s.get(key)
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	if offset >= int64(len(data)) {
		return nil, fmt.Errorf("offset out of bounds")
	}
	end := int64(len(data))
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (s *fakeStore) Stat(ctx context.Context, key string) (int64, error) {
	data, ok := s.get(key)
	if !ok {
		return 0, fmt.Errorf("object %s not found", key)
	}
	return int64(len(data)), nil
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.get(key)
	return ok, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if _, ok := s.get(key); !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	return "http://minio.local/presigned/" + key, nil
}

func newTestHandler(t *testing.T, store *fakeStore) *APIHandler {
	t.Helper()
	cfg := &config.Config{
		StreamTokenSecret: "test-secret",
		StreamTokenTTL:    time.Hour,
		PresignTTL:        15 * time.Minute,
	}
	presigner := signer.New(store, signer.NewMemoryURLCache(), 16)
	t.Cleanup(presigner.Close)

	return NewAPIHandler(
		cfg,
		store,
		nil, nil, nil,
		auth.NewStreamTokenIssuer(cfg.StreamTokenSecret),
		auth.NewOneTimeTokenStore(),
		presigner,
		nil,
	)
}

func issueToken(t *testing.T, h *APIHandler, key string, allowExplicit bool) string {
	t.Helper()
	token, err := h.issuer.Issue(key, time.Hour, allowExplicit)
	require.NoError(t, err)
	return token
}

func TestStreamFullObject(t *testing.T) {
	store := newFakeStore()
	store.put("streams/show/segment_000.ts", bytes.Repeat([]byte("x"), 1000))
	h := newTestHandler(t, store)
	token := issueToken(t, h, "streams/show", true)

	req := httptest.NewRequest(http.MethodGet, "/stream/streams/show/segment_000.ts?token="+token, nil)
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/MP2T", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Len(t, rec.Body.Bytes(), 1000)
}

func TestStreamRangeRequest(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	store := newFakeStore()
	store.put("streams/show/segment_000.ts", data)
	h := newTestHandler(t, store)
	token := issueToken(t, h, "streams/show", true)

	req := httptest.NewRequest(http.MethodGet, "/stream/streams/show/segment_000.ts?token="+token, nil)
	req.Header.Set("Range", "bytes=0-99")
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
	require.Len(t, rec.Body.Bytes(), 100)
	assert.Equal(t, data[:100], rec.Body.Bytes())
}

func TestStreamRangeOutOfBounds(t *testing.T) {
	store := newFakeStore()
	store.put("streams/show/segment_000.ts", bytes.Repeat([]byte("x"), 100))
	h := newTestHandler(t, store)
	token := issueToken(t, h, "streams/show", true)

	req := httptest.NewRequest(http.MethodGet, "/stream/streams/show/segment_000.ts?token="+token, nil)
	req.Header.Set("Range", "bytes=500-600")
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */100", rec.Header().Get("Content-Range"))
}

func TestStreamMissingCredentials(t *testing.T) {
	store := newFakeStore()
	store.put("streams/show/playlist.m3u8", []byte("#EXTM3U"))
	h := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodGet, "/stream/streams/show/playlist.m3u8", nil)
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStreamInvalidToken(t *testing.T) {
	store := newFakeStore()
	store.put("streams/show/playlist.m3u8", []byte("#EXTM3U"))
	h := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodGet, "/stream/streams/show/playlist.m3u8?token=not-a-jwt", nil)
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStreamTokenScopeEnforced(t *testing.T) {
	store := newFakeStore()
	store.put("streams/other/playlist.m3u8", []byte("#EXTM3U"))
	h := newTestHandler(t, store)
	token := issueToken(t, h, "streams/show", true)

	req := httptest.NewRequest(http.MethodGet, "/stream/streams/other/playlist.m3u8?token="+token, nil)
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStreamTicketSingleUse(t *testing.T) {
	store := newFakeStore()
	store.put("streams/show/playlist.m3u8", []byte("#EXTM3U"))
	h := newTestHandler(t, store)

	ticket, err := h.tickets.Issue("streams/show", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/stream/streams/show/playlist.m3u8?ticket="+ticket, nil)
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// 重放同一张凭证
	req = httptest.NewRequest(http.MethodGet, "/stream/streams/show/playlist.m3u8?ticket="+ticket, nil)
	rec = httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStreamExplicitGatingServesCleanManifest(t *testing.T) {
	store := newFakeStore()
	store.put("streams/show/playlist.m3u8", []byte("#EXTM3U explicit"))
	store.put("streams/show-clean/playlist.m3u8", []byte("#EXTM3U clean"))
	h := newTestHandler(t, store)
	token := issueToken(t, h, "streams/show", false)

	req := httptest.NewRequest(http.MethodGet, "/stream/streams/show/playlist.m3u8?token="+token, nil)
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#EXTM3U clean", rec.Body.String())
}

func TestStreamCleanSegmentsCoveredByFolderToken(t *testing.T) {
	store := newFakeStore()
	store.put("streams/show/playlist.m3u8", []byte("#EXTM3U explicit"))
	store.put("streams/show-clean/playlist.m3u8",
		[]byte("#EXTM3U\n/stream/streams/show-clean/segment_000.ts\n"))
	store.put("streams/show-clean/segment_000.ts", []byte("clean ts"))
	h := newTestHandler(t, store)
	token := issueToken(t, h, "streams/show", false)

	// 清单改投洁净版
	req := httptest.NewRequest(http.MethodGet, "/stream/streams/show/playlist.m3u8?token="+token, nil)
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "show-clean/segment_000.ts")

	// 洁净版清单引用的分片用同一枚令牌必须可取
	req = httptest.NewRequest(http.MethodGet, "/stream/streams/show-clean/segment_000.ts?token="+token, nil)
	rec = httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clean ts", rec.Body.String())
}

func TestKeyAuthorized(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		key     string
		want    bool
	}{
		{name: "exact key", subject: "uploads/show.mp3", key: "uploads/show.mp3", want: true},
		{name: "folder covers child", subject: "streams/show", key: "streams/show/segment_000.ts", want: true},
		{name: "folder covers clean mirror", subject: "streams/show", key: "streams/show-clean/segment_000.ts", want: true},
		{name: "sibling folder rejected", subject: "streams/show", key: "streams/other/segment_000.ts", want: false},
		{name: "prefix without separator rejected", subject: "streams/show", key: "streams/showcase/segment_000.ts", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keyAuthorized(tt.subject, tt.key))
		})
	}
}

func TestStreamExplicitAllowedServesOriginal(t *testing.T) {
	store := newFakeStore()
	store.put("streams/show/playlist.m3u8", []byte("#EXTM3U explicit"))
	store.put("streams/show-clean/playlist.m3u8", []byte("#EXTM3U clean"))
	h := newTestHandler(t, store)
	token := issueToken(t, h, "streams/show", true)

	req := httptest.NewRequest(http.MethodGet, "/stream/streams/show/playlist.m3u8?token="+token, nil)
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#EXTM3U explicit", rec.Body.String())
}

func TestStreamRedirectPresigned(t *testing.T) {
	store := newFakeStore()
	store.put("uploads/show.mp3", []byte("mp3 bytes"))
	h := newTestHandler(t, store)
	token := issueToken(t, h, "uploads/show.mp3", true)

	req := httptest.NewRequest(http.MethodGet, "/stream/uploads/show.mp3?token="+token+"&redirect=1", nil)
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://minio.local/presigned/uploads/show.mp3", rec.Header().Get("Location"))
}

func TestStreamQualityFallback(t *testing.T) {
	store := newFakeStore()
	store.put("uploads/show.mp3", []byte("original bytes"))
	store.put("uploads/show_low.mp3", []byte("low bytes"))
	h := newTestHandler(t, store)
	token := issueToken(t, h, "uploads/show.mp3", true)

	// 存在的档位直接返回
	req := httptest.NewRequest(http.MethodGet, "/stream/uploads/show.mp3?token="+token+"&quality=low", nil)
	rec := httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "low bytes", rec.Body.String())

	// 缺失的档位回落到原始对象
	req = httptest.NewRequest(http.MethodGet, "/stream/uploads/show.mp3?token="+token+"&quality=high", nil)
	rec = httptest.NewRecorder()
	h.StreamMediaHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "original bytes", rec.Body.String())
}

func TestParseByteRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		size    int64
		offset  int64
		end     int64
		wantErr bool
	}{
		{name: "closed range", header: "bytes=0-99", size: 1000, offset: 0, end: 99},
		{name: "open end", header: "bytes=500-", size: 1000, offset: 500, end: 999},
		{name: "suffix", header: "bytes=-100", size: 1000, offset: 900, end: 999},
		{name: "end clamped", header: "bytes=900-2000", size: 1000, offset: 900, end: 999},
		{name: "start beyond size", header: "bytes=1000-", size: 1000, wantErr: true},
		{name: "multi range unsupported", header: "bytes=0-1,5-9", size: 1000, wantErr: true},
		{name: "garbage", header: "bytes=abc", size: 1000, wantErr: true},
		{name: "missing prefix", header: "0-99", size: 1000, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, end, err := parseByteRange(tt.header, tt.size)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.offset, offset)
			assert.Equal(t, tt.end, end)
		})
	}
}
