package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ClearFM/cache"
	"ClearFM/config"
	"ClearFM/core/audio"
	"ClearFM/core/auth"
	"ClearFM/core/pipeline"
	"ClearFM/core/redact"
	"ClearFM/core/signer"
	"ClearFM/core/transcribe"
	"ClearFM/db"
	"ClearFM/logger"
	"ClearFM/repository"
	"ClearFM/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	defer logger.Sync()

	// 初始化对象存储
	store, err := storage.NewMinioStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO: %v", err)
	}

	// Connect to the database
	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseGormDB()

	if err := db.MigrateSchema(); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer db.CloseRedis()
	log.Println("Successfully connected to Redis")

	assetRepo := repository.NewGormAssetRepository(db.GormDB)
	jobRepo := repository.NewGormJobRepository(db.GormDB)

	segCache := cache.NewSegmentCache(db.RedisClient)
	urlCache := cache.NewRedisURLCache(db.RedisClient)

	// 屏蔽词表允许缺失，缺失时不生成洁净版
	banned, err := redact.LoadBannedWords(cfg.BannedWordFile)
	if err != nil {
		logger.Warn("屏蔽词表加载失败，洁净版生成已停用",
			logger.String("path", cfg.BannedWordFile),
			logger.ErrorField(err))
		banned = redact.NewBannedWords(nil)
	}

	encoder := audio.NewFFmpegEncoder(cfg.FFmpegPath, cfg.AudioBitrate, cfg.HLSSegmentTime, cfg.EncodeTimeout)

	var transcriber transcribe.Transcriber
	if cfg.WhisperAPIKey != "" {
		transcriber = transcribe.NewWhisperTranscriber(cfg.WhisperAPIKey, cfg.WhisperBaseURL, cfg.TranscribeTimeout)
	} else {
		logger.Warn("未配置转写密钥，洁净版生成已停用")
	}

	processor := pipeline.NewProcessor(
		encoder, transcriber, store, pipeline.NewRegistry(), banned, cfg.MutePadding,
		pipeline.WithSegmentCache(segCache),
		pipeline.WithRepositories(assetRepo, jobRepo),
	)
	manager := pipeline.NewManager(processor, cfg.JobWorkers)
	defer manager.Stop()

	issuer := auth.NewStreamTokenIssuer(cfg.StreamTokenSecret)
	tickets := auth.NewOneTimeTokenStore()

	presigner := signer.New(store, urlCache, cfg.PresignQueueSize)
	defer presigner.Close()

	apiHandler := NewAPIHandler(cfg, store, assetRepo, jobRepo, manager, issuer, tickets, presigner, segCache)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// API Endpoints
	router.HandleFunc("/api/upload", apiHandler.UploadHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/assets", apiHandler.ListAssetsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/convert", apiHandler.ConvertHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/{id}", apiHandler.JobStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/convert/progress/{id}", apiHandler.JobProgressHandler).Methods(http.MethodGet)

	// 令牌签发端点
	router.HandleFunc("/api/stream/token", apiHandler.StreamTokenHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/stream/ticket", apiHandler.StreamTicketHandler).Methods(http.MethodPost)

	// 受令牌保护的流媒体投递
	router.PathPrefix("/stream/").HandlerFunc(apiHandler.StreamMediaHandler).Methods(http.MethodGet, http.MethodHead)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		log.Printf("Server starting on %s...", cfg.ServerAddr)
		log.Println("Upload audio via POST to /api/upload")
		log.Println("Trigger conversion via POST to /api/convert")
		log.Println("Request stream tokens via POST to /api/stream/token")
		log.Println("Stream via GET /stream/{folder}/{file}?token=...")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号
	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
