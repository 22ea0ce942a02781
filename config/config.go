package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with
// sensible local-development defaults.
type Config struct {
	ServerAddr string

	FFmpegPath     string
	AudioBitrate   string // e.g., "192k"
	HLSSegmentTime string // segment duration in seconds, e.g., "10"
	EncodeTimeout  time.Duration
	MutePadding    float64 // seconds added around each banned word
	BannedWordFile string  // newline-delimited banned word list

	// Whisper 转写配置
	WhisperAPIKey     string
	WhisperBaseURL    string
	TranscribeTimeout time.Duration

	// JWT 流令牌配置
	StreamTokenSecret string
	StreamTokenTTL    time.Duration

	// 预签名配置
	PresignQueueSize int
	PresignTTL       time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	JobWorkers int

	LogPath  string
	LogLevel string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		AudioBitrate:   getEnv("AUDIO_BITRATE", "192k"),
		HLSSegmentTime: getEnv("HLS_SEGMENT_TIME", "10"),
		EncodeTimeout:  time.Duration(getEnvInt("ENCODE_TIMEOUT_SECONDS", 600)) * time.Second,
		MutePadding:    getEnvFloat("MUTE_PADDING_SECONDS", 0.15),
		BannedWordFile: getEnv("BANNED_WORD_FILE", "banned_words.txt"),

		WhisperAPIKey:     os.Getenv("WHISPER_API_KEY"),
		WhisperBaseURL:    getEnv("WHISPER_BASE_URL", ""),
		TranscribeTimeout: time.Duration(getEnvInt("TRANSCRIBE_TIMEOUT_SECONDS", 300)) * time.Second,

		StreamTokenSecret: getEnv("STREAM_TOKEN_SECRET", "dev-only-secret-change-me"),
		StreamTokenTTL:    time.Duration(getEnvInt("STREAM_TOKEN_TTL_MINUTES", 60)) * time.Minute,

		PresignQueueSize: getEnvInt("PRESIGN_QUEUE_SIZE", 256),
		PresignTTL:       time.Duration(getEnvInt("PRESIGN_TTL_MINUTES", 15)) * time.Minute,

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "clearfm"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// MinIO配置
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "clearfm"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		JobWorkers: getEnvInt("JOB_WORKERS", 4),

		LogPath:  getEnv("LOG_PATH", "logs/clearfm.log"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}
