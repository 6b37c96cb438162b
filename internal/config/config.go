// Package config centralizes environment-driven configuration for both the
// frontend service and the mail worker.
package config

import (
	"os"
	"strconv"
	"time"
)

var (
	// HTTP/WS
	Host = getEnvWithDefault("SCRIBE_HOST", "0.0.0.0")
	Port = getEnvWithDefault("SCRIBE_PORT", "8080")

	// Data directories
	DataDir   = getEnvWithDefault("SCRIBE_DATA_DIR", "./data")
	ConfigDir = getEnvWithDefault("SCRIBE_CONFIG_DIR", "./config")

	// Transcriber (ASR service)
	TranscriberURL     = getEnvWithDefault("SCRIBE_TRANSCRIBER_URL", "http://localhost:9000")
	TranscriberTimeout = getEnvDuration("SCRIBE_TRANSCRIBER_TIMEOUT", 3600*time.Second)
	TranscriberPoll    = getEnvDuration("SCRIBE_TRANSCRIBER_POLL_INTERVAL", 5*time.Second)

	// LLM defaults
	DefaultLLMEndpoint = getEnvWithDefault("SCRIBE_LLM_ENDPOINT", "https://api.openai.com/v1")
	DefaultLLMModel    = getEnvWithDefault("SCRIBE_LLM_MODEL", "gpt-4o-mini")
	LLMTimeout         = getEnvDuration("SCRIBE_LLM_TIMEOUT", 120*time.Second)

	// Downloader
	MaxAudioSizeBytes = getEnvInt64("SCRIBE_MAX_AUDIO_SIZE_BYTES", 500*1024*1024)
	DownloadTimeout   = getEnvDuration("SCRIBE_DOWNLOAD_TIMEOUT", 600*time.Second)
	AudioCacheDays    = getEnvInt("SCRIBE_AUDIO_CACHE_DAYS", 14)
	YtDlpPath         = getEnvWithDefault("SCRIBE_YTDLP_PATH", "yt-dlp")

	// Worker pool
	WorkerPoolSize = getEnvInt("SCRIBE_WORKER_POOL_SIZE", 4)

	// Cleanup
	CleanupInterval    = getEnvDuration("SCRIBE_CLEANUP_INTERVAL", 6*time.Hour)
	FailedRetainWindow = getEnvDuration("SCRIBE_FAILED_RETAIN_WINDOW", 7*24*time.Hour)

	// Redis (bounded job queue backing + dedup single-flight lock)
	RedisHost = getEnvWithDefault("SCRIBE_REDIS_HOST", "localhost")
	RedisPort = getEnvInt("SCRIBE_REDIS_PORT", 6379)

	// IMAP
	IMAPHost     = getEnvWithDefault("SCRIBE_IMAP_HOST", "localhost")
	IMAPPort     = getEnvInt("SCRIBE_IMAP_PORT", 993)
	IMAPUser     = os.Getenv("SCRIBE_IMAP_USER")
	IMAPPassword = os.Getenv("SCRIBE_IMAP_PASSWORD")

	// SMTP
	SMTPHost     = getEnvWithDefault("SCRIBE_SMTP_HOST", "localhost")
	SMTPPort     = getEnvInt("SCRIBE_SMTP_PORT", 587)
	SMTPUser     = os.Getenv("SCRIBE_SMTP_USER")
	SMTPPassword = os.Getenv("SCRIBE_SMTP_PASSWORD")
	SMTPFrom     = getEnvWithDefault("SCRIBE_SMTP_FROM", "scribe@localhost")

	// Mail worker folders
	FolderInbox               = getEnvWithDefault("SCRIBE_FOLDER_INBOX", "ToScribe")
	FolderDone                = getEnvWithDefault("SCRIBE_FOLDER_DONE", "ScribeDone")
	FolderError               = getEnvWithDefault("SCRIBE_FOLDER_ERROR", "ScribeError")
	FolderEpisodeSources      = getEnvWithDefault("SCRIBE_FOLDER_EPISODE_SOURCES", "EpisodeSources")
	FolderEpisodeSourcesDone  = getEnvWithDefault("SCRIBE_FOLDER_EPISODE_SOURCES_DONE", "EpisodeSourcesDone")
	FolderEpisodeSourcesError = getEnvWithDefault("SCRIBE_FOLDER_EPISODE_SOURCES_ERROR", "EpisodeSourcesError")
	ReturnAddress             = os.Getenv("SCRIBE_RETURN_ADDRESS")
	DefaultTag                = getEnvWithDefault("SCRIBE_DEFAULT_TAG", "general")
	DigestTag                 = "digest"

	// Mail worker timing
	PollInterval       = getEnvDuration("SCRIBE_MAIL_POLL_INTERVAL", 300*time.Second)
	MailConcurrency    = getEnvInt("SCRIBE_MAIL_CONCURRENCY", 3)
	MailOpTimeout      = getEnvDuration("SCRIBE_MAIL_OP_TIMEOUT", 30*time.Second)
	ShowNotesRetries   = getEnvInt("SCRIBE_SHOWNOTES_RETRIES", 3)
	RetryBackoffBase   = getEnvDuration("SCRIBE_RETRY_BACKOFF_BASE", 5*time.Second)
	FrontendBaseURL    = getEnvWithDefault("SCRIBE_FRONTEND_URL", "http://localhost:8080")
	FrontendPollWait   = getEnvDuration("SCRIBE_FRONTEND_POLL_WAIT", 3600*time.Second)
	FrontendPollPeriod = getEnvDuration("SCRIBE_FRONTEND_POLL_INTERVAL", 5*time.Second)
)

// DirectAudioExtensions is the set of file extensions treated as directly
// transcribable audio links in mail bodies.
var DirectAudioExtensions = []string{"mp3", "m4a", "wav", "ogg", "flac", "aac"}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
