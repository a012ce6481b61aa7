package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/MimeLyc/mythos-studio/pkg/log"
)

// Config holds all application configuration.
// Values come from environment variables (optionally loaded from .env) with
// sensible defaults.
//
// Environment Variables:
// Script model (any OpenAI-compatible chat endpoint):
// - LLM_API_KEY: API key (falls back to OPENAI_API_KEY)
// - LLM_API_URL: API endpoint URL (default: https://api.openai.com/v1)
// - LLM_MODEL: Model name (default: gpt-4o)
// - LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_TIMEOUT (seconds)
// - LLM_SITE_URL, LLM_APP_NAME: optional OpenRouter headers
//
// Image and speech (OpenAI):
// - OPENAI_API_KEY (falls back to LLM_API_KEY), OPENAI_BASE_URL
// - IMAGE_MODEL (default: dall-e-3), IMAGE_EDIT_MODEL (default: gpt-image-1), IMAGE_SIZE (default: 1024x1024)
// - TTS_MODEL (default: tts-1), TTS_VOICES (default: en=alloy,hi=onyx), TTS_DEFAULT_VOICE (default: alloy)
// - MEDIA_TIMEOUT (default: 90s), DEFAULT_LANGUAGE (default: en)
//
// Quota:
// - MAX_VIDEOS_PER_DAY (default: 3)
// - QUOTA_BACKEND: sqlite, redis or memory (default: sqlite)
// - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
//
// Pipeline:
// - SCRIPT_MAX_SCENES (default: 4), MAX_WORKERS (default: 2)
// - IMAGE_TIMEOUT (default: 120s), AUDIO_TIMEOUT (default: 60s)
// - IMAGE_MAX_RETRIES, IMAGE_RETRY_DELAY, AUDIO_MAX_RETRIES, AUDIO_RETRY_DELAY, RETRY_MULTIPLIER
// - KEEP_WORK_FILES (default: false)
//
// Storage:
// - DATA_DIR (default: /app/data), CACHE_DIR, OUTPUT_DIR
// - CHARACTERS_FILE (optional YAML catalog), CHARACTERS_DIR (default: /app/characters)
//
// Video:
// - FFMPEG_BIN, FFPROBE_BIN, SUBTITLE_FONT_FILE, SUBTITLE_FONT_SIZE (default: 40), SUBTITLE_MAX_WIDTH (default: 50), VIDEO_FPS (default: 24)
//
// Server and scheduling:
// - HTTP_ADDR (default: :8080), UI_STATIC_DIR, UI_ENABLED, JOB_WORKERS (default: 1)
// - TRUST_PROXY_HEADERS (default: false) takes the quota identity from X-User-ID / X-Forwarded-For
// - CRON_EXPR (empty disables scheduling), SCHEDULE_TOPICS (semicolon separated)
// - LOG_LEVEL (default: info), LOG_FILE (optional)
type Config struct {
	LLM      LLMConfig      `json:"llm"`
	Media    MediaConfig    `json:"media"`
	Quota    QuotaConfig    `json:"quota"`
	Pipeline PipelineConfig `json:"pipeline"`
	System   SystemConfig   `json:"system"`
	Storage  StorageConfig  `json:"storage"`
	Video    VideoConfig    `json:"video"`
	HTTP     HTTPConfig     `json:"http"`
	Jobs     JobsConfig     `json:"jobs"`
	Schedule ScheduleConfig `json:"schedule"`
	Log      LogConfig      `json:"log"`
}

// LLMConfig holds the configuration of the script model.
type LLMConfig struct {
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// MediaConfig holds the image and speech provider settings.
type MediaConfig struct {
	APIKey          string                  `json:"-"`
	BaseURL         string                  `json:"base_url"`
	ImageModel      string                  `json:"image_model"`
	EditModel       string                  `json:"edit_model"`
	ImageSize       string                  `json:"image_size"`
	SpeechModel     string                  `json:"speech_model"`
	Voices          map[language.Tag]string `json:"-"`
	DefaultVoice    string                  `json:"default_voice"`
	DefaultLanguage language.Tag            `json:"default_language"`
	Timeout         time.Duration           `json:"timeout"`
}

type QuotaConfig struct {
	MaxPerDay     int    `json:"max_per_day"`
	Backend       string `json:"backend"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
}

type PipelineConfig struct {
	SceneCount      int           `json:"scene_count"`
	MaxWorkers      int           `json:"max_workers"`
	ImageTimeout    time.Duration `json:"image_timeout"`
	AudioTimeout    time.Duration `json:"audio_timeout"`
	ImageRetries    int           `json:"image_retries"`
	ImageRetryDelay time.Duration `json:"image_retry_delay"`
	AudioRetries    int           `json:"audio_retries"`
	AudioRetryDelay time.Duration `json:"audio_retry_delay"`
	RetryMultiplier float64       `json:"retry_multiplier"`
	KeepWorkFiles   bool          `json:"keep_work_files"`
}

// SystemConfig holds the system configuration
type SystemConfig struct {
	DataDir string `json:"data_dir"`
}

type StorageConfig struct {
	CacheDir       string `json:"cache_dir"`
	OutputDir      string `json:"output_dir"`
	CharactersFile string `json:"characters_file"`
	CharactersDir  string `json:"characters_dir"`
}

type VideoConfig struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
	FontFile    string `json:"font_file"`
	FontSize    int    `json:"font_size"`
	WrapWidth   int    `json:"wrap_width"`
	FPS         int    `json:"fps"`
}

type HTTPConfig struct {
	Addr        string `json:"addr"`
	UIStaticDir string `json:"ui_static_dir"`
	UIEnabled   bool   `json:"ui_enabled"`
	// TrustProxyHeaders is only safe behind a proxy that sets the headers itself.
	TrustProxyHeaders bool `json:"trust_proxy_headers"`
}

type JobsConfig struct {
	Workers int `json:"workers"`
}

type ScheduleConfig struct {
	CronExpr string   `json:"cron_expr"`
	Topics   []string `json:"topics"`
}

// Enabled reports whether scheduled runs are configured.
func (c ScheduleConfig) Enabled() bool {
	return strings.TrimSpace(c.CronExpr) != "" && len(c.Topics) > 0
}

type LogConfig struct {
	Level log.LogLevel `json:"level"`
	File  string       `json:"file"`
}

const dbFileName = "studio.db"

// DBPath is the SQLite database holding jobs and usage records.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, dbFileName)
}

// Option is a function type for configuring Config
type Option func(*Config)

// LoadDotEnv loads the given .env files (default ".env") when they exist.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	openAIKey := getEnvString("OPENAI_API_KEY", "")
	llmKey := getEnvString("LLM_API_KEY", openAIKey)
	dataDir := getEnvString("DATA_DIR", "/app/data")

	config := &Config{
		LLM: LLMConfig{
			APIKey:      llmKey,
			APIURL:      getEnvString("LLM_API_URL", "https://api.openai.com/v1"),
			Model:       getEnvString("LLM_MODEL", "gpt-4o"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Media: MediaConfig{
			APIKey:          getEnvString("OPENAI_API_KEY", llmKey),
			BaseURL:         getEnvString("OPENAI_BASE_URL", ""),
			ImageModel:      getEnvString("IMAGE_MODEL", "dall-e-3"),
			EditModel:       getEnvString("IMAGE_EDIT_MODEL", "gpt-image-1"),
			ImageSize:       getEnvString("IMAGE_SIZE", "1024x1024"),
			SpeechModel:     getEnvString("TTS_MODEL", "tts-1"),
			Voices:          getEnvVoices("TTS_VOICES", "en=alloy,hi=onyx"),
			DefaultVoice:    getEnvString("TTS_DEFAULT_VOICE", "alloy"),
			DefaultLanguage: getEnvLanguage("DEFAULT_LANGUAGE", language.English),
			Timeout:         getEnvDuration("MEDIA_TIMEOUT", 90*time.Second),
		},
		Quota: QuotaConfig{
			MaxPerDay:     getEnvInt("MAX_VIDEOS_PER_DAY", 3),
			Backend:       strings.ToLower(getEnvString("QUOTA_BACKEND", "sqlite")),
			RedisAddr:     getEnvString("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Pipeline: PipelineConfig{
			SceneCount:      getEnvInt("SCRIPT_MAX_SCENES", 4),
			MaxWorkers:      getEnvInt("MAX_WORKERS", 2),
			ImageTimeout:    getEnvDuration("IMAGE_TIMEOUT", 120*time.Second),
			AudioTimeout:    getEnvDuration("AUDIO_TIMEOUT", 60*time.Second),
			ImageRetries:    getEnvInt("IMAGE_MAX_RETRIES", 3),
			ImageRetryDelay: getEnvDuration("IMAGE_RETRY_DELAY", 2*time.Second),
			AudioRetries:    getEnvInt("AUDIO_MAX_RETRIES", 3),
			AudioRetryDelay: getEnvDuration("AUDIO_RETRY_DELAY", time.Second),
			RetryMultiplier: getEnvFloat("RETRY_MULTIPLIER", 2),
			KeepWorkFiles:   getEnvBool("KEEP_WORK_FILES", false),
		},
		System: SystemConfig{
			DataDir: dataDir,
		},
		Storage: StorageConfig{
			CacheDir:       getEnvString("CACHE_DIR", filepath.Join(dataDir, "cache")),
			OutputDir:      getEnvString("OUTPUT_DIR", filepath.Join(dataDir, "output")),
			CharactersFile: getEnvString("CHARACTERS_FILE", ""),
			CharactersDir:  getEnvString("CHARACTERS_DIR", "/app/characters"),
		},
		Video: VideoConfig{
			FFmpegPath:  getEnvString("FFMPEG_BIN", "ffmpeg"),
			FFprobePath: getEnvString("FFPROBE_BIN", "ffprobe"),
			FontFile:    getEnvString("SUBTITLE_FONT_FILE", ""),
			FontSize:    getEnvInt("SUBTITLE_FONT_SIZE", 40),
			WrapWidth:   getEnvInt("SUBTITLE_MAX_WIDTH", 50),
			FPS:         getEnvInt("VIDEO_FPS", 24),
		},
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			UIStaticDir: getEnvString("UI_STATIC_DIR", "/app/web"),
			UIEnabled:   getEnvBool("UI_ENABLED", true),

			TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
		},
		Jobs: JobsConfig{
			Workers: getEnvInt("JOB_WORKERS", 1),
		},
		Schedule: ScheduleConfig{
			CronExpr: getEnvString("CRON_EXPR", ""),
			Topics:   getEnvList("SCHEDULE_TOPICS", ";"),
		},
		Log: LogConfig{
			Level: log.ParseLevel(getEnvString("LOG_LEVEL", "info")),
			File:  getEnvString("LOG_FILE", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", config)
	return config, nil
}

// validate checks that the configuration is internally consistent. API keys
// are checked separately by RequireProviders.
func (c *Config) validate() error {
	if c.Quota.MaxPerDay < 1 {
		return fmt.Errorf("MAX_VIDEOS_PER_DAY must be greater than 0")
	}
	switch c.Quota.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.Quota.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis quota backend")
		}
	default:
		return fmt.Errorf("unknown QUOTA_BACKEND %q", c.Quota.Backend)
	}
	if c.Pipeline.MaxWorkers < 1 {
		return fmt.Errorf("MAX_WORKERS must be greater than 0")
	}
	if c.Pipeline.SceneCount < 1 {
		return fmt.Errorf("SCRIPT_MAX_SCENES must be greater than 0")
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("JOB_WORKERS must be greater than 0")
	}
	if c.System.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if expr := strings.TrimSpace(c.Schedule.CronExpr); expr != "" {
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid CRON_EXPR: %w", err)
		}
	}
	return nil
}

// RequireProviders checks the credentials needed to generate videos.
func (c *Config) RequireProviders() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("LLM_API_KEY or OPENAI_API_KEY is required"))
	}
	if c.Media.APIKey == "" {
		errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required for images and speech"))
	}
	return errors.Join(errs...)
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}

func getEnvList(key, sep string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var ret []string
	for _, item := range strings.Split(value, sep) {
		if item = strings.TrimSpace(item); item != "" {
			ret = append(ret, item)
		}
	}
	return ret
}

func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
		log.Warn("Ignoring invalid %s %q", key, value)
	}
	return defaultValue
}

// getEnvVoices parses "lang=voice" pairs separated by commas.
func getEnvVoices(key, defaultValue string) map[language.Tag]string {
	voices := make(map[language.Tag]string)
	for _, pair := range strings.Split(getEnvString(key, defaultValue), ",") {
		lang, voice, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(voice) == "" {
			continue
		}
		tag, err := language.Parse(strings.TrimSpace(lang))
		if err != nil {
			log.Warn("Ignoring voice for invalid language %q in %s", lang, key)
			continue
		}
		voices[tag] = strings.TrimSpace(voice)
	}
	return voices
}
