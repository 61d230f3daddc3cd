package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	Port            string   `yaml:"port"`
	Env             string   `yaml:"env"`
	LogLevel        string   `yaml:"log_level"`
	CORSAllowOrigin []string `yaml:"cors_allow_origins"`
	// PublicBaseURL prefixes locators for the local store's download route.
	PublicBaseURL string `yaml:"public_base_url"`

	ObjectStoreType string        `yaml:"object_store"`
	LocalStoreDir   string        `yaml:"local_store_dir"`
	AWSRegion       string        `yaml:"aws_region"`
	S3Bucket        string        `yaml:"s3_bucket"`
	S3Prefix        string        `yaml:"s3_prefix"`
	SSEKMSKeyID     string        `yaml:"sse_kms_key_id"`
	MinioEndpoint   string        `yaml:"minio_endpoint"`
	MinioAccessKey  string        `yaml:"minio_access_key"`
	MinioSecretKey  string        `yaml:"minio_secret_key"`
	MinioBucket     string        `yaml:"minio_bucket"`
	MinioUseSSL     bool          `yaml:"minio_use_ssl"`
	LocatorTTL      time.Duration `yaml:"locator_ttl"`

	DatabaseURL string `yaml:"database_url"`

	Upload   UploadConfig   `yaml:"upload"`
	Pipeline PipelineConfig `yaml:"pipeline"`

	RateLimitRPS       float64 `yaml:"rate_limit_rps"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`
	PollRateLimitRPS   float64 `yaml:"poll_rate_limit_rps"`
	PollRateLimitBurst int     `yaml:"poll_rate_limit_burst"`
	ExposeErrorDetails bool    `yaml:"expose_error_details"`
}

// UploadConfig is the validation policy applied to submitted files.
type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxFileBytes      int64    `yaml:"max_file_bytes"`
	MaxRequestBytes   int64    `yaml:"max_request_bytes"`
}

// PipelineConfig describes the external processing pipeline endpoints.
type PipelineConfig struct {
	NewDocumentURL      string        `yaml:"new_document_url"`
	DeleteURL           string        `yaml:"delete_url"`
	DispatchTimeout     time.Duration `yaml:"dispatch_timeout"`
	DispatchConcurrency int           `yaml:"dispatch_concurrency"`
	RetryQueueURL       string        `yaml:"retry_queue_url"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Port:            "8080",
		Env:             "dev",
		LogLevel:        "info",
		CORSAllowOrigin: []string{"http://localhost:3000"},
		ObjectStoreType: "local",
		LocalStoreDir:   "./data",
		MinioBucket:     "documents",
		LocatorTTL:      time.Hour,
		Upload: UploadConfig{
			AllowedExtensions: []string{"pdf", "doc", "docx", "txt"},
			MaxFileBytes:      10 << 20,
			MaxRequestBytes:   100 << 20,
		},
		Pipeline: PipelineConfig{
			DispatchTimeout:     30 * time.Second,
			DispatchConcurrency: 8,
		},
		RateLimitRPS:       2,
		RateLimitBurst:     10,
		PollRateLimitRPS:   5,
		PollRateLimitBurst: 20,
	}
}

// Load reads configuration: defaults, then CONFIG_FILE (yaml), then env vars.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	for _, path := range []string{".env", "cmd/.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				log.Printf("config: load %s: %v", path, err)
			}
		}
	}

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			log.Printf("config: %v", err)
		}
	}
	applyEnv(&cfg)

	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}
	return cfg
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	cfg.Env = normalizeEnv(getEnv("ENV", cfg.Env))
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.PublicBaseURL = getEnv("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	if raw := os.Getenv("CORS_ALLOW_ORIGINS"); raw != "" {
		cfg.CORSAllowOrigin = splitAndTrim(raw)
	}

	cfg.ObjectStoreType = normalizeStoreType(getEnv("OBJECT_STORE", cfg.ObjectStoreType))
	cfg.LocalStoreDir = getEnv("LOCAL_STORE_DIR", cfg.LocalStoreDir)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)
	cfg.SSEKMSKeyID = getEnv("SSE_KMS_KEY_ID", cfg.SSEKMSKeyID)
	cfg.MinioEndpoint = getEnv("MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getEnv("MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getEnv("MINIO_BUCKET", cfg.MinioBucket)
	cfg.MinioUseSSL = getEnvBool("MINIO_USE_SSL", cfg.MinioUseSSL)
	cfg.LocatorTTL = getEnvDuration("LOCATOR_TTL", cfg.LocatorTTL)

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	if raw := os.Getenv("UPLOAD_ALLOWED_EXTENSIONS"); raw != "" {
		cfg.Upload.AllowedExtensions = splitAndTrim(raw)
	}
	cfg.Upload.MaxFileBytes = getEnvInt64("UPLOAD_MAX_FILE_BYTES", cfg.Upload.MaxFileBytes)
	cfg.Upload.MaxRequestBytes = getEnvInt64("UPLOAD_MAX_REQUEST_BYTES", cfg.Upload.MaxRequestBytes)

	cfg.Pipeline.NewDocumentURL = getEnv("PIPELINE_NEW_DOCUMENT_URL", cfg.Pipeline.NewDocumentURL)
	cfg.Pipeline.DeleteURL = getEnv("PIPELINE_DELETE_URL", cfg.Pipeline.DeleteURL)
	cfg.Pipeline.DispatchTimeout = getEnvDuration("DISPATCH_TIMEOUT", cfg.Pipeline.DispatchTimeout)
	cfg.Pipeline.DispatchConcurrency = int(getEnvInt64("DISPATCH_CONCURRENCY", int64(cfg.Pipeline.DispatchConcurrency)))
	cfg.Pipeline.RetryQueueURL = getEnv("DISPATCH_RETRY_QUEUE_URL", cfg.Pipeline.RetryQueueURL)

	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = int(getEnvInt64("RATE_LIMIT_BURST", int64(cfg.RateLimitBurst)))
	cfg.PollRateLimitRPS = getEnvFloat("POLL_RATE_LIMIT_RPS", cfg.PollRateLimitRPS)
	cfg.PollRateLimitBurst = int(getEnvInt64("POLL_RATE_LIMIT_BURST", int64(cfg.PollRateLimitBurst)))

	// Error text is exposed to callers everywhere except production unless forced.
	cfg.ExposeErrorDetails = getEnvBool("EXPOSE_ERROR_DETAILS", cfg.ExposeErrorDetails || cfg.Env != "production")
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: %s invalid bool: %v", key, err)
		return def
	}
	return val
}

func getEnvInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("config: %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: %s invalid float: %v", key, err)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}
