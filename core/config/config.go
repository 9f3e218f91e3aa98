package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel       OTelConfig
	Forge      ForgeConfig
	Site       SiteConfig
	Publish    PublishConfig
	Moderation ModerationConfig
	Privacy    PrivacyConfig
	Allocator  AllocatorConfig
	Recovery   RecoveryConfig
	Env        string
	Port       string
	LogLevel   string
	RedisURL   string
	NodeID     int64
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type ForgeConfig struct {
	Type      string // "gitlab" or "github"
	AuthToken string
	ProjectID string // gitlab numeric id or "group/project", github "owner/repo"
	BaseURL   string // Optional: self-hosted instance
	RateLimit float64
	RateBurst int
}

type SiteConfig struct {
	ContentDir    string
	CommentsDir   string
	PendingDir    string
	Extension     string
	VerifyContent bool
}

type PublishConfig struct {
	GitPush         bool // true = commit to TargetBranch, false = branch + review request
	TargetBranch    string
	ConflictRetries int
	NetworkAttempts int
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
}

type ModerationConfig struct {
	AutoApprove     bool
	BodyLengthLimit int
	BlockedTerms    []string
	HeldTerms       []string
}

type PrivacyConfig struct {
	MaskContact bool
}

type AllocatorConfig struct {
	Backend  string // "memory" or "redis"
	Attempts int
	LockTTL  time.Duration
}

type RecoveryConfig struct {
	Enabled     bool
	Stream      string
	Group       string
	DLQStream   string
	Consumer    string
	MaxAttempts int
	ClaimIdle   time.Duration
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
	ServiceTypeCLI    ServiceType = "cli"
)

const (
	ForgeGitLab = "gitlab"
	ForgeGitHub = "github"

	AllocatorMemory = "memory"
	AllocatorRedis  = "redis"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.worker for the recovery worker
//
// Falls back to .env if service-specific file doesn't exist.
// Nested settings use "__" as separator (FORGE__AUTH_TOKEN).
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("GITMENTARIO_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:      getEnv("GITMENTARIO_ENV", "development"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", ""),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		NodeID:   getEnvInt64("NODE_ID", 1),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "gitmentario"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Forge: ForgeConfig{
			Type:      strings.ToLower(getEnv("FORGE__TYPE", ForgeGitLab)),
			AuthToken: getEnv("FORGE__AUTH_TOKEN", ""),
			ProjectID: getEnv("FORGE__PROJECT_ID", ""),
			BaseURL:   getEnv("FORGE__BASE_URL", ""),
			RateLimit: getEnvFloat("FORGE__RATE_LIMIT", 10),
			RateBurst: getEnvInt("FORGE__RATE_BURST", 20),
		},
		Site: SiteConfig{
			ContentDir:    getEnv("CONTENT_DIR", "content"),
			CommentsDir:   getEnv("COMMENTS_DIR", "comments"),
			PendingDir:    getEnv("PENDING_DIR", "comments-pending"),
			Extension:     getEnv("COMMENT_EXTENSION", ".md"),
			VerifyContent: getEnvBool("VERIFY_CONTENT", true),
		},
		Publish: PublishConfig{
			GitPush:         getEnvBool("GIT_PUSH", true),
			TargetBranch:    getEnv("TARGET_BRANCH", "main"),
			ConflictRetries: getEnvInt("PUBLISH__CONFLICT_RETRIES", 3),
			NetworkAttempts: getEnvInt("PUBLISH__NETWORK_ATTEMPTS", 3),
			BackoffInitial:  getEnvDuration("PUBLISH__BACKOFF_INITIAL", 200*time.Millisecond),
			BackoffMax:      getEnvDuration("PUBLISH__BACKOFF_MAX", 5*time.Second),
		},
		Moderation: ModerationConfig{
			AutoApprove:     getEnvBool("MODERATION__AUTO_APPROVE", true),
			BodyLengthLimit: getEnvInt("MODERATION__BODY_LENGTH_LIMIT", 1024),
			BlockedTerms:    getEnvList("MODERATION__BLOCKED_TERMS"),
			HeldTerms:       getEnvList("MODERATION__HELD_TERMS"),
		},
		Privacy: PrivacyConfig{
			MaskContact: getEnvBool("PRIVACY__MASK_CONTACT", true),
		},
		Allocator: AllocatorConfig{
			Backend:  strings.ToLower(getEnv("ALLOCATOR__BACKEND", AllocatorMemory)),
			Attempts: getEnvInt("ALLOCATOR__ATTEMPTS", 5),
			LockTTL:  getEnvDuration("ALLOCATOR__LOCK_TTL", 10*time.Second),
		},
		Recovery: RecoveryConfig{
			Enabled:     getEnvBool("RECOVERY__ENABLED", false),
			Stream:      getEnv("RECOVERY__STREAM", "gitmentario_recovery"),
			Group:       getEnv("RECOVERY__GROUP", "gitmentario_group"),
			DLQStream:   getEnv("RECOVERY__DLQ_STREAM", "gitmentario_recovery_dlq"),
			Consumer:    getEnv("RECOVERY__CONSUMER", "worker"),
			MaxAttempts: getEnvInt("RECOVERY__MAX_ATTEMPTS", 5),
			ClaimIdle:   getEnvDuration("RECOVERY__CLAIM_IDLE", 5*time.Minute),
		},
	}

	if serviceType == ServiceTypeCLI {
		return cfg, nil
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings a running service cannot do without.
func (c Config) Validate() error {
	if c.Forge.AuthToken == "" || c.Forge.ProjectID == "" {
		return fmt.Errorf("FORGE__AUTH_TOKEN and FORGE__PROJECT_ID are required")
	}
	if c.Forge.Type != ForgeGitLab && c.Forge.Type != ForgeGitHub {
		return fmt.Errorf("FORGE__TYPE must be %q or %q, got %q", ForgeGitLab, ForgeGitHub, c.Forge.Type)
	}
	if c.Forge.Type == ForgeGitHub && !strings.Contains(c.Forge.ProjectID, "/") {
		return fmt.Errorf("FORGE__PROJECT_ID must be owner/repo for github")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("NODE_ID must be between 0 and 1023, got %d", c.NodeID)
	}
	if c.Site.CommentsDir == "" || c.Site.PendingDir == "" || c.Site.CommentsDir == c.Site.PendingDir {
		return fmt.Errorf("COMMENTS_DIR and PENDING_DIR must be set and differ")
	}
	if c.Publish.TargetBranch == "" {
		return fmt.Errorf("TARGET_BRANCH is required")
	}
	if c.Publish.ConflictRetries < 1 || c.Publish.NetworkAttempts < 1 || c.Allocator.Attempts < 1 {
		return fmt.Errorf("retry budgets must be positive")
	}
	if c.Allocator.Backend != AllocatorMemory && c.Allocator.Backend != AllocatorRedis {
		return fmt.Errorf("ALLOCATOR__BACKEND must be %q or %q, got %q", AllocatorMemory, AllocatorRedis, c.Allocator.Backend)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c Config) UsesRedis() bool {
	return c.Allocator.Backend == AllocatorRedis || c.Recovery.Enabled
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c ForgeConfig) SelfHosted() bool {
	return c.BaseURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
