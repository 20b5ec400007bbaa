// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/fairyhunter13/ai-post-generator/internal/domain"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"5100"`
	// StaticDir holds index.html and the uploads sub-directory.
	StaticDir string `env:"STATIC_DIR" envDefault:"static"`
	// Provider credentials. All three must be set or the process refuses to start.
	GoogleAPIKey1     string `env:"GOOGLE_API_KEY_1"`
	GoogleAPIKey2     string `env:"GOOGLE_API_KEY_2"`
	GoogleAPIKey3     string `env:"GOOGLE_API_KEY_3"`
	GeminiBaseURL     string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel       string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-pro"`
	OTLPEndpoint      string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName   string `env:"OTEL_SERVICE_NAME" envDefault:"ai-post-generator"`
	MaxUploadMB       int64  `env:"MAX_UPLOAD_MB" envDefault:"5"`
	CORSAllowOrigins  string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	DailyRequestQuota int    `env:"DAILY_REQUEST_QUOTA" envDefault:"50"`
	// BurstLimitPerMin is a per-IP per-minute guard in front of the mutating
	// endpoints. It never drops below DailyRequestQuota. 0 disables it.
	BurstLimitPerMin int           `env:"BURST_LIMIT_PER_MIN" envDefault:"0"`
	UploadRetention  time.Duration `env:"UPLOAD_RETENTION" envDefault:"5m"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	// Generation retry configuration
	GenMaxAttempts       int           `env:"GEN_MAX_ATTEMPTS" envDefault:"3"`
	GenBackoffInitial    time.Duration `env:"GEN_BACKOFF_INITIAL" envDefault:"4s"`
	GenBackoffMax        time.Duration `env:"GEN_BACKOFF_MAX" envDefault:"10s"`
	GenBackoffMultiplier float64       `env:"GEN_BACKOFF_MULTIPLIER" envDefault:"2.0"`
	GenTimeout           time.Duration `env:"GEN_TIMEOUT" envDefault:"60s"`
	// GenCoalesce shares one upstream call among identical in-flight requests.
	GenCoalesce           bool          `env:"GEN_COALESCE" envDefault:"true"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT" envDefault:"90s"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Load parses environment variables into a Config and validates the credential pool.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// Validate reports a configuration error when any provider credential is missing.
func (c Config) Validate() error {
	var missing []string
	for i, k := range c.APIKeys() {
		if strings.TrimSpace(k) == "" {
			missing = append(missing, fmt.Sprintf("GOOGLE_API_KEY_%d", i+1))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}
	if c.DailyRequestQuota <= 0 {
		return fmt.Errorf("%w: DAILY_REQUEST_QUOTA must be positive", domain.ErrConfiguration)
	}
	return nil
}

// APIKeys returns the ordered credential pool.
func (c Config) APIKeys() []string {
	return []string{c.GoogleAPIKey1, c.GoogleAPIKey2, c.GoogleAPIKey3}
}

// MaxUploadBytes converts MaxUploadMB to bytes.
func (c Config) MaxUploadBytes() int64 { return c.MaxUploadMB * 1024 * 1024 }

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }
