package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SALONBOT_LLM_API_KEY.
const EnvPrefix = "SALONBOT"

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where the assistant stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// LLM Configuration (OpenAI-compatible endpoint)
	LLMAPIKey      string  // SALONBOT_LLM_API_KEY
	LLMBaseURL     string  // SALONBOT_LLM_BASE_URL (default: https://api.deepseek.com/v1)
	LLMModel       string  // SALONBOT_LLM_MODEL (default: deepseek-chat)
	LLMTemperature float64 // SALONBOT_LLM_TEMPERATURE (default: 0.3)
	LLMMaxTokens   int     // SALONBOT_LLM_MAX_TOKENS (default: 800)

	// YClients Configuration
	YClientsBaseURL      string  // SALONBOT_YCLIENTS_BASE_URL
	YClientsPartnerToken string  // SALONBOT_YCLIENTS_PARTNER_TOKEN
	YClientsUserToken    string  // SALONBOT_YCLIENTS_USER_TOKEN
	YClientsRPS          float64 // SALONBOT_YCLIENTS_RPS (default: 5)

	// Context cache
	ContextCacheSize   int           // SALONBOT_CACHE_SIZE (default: 1000)
	ContextFreshness   time.Duration // SALONBOT_CACHE_FRESHNESS (default: 5m)
	SharedCacheEnabled bool          // SALONBOT_CACHE_SHARED (default: true)
	SharedCacheDir     string        // SALONBOT_CACHE_DIR (empty keeps the shared tier in memory)
	SharedCacheTTL     time.Duration // SALONBOT_CACHE_SHARED_TTL (default: 30m)

	// Booking API circuit breaker
	BreakerFailureThreshold int           // SALONBOT_BREAKER_FAILURE_THRESHOLD (default: 5)
	BreakerResetTimeout     time.Duration // SALONBOT_BREAKER_RESET_TIMEOUT (default: 60s)
	BreakerCallTimeout      time.Duration // SALONBOT_BREAKER_CALL_TIMEOUT (default: 10s)

	// Rate limits
	MessagesPerMinute     int     // SALONBOT_RATELIMIT_PER_MINUTE (default: 10)
	MessagesPerHour       int     // SALONBOT_RATELIMIT_PER_HOUR (default: 100)
	HTTPRequestsPerSecond float64 // SALONBOT_RATELIMIT_HTTP_RPS (default: 10)
	HTTPBurst             int     // SALONBOT_RATELIMIT_HTTP_BURST (default: 20)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMConfigured reports whether a generator can be created.
func (p *Profile) IsLLMConfigured() bool {
	return p.LLMAPIKey != "" && p.LLMModel != ""
}

// IsYClientsConfigured reports whether the booking API credentials are set.
func (p *Profile) IsYClientsConfigured() bool {
	return p.YClientsPartnerToken != ""
}

// Address returns the listen address.
func (p *Profile) Address() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", "dev")
	v.SetDefault("addr", "")
	v.SetDefault("port", 8080)
	v.SetDefault("data", "")
	v.SetDefault("driver", "sqlite")
	v.SetDefault("dsn", "")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 800)

	v.SetDefault("yclients.base_url", "https://api.yclients.com/api/v1")
	v.SetDefault("yclients.partner_token", "")
	v.SetDefault("yclients.user_token", "")
	v.SetDefault("yclients.rps", 5.0)

	v.SetDefault("cache.size", 1000)
	v.SetDefault("cache.freshness", 5*time.Minute)
	v.SetDefault("cache.shared", true)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.shared_ttl", 30*time.Minute)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout", 60*time.Second)
	v.SetDefault("breaker.call_timeout", 10*time.Second)

	v.SetDefault("ratelimit.per_minute", 10)
	v.SetDefault("ratelimit.per_hour", 100)
	v.SetDefault("ratelimit.http_rps", 10.0)
	v.SetDefault("ratelimit.http_burst", 20)
}

// BindEnv makes v read SALONBOT_* variables for every key ("llm.api_key" -> SALONBOT_LLM_API_KEY).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the profile from v: flags and config file bound by the caller,
// then SALONBOT_* environment variables, then defaults.
func Load(v *viper.Viper) (*Profile, error) {
	SetDefaults(v)
	BindEnv(v)
	if file := v.ConfigFileUsed(); file != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	}

	p := &Profile{}
	p.apply(v)
	return p, nil
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	p.apply(v)
}

func (p *Profile) apply(v *viper.Viper) {
	p.Mode = v.GetString("mode")
	p.Addr = v.GetString("addr")
	p.Port = v.GetInt("port")
	p.Data = v.GetString("data")
	p.Driver = v.GetString("driver")
	p.DSN = v.GetString("dsn")

	p.LLMAPIKey = v.GetString("llm.api_key")
	p.LLMBaseURL = v.GetString("llm.base_url")
	p.LLMModel = v.GetString("llm.model")
	p.LLMTemperature = v.GetFloat64("llm.temperature")
	p.LLMMaxTokens = v.GetInt("llm.max_tokens")

	p.YClientsBaseURL = v.GetString("yclients.base_url")
	p.YClientsPartnerToken = v.GetString("yclients.partner_token")
	p.YClientsUserToken = v.GetString("yclients.user_token")
	p.YClientsRPS = v.GetFloat64("yclients.rps")

	p.ContextCacheSize = v.GetInt("cache.size")
	p.ContextFreshness = v.GetDuration("cache.freshness")
	p.SharedCacheEnabled = v.GetBool("cache.shared")
	p.SharedCacheDir = v.GetString("cache.dir")
	p.SharedCacheTTL = v.GetDuration("cache.shared_ttl")

	p.BreakerFailureThreshold = v.GetInt("breaker.failure_threshold")
	p.BreakerResetTimeout = v.GetDuration("breaker.reset_timeout")
	p.BreakerCallTimeout = v.GetDuration("breaker.call_timeout")

	p.MessagesPerMinute = v.GetInt("ratelimit.per_minute")
	p.MessagesPerHour = v.GetInt("ratelimit.per_hour")
	p.HTTPRequestsPerSecond = v.GetFloat64("ratelimit.http_rps")
	p.HTTPBurst = v.GetInt("ratelimit.http_burst")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}

	switch p.Driver {
	case "sqlite":
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
	default:
		return errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", p.Driver)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "salonbot")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/salonbot"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("salonbot_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.SharedCacheDir != "" && !filepath.IsAbs(p.SharedCacheDir) {
		p.SharedCacheDir = filepath.Join(dataDir, p.SharedCacheDir)
	}

	return nil
}
