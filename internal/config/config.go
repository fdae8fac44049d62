// README: Config loader; reads an optional .env, then environment variables with defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingCredential is returned by Load when a required key is unset.
var ErrMissingCredential = errors.New("missing credential")

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type LLMConfig struct {
	Provider  string
	Model     string
	OpenAIKey string
	GeminiKey string
}

type TDXConfig struct {
	ClientID     string
	ClientSecret string
}

type Config struct {
	HTTP struct {
		Addr            string
		RateLimitPerMin int
		RequestTimeout  time.Duration
		// TrustedProxies may set X-Forwarded-For; empty trusts none.
		TrustedProxies []string
	}
	Log struct {
		Level string
		Mode  string
	}
	LLM        LLMConfig
	GoogleMaps struct {
		APIKey string
	}
	TDX TDXConfig
}

// Load reads configuration from the process environment. A .env file in the
// working directory is loaded first when present; real environment variables
// win over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read .env: %w", err)
	}
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	cfg.HTTP.Addr = v.GetString("TRANSIT_HTTP_ADDR")
	cfg.HTTP.RateLimitPerMin = v.GetInt("TRANSIT_RATE_LIMIT_PER_MIN")
	cfg.HTTP.RequestTimeout = v.GetDuration("TRANSIT_REQUEST_TIMEOUT")
	cfg.HTTP.TrustedProxies = splitList(v.GetString("TRANSIT_TRUSTED_PROXIES"))
	cfg.Log.Level = v.GetString("TRANSIT_LOG_LEVEL")
	cfg.Log.Mode = v.GetString("TRANSIT_LOG_MODE")

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER")))
	cfg.LLM.Model = v.GetString("LLM_MODEL")
	cfg.LLM.OpenAIKey = v.GetString("OPENAI_API_KEY")
	cfg.LLM.GeminiKey = v.GetString("GEMINI_API_KEY")
	cfg.GoogleMaps.APIKey = v.GetString("GOOGLE_MAP_API_KEY")
	cfg.TDX.ClientID = v.GetString("TDX_CLIENT_ID")
	cfg.TDX.ClientSecret = v.GetString("TDX_CLIENT_SECRET")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TRANSIT_HTTP_ADDR", ":8080")
	v.SetDefault("TRANSIT_RATE_LIMIT_PER_MIN", 30)
	v.SetDefault("TRANSIT_REQUEST_TIMEOUT", "60s")
	v.SetDefault("TRANSIT_LOG_LEVEL", "info")
	v.SetDefault("TRANSIT_LOG_MODE", "production")
	v.SetDefault("LLM_PROVIDER", ProviderOpenAI)
}

func (c Config) validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingCredential)
		}
	case ProviderGemini:
		if c.LLM.GeminiKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.GoogleMaps.APIKey == "" {
		return fmt.Errorf("%w: GOOGLE_MAP_API_KEY", ErrMissingCredential)
	}
	if c.TDX.ClientID == "" || c.TDX.ClientSecret == "" {
		return fmt.Errorf("%w: TDX_CLIENT_ID/TDX_CLIENT_SECRET", ErrMissingCredential)
	}
	if c.HTTP.RateLimitPerMin <= 0 {
		return fmt.Errorf("config: TRANSIT_RATE_LIMIT_PER_MIN must be positive")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("config: TRANSIT_REQUEST_TIMEOUT must be positive")
	}
	for _, p := range c.HTTP.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("config: TRANSIT_TRUSTED_PROXIES: %q is not an IP or CIDR", p)
		}
	}
	return nil
}

// splitList parses a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
