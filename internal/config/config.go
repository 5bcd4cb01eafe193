package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"model-arena/internal/credits"
	"model-arena/internal/gateway"
)

type Config struct {
	Port         int
	DatabaseURL  string
	JWTSecret    string
	CookieSecure bool

	GatewayURL     string
	GatewayAPIKey  string
	GatewayModel   string
	GatewayRetries int
	AnswerWords    int
	EloK           float64

	StripeSecretKey string
	SignupCredits   int

	RateLimit float64
	RateBurst int
	LogLevel  string
}

// BindFlags registers every setting on flags and binds it to the matching
// environment variable (flag "database-url" <-> DATABASE_URL).
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	flags.IntP("port", "p", 8080, "port to listen on (env: PORT)")
	flags.String("database-url", "", "postgres connection string (env: DATABASE_URL)")
	flags.String("jwt-secret", "", "secret used to sign session tokens (env: JWT_SECRET)")
	flags.Bool("cookie-secure", false, "mark session cookies secure (env: COOKIE_SECURE)")
	flags.String("gateway-url", gateway.DefaultBaseURL, "chat completions base URL (env: GATEWAY_URL)")
	flags.String("gateway-api-key", "", "chat completions API key (env: GATEWAY_API_KEY)")
	flags.String("gateway-model", gateway.DefaultModel, "model used for every persona (env: GATEWAY_MODEL)")
	flags.Int("gateway-retries", 2, "retries on 5xx gateway responses (env: GATEWAY_RETRIES)")
	flags.Int("answer-words", 150, "word cap given to each persona (env: ANSWER_WORDS)")
	flags.Float64("elo-k", 32, "rating adjustment factor (env: ELO_K)")
	flags.String("stripe-secret-key", "", "enables payment verification (env: STRIPE_SECRET_KEY)")
	flags.Int("signup-credits", 3, "generations granted on registration (env: SIGNUP_CREDITS)")
	flags.Float64("rate-limit", 1, "play-round requests per second per client (env: RATE_LIMIT)")
	flags.Int("rate-burst", 5, "play-round burst per client (env: RATE_BURST)")
	flags.String("log-level", "info", "debug|info|warn|error (env: LOG_LEVEL)")

	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:            v.GetInt("port"),
		DatabaseURL:     v.GetString("database-url"),
		JWTSecret:       v.GetString("jwt-secret"),
		CookieSecure:    v.GetBool("cookie-secure"),
		GatewayURL:      v.GetString("gateway-url"),
		GatewayAPIKey:   v.GetString("gateway-api-key"),
		GatewayModel:    v.GetString("gateway-model"),
		GatewayRetries:  v.GetInt("gateway-retries"),
		AnswerWords:     v.GetInt("answer-words"),
		EloK:            v.GetFloat64("elo-k"),
		StripeSecretKey: v.GetString("stripe-secret-key"),
		SignupCredits:   v.GetInt("signup-credits"),
		RateLimit:       v.GetFloat64("rate-limit"),
		RateBurst:       v.GetInt("rate-burst"),
		LogLevel:        v.GetString("log-level"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.GatewayRetries < 0 {
		return fmt.Errorf("config: GATEWAY_RETRIES must be >= 0, got %d", c.GatewayRetries)
	}
	if c.AnswerWords < 1 {
		return fmt.Errorf("config: ANSWER_WORDS must be >= 1, got %d", c.AnswerWords)
	}
	if c.EloK <= 0 {
		return fmt.Errorf("config: ELO_K must be > 0, got %v", c.EloK)
	}
	if c.SignupCredits < 0 || c.SignupCredits > credits.MaxBalance {
		return fmt.Errorf("config: SIGNUP_CREDITS must be between 0 and %d, got %d", credits.MaxBalance, c.SignupCredits)
	}
	if c.RateLimit <= 0 || c.RateBurst < 1 {
		return fmt.Errorf("config: RATE_LIMIT must be > 0 and RATE_BURST >= 1, got %v/%d", c.RateLimit, c.RateBurst)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// ValidateServe checks the settings only the HTTP server needs.
func (c *Config) ValidateServe() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.GatewayAPIKey == "" {
		return errors.New("config: GATEWAY_API_KEY is required")
	}
	return nil
}

func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}
