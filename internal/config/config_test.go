package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-arena/internal/gateway"
)

var envKeys = []string{
	"PORT", "DATABASE_URL", "JWT_SECRET", "COOKIE_SECURE", "GATEWAY_URL",
	"GATEWAY_API_KEY", "GATEWAY_MODEL", "GATEWAY_RETRIES", "ANSWER_WORDS",
	"ELO_K", "STRIPE_SECRET_KEY", "SIGNUP_CREDITS", "RATE_LIMIT",
	"RATE_BURST", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, v)
	require.NoError(t, fs.Parse(args))
	return Load(v)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	clearEnv(t)
	_, err := load(t)
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/arena")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, gateway.DefaultBaseURL, cfg.GatewayURL)
	assert.Equal(t, gateway.DefaultModel, cfg.GatewayModel)
	assert.Equal(t, 2, cfg.GatewayRetries)
	assert.Equal(t, 150, cfg.AnswerWords)
	assert.Equal(t, 32.0, cfg.EloK)
	assert.Equal(t, 3, cfg.SignupCredits)
	assert.Equal(t, 5, cfg.RateBurst)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestLoad_EnvAndFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://env/arena")
	t.Setenv("PORT", "9000")
	t.Setenv("ELO_K", "24")
	t.Setenv("COOKIE_SECURE", "true")

	cfg, err := load(t, "--port", "9100", "--log-level", "debug")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/arena", cfg.DatabaseURL)
	assert.Equal(t, 9100, cfg.Port, "flag wins over env")
	assert.Equal(t, 24.0, cfg.EloK)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port", map[string]string{"PORT": "70000"}},
		{"answer words", map[string]string{"ANSWER_WORDS": "0"}},
		{"elo k", map[string]string{"ELO_K": "-1"}},
		{"signup credits", map[string]string{"SIGNUP_CREDITS": "51"}},
		{"rate burst", map[string]string{"RATE_BURST": "0"}},
		{"log level", map[string]string{"LOG_LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DATABASE_URL", "postgres://localhost/arena")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(t)
			assert.Error(t, err)
		})
	}
}

func TestValidateServe(t *testing.T) {
	cfg := &Config{}
	require.ErrorContains(t, cfg.ValidateServe(), "JWT_SECRET")
	cfg.JWTSecret = "s"
	require.ErrorContains(t, cfg.ValidateServe(), "GATEWAY_API_KEY")
	cfg.GatewayAPIKey = "k"
	assert.NoError(t, cfg.ValidateServe())
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "from-env")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DATABASE_URL=postgres://dotenv/arena\nJWT_SECRET=from-dotenv\n"), 0o644))
	require.NoError(t, LoadDotEnv(envFile))

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "postgres://dotenv/arena", cfg.DatabaseURL)
	assert.Equal(t, "from-env", cfg.JWTSecret, "env var takes precedence")
}

func TestLoadDotEnv_MissingFileIsNotError(t *testing.T) {
	assert.NoError(t, LoadDotEnv("/nonexistent/.env"))
}
