// Package config loads server configuration from the environment (and an
// optional .env file), the way the game server this was adapted from did
// with hand-rolled os.Getenv/strconv.Atoi calls, generalized here to a
// single struct-tag-driven pass via caarlos0/env.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Config is every environment-driven knob the server reads at startup.
type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`
	Production bool   `env:"PRODUCTION" envDefault:"false"` // NODE_ENV-equivalent mode flag

	DatabaseURL string `env:"DATABASE_URL"`
	KVBackend   string `env:"KV_BACKEND" envDefault:"memory"` // memory | postgres

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`

	RoundCount         int           `env:"ROUND_COUNT" envDefault:"3"`
	PromptTimeLimit    time.Duration `env:"PROMPT_TIME_LIMIT" envDefault:"90s"`
	SelectionTimeLimit time.Duration `env:"SELECTION_TIME_LIMIT" envDefault:"45s"`
	GuessingTimeLimit  time.Duration `env:"GUESSING_TIME_LIMIT" envDefault:"60s"`
	ResultsTimeLimit   time.Duration `env:"RESULTS_TIME_LIMIT" envDefault:"15s"`
	ImageCount         int           `env:"IMAGE_COUNT" envDefault:"4"`
	MaxPlayers         int           `env:"MAX_PLAYERS" envDefault:"8"`

	ImageProvider     string `env:"IMAGE_PROVIDER" envDefault:"mock"` // mock | huggingface | openai
	EnableFallback    bool   `env:"ENABLE_FALLBACK_PROVIDER" envDefault:"false"`
	FallbackProvider  string `env:"FALLBACK_IMAGE_PROVIDER"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIModel       string `env:"OPENAI_MODEL" envDefault:"dall-e-3"`
	HuggingFaceAPIKey string `env:"HUGGINGFACE_API_KEY"`
	HuggingFaceModel  string `env:"HUGGINGFACE_MODEL"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"30s"`

	WSReadLimitBytes  int64         `env:"WS_READ_LIMIT_BYTES" envDefault:"65536"`
	WSWriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	RateLimitPerSec   float64       `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
	RateLimitBurst    int           `env:"RATE_LIMIT_BURST" envDefault:"10"`

	HTTPRateLimitPerSec float64 `env:"HTTP_RATE_LIMIT_PER_SECOND" envDefault:"1"`
	HTTPRateLimitBurst  int     `env:"HTTP_RATE_LIMIT_BURST" envDefault:"5"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json | text
}

// Load reads Config from the environment, applying envDefault tags for
// anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HTTPAddr is the listen address http.ListenAndServe takes, built the same
// way the game server this was adapted from turns a bare PORT into ":<port>".
func (c Config) HTTPAddr() string {
	return ":" + c.Port
}
