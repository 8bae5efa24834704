package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"consulta-vehicular-go/internal/platform/errors"
)

// Loader reads configuration from an optional yaml file layered over the
// built-in defaults, with secrets pulled from the environment.
type Loader struct {
	useDotEnv bool
	path      string
}

func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      "config.yaml",
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		_ = godotenv.Load()
	}

	cfg := Default()
	path := ""

	if data, err := os.ReadFile(l.path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.load", "invalid config file", err)
		}
		path = l.path
	}

	applyEnv(cfg)

	return &Result{Config: cfg, Path: path}, nil
}

// applyEnv lets environment variables override secret-bearing fields so
// keys never have to live in the yaml file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CAPMONSTER_KEY"); v != "" {
		cfg.Captcha.CapmonsterKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Vision.APIKey = v
		cfg.Vision.Enabled = true
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Vision.BaseURL = v
	}
	if v := os.Getenv("BROWSER_BIN"); v != "" {
		cfg.Browser.BinPath = v
	}
}
