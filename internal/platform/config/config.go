package config

type Config struct {
	Server  ServerConfig            `yaml:"server"`
	Log     LogConfig               `yaml:"log"`
	Browser BrowserConfig           `yaml:"browser"`
	Pool    PoolConfig              `yaml:"pool_config"`
	Captcha CaptchaConfig           `yaml:"captcha"`
	Session SessionConfig           `yaml:"session"`
	Vision  VisionConfig            `yaml:"vision"`
	Obs     ObsConfig               `yaml:"observability"`
	Lookups map[string]LookupConfig `yaml:"lookups"`
}

// ObsConfig toggles span and metric emission through the logger.
type ObsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type BrowserConfig struct {
	Headless  bool   `yaml:"headless"`
	BinPath   string `yaml:"bin_path"`
	UserAgent string `yaml:"user_agent"`
}

// PoolConfig bounds the warm browser-context pool.
type PoolConfig struct {
	MinSize int `yaml:"pool_min_size"`
	MaxSize int `yaml:"pool_max_size"`
}

type CaptchaConfig struct {
	CapmonsterKey string `yaml:"capmonster_key"`
	BaseURL       string `yaml:"base_url"`
	MaxCandidates int    `yaml:"max_candidates"`
	CallTimeoutMs int    `yaml:"call_timeout_ms"`
	AutoAttempts  int    `yaml:"auto_attempts"`
}

type SessionConfig struct {
	TTLSec      int `yaml:"ttl_sec"`
	MaxSessions int `yaml:"max_sessions"`
}

type VisionConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"url"`
	Model   string `yaml:"model_name"`
}

type LookupConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

// Default returns the configuration used when no file is present. The
// per-lookup timeouts reflect how slow each portal is in practice.
func Default() *Config {
	return &Config{
		Server: ServerConfig{IP: "0.0.0.0", Port: 8080},
		Log:    LogConfig{Level: "info"},
		Browser: BrowserConfig{
			Headless:  true,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		},
		Pool: PoolConfig{MinSize: 0, MaxSize: 4},
		Captcha: CaptchaConfig{
			MaxCandidates: 4,
			CallTimeoutMs: 10000,
			AutoAttempts:  3,
		},
		Session: SessionConfig{TTLSec: 120, MaxSessions: 50},
		Vision:  VisionConfig{Model: "gpt-4o-mini"},
		Lookups: map[string]LookupConfig{
			"sunarp":      {TimeoutMs: 40000},
			"soat":        {TimeoutMs: 25000},
			"revision":    {TimeoutMs: 25000},
			"sutran":      {TimeoutMs: 20000},
			"sat":         {TimeoutMs: 20000},
			"sat_callao":  {TimeoutMs: 20000},
			"dni_nombre":  {TimeoutMs: 20000},
			"dni_peru":    {TimeoutMs: 20000},
			"licencia":    {TimeoutMs: 40000},
			"redam":       {TimeoutMs: 25000},
			"recompensas": {TimeoutMs: 20000},
			"sunat_ruc":   {TimeoutMs: 15000},
		},
	}
}

// LookupTimeoutMs returns the configured timeout for a lookup name,
// falling back to 20s for names without an explicit entry.
func (c *Config) LookupTimeoutMs(name string) int {
	if lc, ok := c.Lookups[name]; ok && lc.TimeoutMs > 0 {
		return lc.TimeoutMs
	}
	return 20000
}
