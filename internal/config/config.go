package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
// 優先順位: 環境変数 > 設定ファイル(checkinlog.yaml) > デフォルト値。
type Config struct {
	// Upstream (クライアント側)
	APIBaseURL     string        `mapstructure:"API_BASE_URL"`
	Token          string        `mapstructure:"CHECKIN_TOKEN"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	// Sync layer
	IdentityTTL         time.Duration `mapstructure:"IDENTITY_TTL"`
	LinkPreviewDebounce time.Duration `mapstructure:"LINK_PREVIEW_DEBOUNCE"`
	VisibilityMargin    int           `mapstructure:"VISIBILITY_MARGIN"`
	HistoryPerPage      int           `mapstructure:"HISTORY_PER_PAGE"`
	TagLocale           string        `mapstructure:"TAG_LOCALE"`

	// Logging
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Proxy
	ProxyPort          string `mapstructure:"PROXY_PORT"`
	UpstreamURL        string `mapstructure:"UPSTREAM_URL"`
	ProxyHeaderPrefix  string `mapstructure:"PROXY_HEADER_PREFIX"`
	ProxySafeUpstream  bool   `mapstructure:"PROXY_SAFE_UPSTREAM"`
	CORSAllowedOrigin  string `mapstructure:"CORS_ALLOWED_ORIGIN"`
	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
}

// defaults は各設定キーのデフォルト値。
var defaults = map[string]any{
	"API_BASE_URL":          "http://localhost:3001/api",
	"CHECKIN_TOKEN":         "",
	"REQUEST_TIMEOUT":       10 * time.Second,
	"IDENTITY_TTL":          5 * time.Minute,
	"LINK_PREVIEW_DEBOUNCE": 500 * time.Millisecond,
	"VISIBILITY_MARGIN":     100,
	"HISTORY_PER_PAGE":      20,
	"TAG_LOCALE":            "ja",
	"LOG_LEVEL":             "info",
	"PROXY_PORT":            "3001",
	"UPSTREAM_URL":          "https://shikorism.net/api",
	"PROXY_HEADER_PREFIX":   "X-",
	"PROXY_SAFE_UPSTREAM":   true,
	"CORS_ALLOWED_ORIGIN":   "http://localhost:5173",
	"RATE_LIMIT_PER_MINUTE": 120,
}

// Load は設定ファイルと環境変数からConfigを読み込む。
// pathは設定ファイル(checkinlog.yaml)を探すディレクトリ。空の場合はカレントディレクトリ。
// 設定ファイルが存在しない場合は環境変数とデフォルト値のみで構成する。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = "."
	}
	v.AddConfigPath(path)
	v.SetConfigName("checkinlog")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireCredential はクライアント系サブコマンドで必須となるトークンの有無を検証する。
func (c *Config) RequireCredential() error {
	if c.Token == "" {
		return fmt.Errorf("required configuration is not set: [CHECKIN_TOKEN]")
	}
	return nil
}

// validate は値の範囲を検証する。
func (c *Config) validate() error {
	var invalid []string

	if c.APIBaseURL == "" {
		invalid = append(invalid, "API_BASE_URL")
	}
	if c.HistoryPerPage < 10 || c.HistoryPerPage > 100 {
		invalid = append(invalid, "HISTORY_PER_PAGE")
	}
	if c.IdentityTTL <= 0 {
		invalid = append(invalid, "IDENTITY_TTL")
	}
	if c.LinkPreviewDebounce <= 0 {
		invalid = append(invalid, "LINK_PREVIEW_DEBOUNCE")
	}
	if c.VisibilityMargin < 0 {
		invalid = append(invalid, "VISIBILITY_MARGIN")
	}
	if c.RateLimitPerMinute <= 0 {
		invalid = append(invalid, "RATE_LIMIT_PER_MINUTE")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration values: %v", invalid)
	}
	return nil
}
