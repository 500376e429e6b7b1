package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DrewBradfordXYZ/sforce-go"
)

const (
	DefaultEnvPrefix = "SFORCE"

	DefaultTimeout    = 2 * time.Minute
	DefaultMaxRetries = 3
)

var DefaultConfig = Config{
	LoginURL:   sforce.DefaultLoginURL,
	Timeout:    DefaultTimeout,
	MaxRetries: DefaultMaxRetries,
}

// Config is read from SFORCE_* environment variables, an optional .env file
// and the root command's persistent flags, in increasing precedence.
type Config struct {
	Username      string `json:"username,omitempty"       mapstructure:"username"`
	Password      string `json:"-"                        mapstructure:"password"`
	SecurityToken string `json:"-"                        mapstructure:"security_token"`
	SessionID     string `json:"-"                        mapstructure:"session_id"`
	ServerURL     string `json:"server_url,omitempty"     mapstructure:"server_url"`
	LoginURL      string `json:"login_url,omitempty"      mapstructure:"login_url"`
	APIVersion    string `json:"api_version,omitempty"    mapstructure:"api_version"`

	Timeout           time.Duration `json:"timeout,omitempty"            mapstructure:"timeout"`
	MaxRetries        int           `json:"max_retries,omitempty"        mapstructure:"max_retries"`
	BatchSize         int           `json:"batch_size,omitempty"         mapstructure:"batch_size"`
	MaxPages          int           `json:"max_pages,omitempty"          mapstructure:"max_pages"`
	PageDelay         time.Duration `json:"page_delay,omitempty"         mapstructure:"page_delay"`
	AdaptiveThreshold float64       `json:"adaptive_threshold,omitempty" mapstructure:"adaptive_threshold"`
	Debug             bool          `json:"debug,omitempty"              mapstructure:"debug"`
}

// LoadConfig merges environment and flags into a Config. flags may be nil.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.NewWithOptions(
		viper.KeyDelimiter("."),
		viper.EnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")),
	)

	v.SetEnvPrefix(DefaultEnvPrefix)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	// Credentials
	_ = v.BindEnv("username")
	_ = v.BindEnv("password")
	_ = v.BindEnv("security_token")
	_ = v.BindEnv("session_id")
	_ = v.BindEnv("server_url")

	_ = v.BindEnv("login_url")
	v.SetDefault("login_url", DefaultConfig.LoginURL)

	_ = v.BindEnv("api_version")
	v.SetDefault("api_version", "")

	// Transport
	_ = v.BindEnv("timeout")
	v.SetDefault("timeout", DefaultConfig.Timeout)

	_ = v.BindEnv("max_retries")
	v.SetDefault("max_retries", DefaultConfig.MaxRetries)

	// Pagination
	_ = v.BindEnv("batch_size")
	v.SetDefault("batch_size", 0)

	_ = v.BindEnv("max_pages")
	v.SetDefault("max_pages", 0)

	_ = v.BindEnv("page_delay")
	v.SetDefault("page_delay", time.Duration(0))

	_ = v.BindEnv("adaptive_threshold")
	v.SetDefault("adaptive_threshold", 0.0)

	_ = v.BindEnv("debug")
	v.SetDefault("debug", false)

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isConfigKey(key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	// Load configuration into struct
	decodeHooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	config := &Config{}
	if err := v.Unmarshal(config, viper.DecodeHook(decodeHooks)); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return config, nil
}

var configKeys = map[string]struct{}{
	"username": {}, "password": {}, "security_token": {}, "session_id": {}, "server_url": {},
	"login_url": {}, "api_version": {}, "timeout": {}, "max_retries": {}, "batch_size": {},
	"max_pages": {}, "page_delay": {}, "adaptive_threshold": {}, "debug": {},
}

func isConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// Options translates the configuration into client options.
func (c *Config) Options() ([]sforce.Option, error) {
	var opts []sforce.Option

	switch {
	case c.SessionID != "":
		if c.ServerURL == "" {
			return nil, errors.New("SFORCE_SERVER_URL is required with SFORCE_SESSION_ID")
		}
		opts = append(opts, sforce.WithSession(c.SessionID, c.ServerURL))
	case c.Username != "":
		opts = append(opts, sforce.WithPasswordLogin(c.Username, c.Password, c.SecurityToken))
	default:
		return nil, errors.New("no credentials: set SFORCE_USERNAME and SFORCE_PASSWORD, or SFORCE_SESSION_ID and SFORCE_SERVER_URL")
	}

	if c.LoginURL != "" {
		opts = append(opts, sforce.WithLoginURL(c.LoginURL))
	}
	if c.APIVersion != "" {
		opts = append(opts, sforce.WithAPIVersion(c.APIVersion))
	}
	if c.Timeout > 0 {
		opts = append(opts, sforce.WithTimeout(c.Timeout))
	}
	if c.MaxRetries >= 0 {
		opts = append(opts, sforce.WithMaxRetries(c.MaxRetries))
	}
	if c.BatchSize > 0 {
		opts = append(opts, sforce.WithQueryBatchSize(c.BatchSize))
	}
	if c.MaxPages > 0 {
		opts = append(opts, sforce.WithMaxPages(c.MaxPages))
	}
	if c.PageDelay > 0 {
		opts = append(opts, sforce.WithPageDelay(c.PageDelay))
	}
	if c.AdaptiveThreshold > 0 {
		opts = append(opts, sforce.WithAdaptiveThrottle(c.AdaptiveThreshold))
	}
	opts = append(opts, sforce.WithDebug(c.Debug))

	return opts, nil
}
