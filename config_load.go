package goAuthClient

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "AUTHCLIENT"

// LoadConfig builds a Config from DefaultConfig, an optional file at path
// (any format viper understands), and AUTHCLIENT_* environment variables.
// Environment variables win over the file. Nested keys use underscores, so
// endpoints.login is read from AUTHCLIENT_ENDPOINTS_LOGIN.
//
// The result is validated before it is returned.
func LoadConfig(path string) (Config, error) {
	return LoadConfigWithDefaults(path, DefaultConfig())
}

// LoadConfigWithDefaults is LoadConfig seeded with def instead of
// DefaultConfig.
func LoadConfigWithDefaults(path string, def Config) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_base", def.BaseURL)
	v.SetDefault("origin", def.Origin)
	v.SetDefault("endpoints.login", def.Endpoints.Login)
	v.SetDefault("endpoints.refresh", def.Endpoints.Refresh)
	v.SetDefault("endpoints.logout", def.Endpoints.Logout)
	v.SetDefault("refresh_mode", def.RefreshMode.String())
	v.SetDefault("login_encoding", def.LoginEncoding.String())
	v.SetDefault("missing_refresh_policy", def.MissingRefreshPolicy.String())
	v.SetDefault("expiry_skew", def.ExpirySkew)
	v.SetDefault("request_timeout", def.RequestTimeout)
	v.SetDefault("requested_with", def.RequestedWith)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.latency_histograms", def.Metrics.EnableLatencyHistograms)
	v.SetDefault("audit.enabled", def.Audit.Enabled)
	v.SetDefault("audit.buffer_size", def.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", def.Audit.DropIfFull)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if errors.As(err, &nf) || errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("%w: config file %q not found", ErrConfigInvalid, path)
			}
			return Config{}, fmt.Errorf("%w: reading %q: %v", ErrConfigInvalid, path, err)
		}
	}

	cfg := def
	cfg.BaseURL = normalizeBaseURL(v.GetString("api_base"))
	cfg.Origin = v.GetString("origin")
	cfg.Endpoints = EndpointsConfig{
		Login:   v.GetString("endpoints.login"),
		Refresh: v.GetString("endpoints.refresh"),
		Logout:  v.GetString("endpoints.logout"),
	}
	cfg.ExpirySkew = v.GetDuration("expiry_skew")
	cfg.RequestTimeout = v.GetDuration("request_timeout")
	cfg.RequestedWith = v.GetString("requested_with")
	cfg.Metrics = MetricsConfig{
		Enabled:                 v.GetBool("metrics.enabled"),
		EnableLatencyHistograms: v.GetBool("metrics.latency_histograms"),
	}
	cfg.Audit = AuditConfig{
		Enabled:    v.GetBool("audit.enabled"),
		BufferSize: v.GetInt("audit.buffer_size"),
		DropIfFull: v.GetBool("audit.drop_if_full"),
	}

	var err error
	if cfg.RefreshMode, err = parseRefreshMode(v.GetString("refresh_mode")); err != nil {
		return Config{}, err
	}
	if cfg.LoginEncoding, err = parseLoginEncoding(v.GetString("login_encoding")); err != nil {
		return Config{}, err
	}
	if cfg.MissingRefreshPolicy, err = parseRefreshPolicy(v.GetString("missing_refresh_policy")); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseRefreshMode(s string) (RefreshMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cookie", "":
		return RefreshCookie, nil
	case "body":
		return RefreshBody, nil
	}
	return 0, fmt.Errorf("%w: unknown refresh_mode %q", ErrConfigInvalid, s)
}

func parseLoginEncoding(s string) (LoginEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "form", "":
		return EncodingForm, nil
	case "json":
		return EncodingJSON, nil
	}
	return 0, fmt.Errorf("%w: unknown login_encoding %q", ErrConfigInvalid, s)
}

func parseRefreshPolicy(s string) (RefreshPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return RefreshPolicyAuto, nil
	case "attempt":
		return RefreshPolicyAttempt, nil
	case "require_credential", "require":
		return RefreshPolicyRequireCredential, nil
	}
	return 0, fmt.Errorf("%w: unknown missing_refresh_policy %q", ErrConfigInvalid, s)
}
