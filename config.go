package ftp

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is a higher-level, declarative counterpart to the functional
// Option pattern: the set of keys cmd/goftp (and any application embedding
// this package) binds to a config file or environment variables via
// spf13/viper, then translates into Option values with ToOptions.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// Secure selects the TLS mode: "none" (default), "explicit", or
	// "implicit".
	Secure string `mapstructure:"secure"`
	// SecureSkipVerify disables server certificate validation. Intended
	// for lab/test servers only.
	SecureSkipVerify bool `mapstructure:"secureSkipVerify"`

	UseSocksProxy  bool   `mapstructure:"useSocksProxy"`
	SocksProxyHost string `mapstructure:"socksProxyHost"`
	SocksProxyPort int    `mapstructure:"socksProxyPort"`

	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idleTimeout"`

	Encoding          string `mapstructure:"encoding"`
	BandwidthLimitBps int64  `mapstructure:"bandwidthLimitBps"`
	DisableEPSV       bool   `mapstructure:"disableEpsv"`
}

// LoadConfig reads configuration from configPath (a YAML/JSON/TOML file
// recognized by viper) layered under environment variables with the
// "GOFTP_" prefix, and returns the decoded Config. A missing configPath is
// not an error: callers relying solely on environment variables or flag
// overrides pass an empty string.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("goftp")
	v.AutomaticEnv()

	v.SetDefault("port", 21)
	v.SetDefault("secure", "none")
	v.SetDefault("timeout", 30*time.Second)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Addr returns the "host:port" string Dial/Connect expect.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToOptions translates the recognized config keys into Option values, in
// the same order a caller composing them by hand would: TLS mode first
// (so WithExplicitTLS/WithImplicitTLS's mutual-exclusion check runs before
// anything else), then the connection-shaping options.
func (c *Config) ToOptions() ([]Option, error) {
	var opts []Option

	switch c.Secure {
	case "", "none":
	case "explicit":
		opts = append(opts, WithExplicitTLS(&tls.Config{
			ServerName:         c.Host,
			InsecureSkipVerify: c.SecureSkipVerify,
		}))
	case "implicit":
		opts = append(opts, WithImplicitTLS(&tls.Config{
			ServerName:         c.Host,
			InsecureSkipVerify: c.SecureSkipVerify,
		}))
	default:
		return nil, fmt.Errorf("unrecognized secure mode %q", c.Secure)
	}

	if c.UseSocksProxy {
		if c.SocksProxyHost == "" {
			return nil, fmt.Errorf("useSocksProxy is set but socksProxyHost is empty")
		}
		opts = append(opts, WithSocksProxy(fmt.Sprintf("%s:%d", c.SocksProxyHost, c.SocksProxyPort)))
	}

	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	if c.IdleTimeout > 0 {
		opts = append(opts, WithIdleTimeout(c.IdleTimeout))
	}
	if c.Encoding != "" {
		opts = append(opts, WithEncoding(c.Encoding))
	}
	if c.BandwidthLimitBps > 0 {
		opts = append(opts, WithBandwidthLimit(c.BandwidthLimitBps))
	}
	if c.DisableEPSV {
		opts = append(opts, WithDisableEPSV())
	}

	return opts, nil
}
