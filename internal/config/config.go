package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full service configuration. Values come from defaults,
// an optional config file, and RAMPDASH_-prefixed environment variables,
// in increasing precedence.
type Config struct {
	Server     Server
	Upstream   Upstream
	Classifier Classifier
	Pagination Pagination
}

// Server configures the HTTP listener and logging.
type Server struct {
	Host   string
	Port   int
	LogDir string
}

// Upstream configures the expense API client.
type Upstream struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	MaxRetries   int
}

// Classifier configures the remote categorization model.
type Classifier struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Pagination configures the page coordinator.
type Pagination struct {
	PageSize   int
	ChunkSize  int
	CountLimit int
}

// Load reads configuration. When path is empty, an optional rampdash.yaml in
// the working directory is used if present; a named path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_dir", "logs")
	v.SetDefault("upstream.base_url", "https://demo-api.ramp.com")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.max_retries", 3)
	v.SetDefault("classifier.model", "gpt-3.5-turbo")
	v.SetDefault("pagination.page_size", 20)
	v.SetDefault("pagination.chunk_size", 100)
	v.SetDefault("pagination.count_limit", 20)

	v.SetEnvPrefix("RAMPDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("rampdash")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: Server{
			Host:   v.GetString("server.host"),
			Port:   v.GetInt("server.port"),
			LogDir: v.GetString("server.log_dir"),
		},
		Upstream: Upstream{
			BaseURL:      v.GetString("upstream.base_url"),
			ClientID:     v.GetString("upstream.client_id"),
			ClientSecret: v.GetString("upstream.client_secret"),
			Timeout:      v.GetDuration("upstream.timeout"),
			MaxRetries:   v.GetInt("upstream.max_retries"),
		},
		Classifier: Classifier{
			APIKey:  v.GetString("classifier.api_key"),
			Model:   v.GetString("classifier.model"),
			BaseURL: v.GetString("classifier.base_url"),
		},
		Pagination: Pagination{
			PageSize:   v.GetInt("pagination.page_size"),
			ChunkSize:  v.GetInt("pagination.chunk_size"),
			CountLimit: v.GetInt("pagination.count_limit"),
		},
	}
	return cfg, nil
}

// Validate checks the settings a running server cannot do without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Upstream.ClientID) == "" {
		return errors.New("upstream client id is required (RAMPDASH_UPSTREAM_CLIENT_ID)")
	}
	if strings.TrimSpace(c.Upstream.ClientSecret) == "" {
		return errors.New("upstream client secret is required (RAMPDASH_UPSTREAM_CLIENT_SECRET)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Pagination.PageSize <= 0 || c.Pagination.ChunkSize <= 0 {
		return errors.New("page size and chunk size must be positive")
	}
	if c.Pagination.ChunkSize%c.Pagination.PageSize != 0 {
		return fmt.Errorf("chunk size %d must be a multiple of page size %d",
			c.Pagination.ChunkSize, c.Pagination.PageSize)
	}
	return nil
}
