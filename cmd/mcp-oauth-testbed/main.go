// Command mcp-oauth-testbed runs one testbed server, either a bearer-gated MCP
// resource server or an authorization server issuing fixed credentials.
//
// Configuration is read from the environment, optionally layered over a YAML
// file given with -config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	oauth "github.com/giantswarm/mcp-oauth-testbed"
	"github.com/giantswarm/mcp-oauth-testbed/instrumentation"
	"github.com/giantswarm/mcp-oauth-testbed/security"
	"github.com/giantswarm/mcp-oauth-testbed/server"
)

// Config is the process configuration
type Config struct {
	Addr      string `yaml:"addr" env:"LISTEN_ADDR" env-default:":8080"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"text"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	ServerType   string `yaml:"server_type" env:"SERVER_TYPE" env-default:"auth"`
	Name         string `yaml:"name" env:"SERVER_NAME"`
	PublicScheme string `yaml:"public_scheme" env:"PUBLIC_SCHEME" env-default:"https"`

	// Authorization server
	AuthorizeMode string `yaml:"authorize_mode" env:"AUTHORIZE_MODE" env-default:"strict"`
	Issuer        string `yaml:"issuer" env:"ISSUER"`
	TenantPath    string `yaml:"tenant_path" env:"TENANT_PATH"`
	MetadataPath  string `yaml:"metadata_path" env:"METADATA_PATH"`

	// Resource server
	AuthorizationServerURL string `yaml:"authorization_server_url" env:"AUTHORIZATION_SERVER_URL"`
	ProtectedPath          string `yaml:"protected_path" env:"PROTECTED_PATH"`
	DisableWWWAuthenticate bool   `yaml:"disable_www_authenticate" env:"DISABLE_WWW_AUTHENTICATE" env-default:"false"`

	// Shared credentials; empty values fall back to the built-in test values
	AuthorizationCode string `yaml:"authorization_code" env:"AUTHORIZATION_CODE"`
	AccessToken       string `yaml:"access_token" env:"ACCESS_TOKEN"`
	RefreshToken      string `yaml:"refresh_token" env:"REFRESH_TOKEN"`
	ClientID          string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret      string `yaml:"client_secret" env:"CLIENT_SECRET"`
	ExpiresIn         int64  `yaml:"expires_in" env:"EXPIRES_IN" env-default:"3600"`

	MetricsEnabled    bool    `yaml:"metrics_enabled" env:"METRICS_ENABLED" env-default:"false"`
	RateLimitRPS      float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"0"`
	RateLimitBurst    int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"10"`
	AuditLogging      bool    `yaml:"audit_logging" env:"AUDIT_LOGGING" env-default:"false"`
	TrustProxy        bool    `yaml:"trust_proxy" env:"TRUST_PROXY" env-default:"false"`
	TrustedProxyCount int     `yaml:"trusted_proxy_count" env:"TRUSTED_PROXY_COUNT" env-default:"1"`
}

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file; environment variables take precedence")
	flag.Parse()

	var config Config
	if err := loadConfig(*configPath, &config); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(config.LogFormat, config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging configuration: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(config, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string, config *Config) error {
	if path != "" {
		return cleanenv.ReadConfig(path, config)
	}
	return cleanenv.ReadEnv(config)
}

func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (supported: text, json)", format)
	}
}

// toServerConfig maps the flat process configuration onto the server role it selects
func (c *Config) toServerConfig() *oauth.ServerConfig {
	sc := &oauth.ServerConfig{
		Type: oauth.ServerType(c.ServerType),
		Name: c.Name,
		Credentials: oauth.Credentials{
			AuthorizationCode: c.AuthorizationCode,
			AccessToken:       c.AccessToken,
			RefreshToken:      c.RefreshToken,
			ClientID:          c.ClientID,
			ClientSecret:      c.ClientSecret,
			ExpiresIn:         c.ExpiresIn,
		},
		RateLimit: security.RateLimitConfig{
			RequestsPerSecond: c.RateLimitRPS,
			Burst:             c.RateLimitBurst,
		},
		EnableAuditLogging: c.AuditLogging,
		TrustProxy:         c.TrustProxy,
		TrustedProxyCount:  c.TrustedProxyCount,
		PublicScheme:       c.PublicScheme,
	}

	if c.MetricsEnabled {
		sc.Instrumentation = instrumentation.Config{
			Enabled:         true,
			ServiceVersion:  "1.0.0",
			MetricsExporter: instrumentation.MetricsExporterPrometheus,
		}
	}

	switch sc.Type {
	case oauth.ServerTypeResource:
		sc.Resource = &oauth.ResourceConfig{
			MetadataPath:           c.MetadataPath,
			AuthorizationServerURL: c.AuthorizationServerURL,
			TenantPath:             c.TenantPath,
			ProtectedPath:          c.ProtectedPath,
			DisableWWWAuthenticate: c.DisableWWWAuthenticate,
		}
	case oauth.ServerTypeAuthorization:
		sc.Authorization = &oauth.AuthorizationConfig{
			Mode:         server.Mode(c.AuthorizeMode),
			Issuer:       c.Issuer,
			TenantPath:   c.TenantPath,
			MetadataPath: c.MetadataPath,
		}
	}

	return sc
}

func run(config Config, logger *slog.Logger) error {
	srv, err := oauth.NewServer(config.toServerConfig(), logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              config.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Testbed server starting", "addr", config.Addr, "type", config.ServerType)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("testbed server shutdown: %w", err))
	}

	logger.Info("Server stopped")
	return errors.Join(errs...)
}
