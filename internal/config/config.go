package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/straye-as/chart-api/internal/secrets"
	"go.uber.org/zap"
)

// ErrInvalidConfig is wrapped by every error returned from Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	App       AppConfig
	AniList   AniListConfig
	IGDB      IGDBConfig
	Sessions  SessionsConfig
	Export    ExportConfig
	Secrets   SecretsConfig
	Logging   LoggingConfig
	Server    ServerConfig
	CORS      CORSConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

// AniListConfig holds configuration for the anime search upstream
type AniListConfig struct {
	// Endpoint is the GraphQL endpoint
	Endpoint string
	// Timeout is the HTTP client timeout (seconds)
	Timeout int
}

// IGDBConfig holds configuration for the game search upstream.
// ClientID and ClientSecret are Twitch application credentials.
type IGDBConfig struct {
	ClientID     string
	ClientSecret string
	// TokenURL is the client-credentials token endpoint
	TokenURL string
	// Endpoint is the games query endpoint
	Endpoint string
	// ImageBaseURL is the prefix for cover image URLs
	ImageBaseURL string
	// Timeout is the HTTP client timeout (seconds)
	Timeout int
}

// SessionsConfig controls the in-memory chart sessions
type SessionsConfig struct {
	// IdleTTL is how long an untouched session survives (seconds)
	IdleTTL int
	// SweepCron is the cron expression for the idle session sweep
	SweepCron string
	// Max is the maximum number of live sessions
	Max int
	// MaxPerClient caps the live sessions a single client IP may hold
	MaxPerClient int
	// MaxUploadSizeMB caps image uploads
	MaxUploadSizeMB int64
}

// ExportConfig controls PNG rasterization
type ExportConfig struct {
	// Renderer is "compose" (pure Go) or "browser" (headless Chrome)
	Renderer string
	// PixelRatio is the fixed output density
	PixelRatio int
	// FetchTimeout bounds cover image downloads (seconds)
	FetchTimeout int
	// FetchConcurrency bounds parallel cover image downloads
	FetchConcurrency int
	// BrowserBin optionally points at a Chrome/Chromium binary
	BrowserBin string
	// RenderTimeout bounds a single browser render (seconds)
	RenderTimeout int
	// MaxImagePixels caps the declared width*height of any decoded image
	MaxImagePixels int
	// AllowPrivateHosts lets cover fetches reach loopback and private networks.
	// Only meant for local development.
	AllowPrivateHosts bool
	// FontFiles lists OpenType/TrueType fonts (.otf, .ttf, .ttc) tried before
	// the embedded Go font when drawing titles and labels
	FontFiles []string
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment", "vault", or "auto"
	// "auto" uses environment in development, vault in staging/production
	Source       string
	KeyVaultName string
	CacheEnabled bool
	CacheTTL     int // seconds
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout  int
	WriteTimeout int
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins for CORS requests
	// Use "*" to allow all origins (not recommended for production)
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the max age (in seconds) for preflight cache
	MaxAge int
}

// SecurityConfig holds security header configuration
type SecurityConfig struct {
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	ContentSecurityPolicy string
	// FrameOptions sets the X-Frame-Options header (DENY, SAMEORIGIN, or empty to disable)
	FrameOptions       string
	ContentTypeNosniff bool
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerMinute is the default rate limit per client IP
	RequestsPerMinute int
	// SearchRequestsPerMinute is the tighter limit for the upstream proxies
	SearchRequestsPerMinute int
	// WhitelistIPs is a list of IPs that bypass rate limiting
	WhitelistIPs []string
	// WhitelistPaths is a list of paths that bypass rate limiting (e.g., /health)
	WhitelistPaths []string
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

func (a *AniListConfig) TimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

func (i *IGDBConfig) TimeoutDuration() time.Duration {
	return time.Duration(i.Timeout) * time.Second
}

// HasCredentials reports whether both client credentials are present
func (i *IGDBConfig) HasCredentials() bool {
	return strings.TrimSpace(i.ClientID) != "" && strings.TrimSpace(i.ClientSecret) != ""
}

// IdleTTLDuration returns the idle session lifetime as duration
func (s *SessionsConfig) IdleTTLDuration() time.Duration {
	return time.Duration(s.IdleTTL) * time.Second
}

// MaxUploadBytes returns the upload cap in bytes
func (s *SessionsConfig) MaxUploadBytes() int64 {
	return s.MaxUploadSizeMB * 1024 * 1024
}

func (e *ExportConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(e.FetchTimeout) * time.Second
}

func (e *ExportConfig) RenderTimeoutDuration() time.Duration {
	return time.Duration(e.RenderTimeout) * time.Second
}

// Validate checks the configuration once at startup.
// Every problem is reported, not just the first.
func (c *Config) Validate() error {
	var problems []string

	if c.App.Port <= 0 || c.App.Port > 65535 {
		problems = append(problems, fmt.Sprintf("app.port must be 1-65535, got %d", c.App.Port))
	}
	if !c.IGDB.HasCredentials() {
		problems = append(problems, "igdb.clientId and igdb.clientSecret are required (set IGDB_CLIENTID and IGDB_CLIENTSECRET)")
	}
	if c.AniList.Endpoint == "" {
		problems = append(problems, "anilist.endpoint is required")
	}
	if c.IGDB.Endpoint == "" || c.IGDB.TokenURL == "" {
		problems = append(problems, "igdb.endpoint and igdb.tokenUrl are required")
	}
	switch c.Export.Renderer {
	case "compose", "browser":
	default:
		problems = append(problems, fmt.Sprintf("export.renderer must be compose or browser, got %q", c.Export.Renderer))
	}
	if c.Export.PixelRatio < 1 || c.Export.PixelRatio > 4 {
		problems = append(problems, fmt.Sprintf("export.pixelRatio must be 1-4, got %d", c.Export.PixelRatio))
	}
	if c.Export.FetchConcurrency < 1 {
		problems = append(problems, "export.fetchConcurrency must be at least 1")
	}
	if c.Export.MaxImagePixels < 1 {
		problems = append(problems, "export.maxImagePixels must be at least 1")
	}
	if c.Export.AllowPrivateHosts && c.App.Environment == "production" {
		problems = append(problems, "export.allowPrivateHosts must not be enabled in production")
	}
	if c.Sessions.Max < 1 {
		problems = append(problems, "sessions.max must be at least 1")
	}
	if c.Sessions.MaxPerClient < 1 || c.Sessions.MaxPerClient > c.Sessions.Max {
		problems = append(problems, fmt.Sprintf("sessions.maxPerClient must be 1-%d, got %d", c.Sessions.Max, c.Sessions.MaxPerClient))
	}
	if c.Sessions.IdleTTL < 1 {
		problems = append(problems, "sessions.idleTTL must be at least 1 second")
	}
	if c.Sessions.MaxUploadSizeMB < 1 {
		problems = append(problems, "sessions.maxUploadSizeMB must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Load loads configuration from file and environment variables
// This is a basic load that doesn't fetch secrets from vault
// Use LoadWithSecrets for full secret resolution
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Unmarshal does not consult AutomaticEnv for keys that have no default
	if cfg.IGDB.ClientID == "" {
		cfg.IGDB.ClientID = firstNonEmpty(v.GetString("IGDB_CLIENTID"), v.GetString("TWITCH_CLIENT_ID"))
	}
	if cfg.IGDB.ClientSecret == "" {
		cfg.IGDB.ClientSecret = firstNonEmpty(v.GetString("IGDB_CLIENTSECRET"), v.GetString("TWITCH_CLIENT_SECRET"))
	}

	if cfg.Secrets.KeyVaultName == "" {
		cfg.Secrets.KeyVaultName = v.GetString("AZURE_KEY_VAULT_NAME")
	}

	return &cfg, nil
}

// LoadWithSecrets loads configuration and resolves the IGDB credentials from the configured source.
// Key Vault is used when USE_AZURE_KEY_VAULT=true and the environment is staging or production;
// otherwise the environment variables read by Load are kept.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	useKeyVault := strings.ToLower(os.Getenv("USE_AZURE_KEY_VAULT")) == "true"
	isValidEnv := cfg.App.Environment == "staging" || cfg.App.Environment == "production"

	if !useKeyVault {
		logger.Info("USE_AZURE_KEY_VAULT not enabled, using environment variables for secrets",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if !isValidEnv {
		logger.Warn("USE_AZURE_KEY_VAULT is enabled but environment is not staging or production, using environment variables",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if cfg.Secrets.KeyVaultName == "" {
		return nil, fmt.Errorf("AZURE_KEY_VAULT_NAME is required when USE_AZURE_KEY_VAULT=true")
	}

	provider, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:       secrets.SourceVault,
		VaultName:    cfg.Secrets.KeyVaultName,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Secrets.CacheTTL) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider (USE_AZURE_KEY_VAULT=true requires valid vault): %w", err)
	}

	if err := ResolveSecrets(ctx, cfg, provider); err != nil {
		return nil, err
	}

	logger.Info("Secrets loaded from vault successfully")
	return cfg, nil
}

// SecretSource is the subset of secrets.Provider used to resolve credentials
type SecretSource interface {
	GetSecretOrEnv(ctx context.Context, secretName, envName string) (string, error)
}

// ResolveSecrets fills the IGDB credentials from a secret source.
// Environment variables still take precedence over vault values.
func ResolveSecrets(ctx context.Context, cfg *Config, src SecretSource) error {
	clientID, err := src.GetSecretOrEnv(ctx, "igdb-client-id", "IGDB_CLIENTID")
	if err != nil {
		return fmt.Errorf("failed to resolve IGDB client id: %w", err)
	}
	clientSecret, err := src.GetSecretOrEnv(ctx, "igdb-client-secret", "IGDB_CLIENTSECRET")
	if err != nil {
		return fmt.Errorf("failed to resolve IGDB client secret: %w", err)
	}
	cfg.IGDB.ClientID = clientID
	cfg.IGDB.ClientSecret = clientSecret
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Chart API")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	// Upstream defaults
	v.SetDefault("anilist.endpoint", "https://graphql.anilist.co")
	v.SetDefault("anilist.timeout", 15)
	v.SetDefault("igdb.tokenUrl", "https://id.twitch.tv/oauth2/token")
	v.SetDefault("igdb.endpoint", "https://api.igdb.com/v4/games")
	v.SetDefault("igdb.imageBaseUrl", "https://images.igdb.com/igdb/image/upload/t_cover_big/")
	v.SetDefault("igdb.timeout", 15)

	// Session defaults
	v.SetDefault("sessions.idleTTL", 3600) // 1 hour
	v.SetDefault("sessions.sweepCron", "@every 5m")
	v.SetDefault("sessions.max", 1000)
	v.SetDefault("sessions.maxPerClient", 20)
	v.SetDefault("sessions.maxUploadSizeMB", 10)

	// Export defaults
	v.SetDefault("export.renderer", "compose")
	v.SetDefault("export.pixelRatio", 2)
	v.SetDefault("export.fetchTimeout", 20)
	v.SetDefault("export.fetchConcurrency", 6)
	v.SetDefault("export.browserBin", "")
	v.SetDefault("export.renderTimeout", 30)
	v.SetDefault("export.maxImagePixels", 40_000_000)
	v.SetDefault("export.allowPrivateHosts", false)
	v.SetDefault("export.fontFiles", []string{
		"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
		"/usr/share/fonts/noto-cjk/NotoSansCJK-Regular.ttc",
		"/usr/share/fonts/google-noto-cjk/NotoSansCJK-Regular.ttc",
		"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
	})

	// Secrets defaults
	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300) // 5 minutes

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)

	// CORS defaults - restrictive by default
	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"Content-Disposition", "Location", "X-Request-ID"})
	v.SetDefault("cors.allowCredentials", false)
	v.SetDefault("cors.maxAge", 300)

	// Security header defaults
	v.SetDefault("security.enableHSTS", false)
	v.SetDefault("security.hstsMaxAge", 31536000)
	v.SetDefault("security.hstsIncludeSubdomains", true)
	v.SetDefault("security.hstsPreload", false)
	v.SetDefault("security.contentSecurityPolicy", "default-src 'self'; img-src 'self' data: https:; style-src 'self' 'unsafe-inline'")
	v.SetDefault("security.frameOptions", "DENY")
	v.SetDefault("security.contentTypeNosniff", true)
	v.SetDefault("security.referrerPolicy", "strict-origin-when-cross-origin")
	v.SetDefault("security.permissionsPolicy", "geolocation=(), microphone=(), camera=()")

	// Rate limiting defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 240)
	v.SetDefault("rateLimit.searchRequestsPerMinute", 60)
	v.SetDefault("rateLimit.whitelistIPs", []string{"127.0.0.1", "::1"})
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health"})
}
