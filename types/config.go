package types

import (
	"time"
)

type ConfigManager interface {
	GetConfig() *ServiceConfig
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Server      *ServerConfig      `yaml:"server" json:"server" validate:"required"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger" validate:"required"`
	Cache       *CacheConfig       `yaml:"cache" json:"cache" validate:"required"`
	CMS         *CMSConfig         `yaml:"cms" json:"cms" validate:"required"`
	Site        *SiteConfig        `yaml:"site" json:"site" validate:"required"`
	Blog        *BlogConfig        `yaml:"blog" json:"blog" validate:"required"`
	Storage     *StorageConfig     `yaml:"storage" json:"storage"`
	Events      *EventsConfig      `yaml:"events" json:"events"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
	Middlewares *MiddlewaresConfig `yaml:"middlewares" json:"middlewares"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http" validate:"required"`
	TLS  *TLSConfig  `yaml:"tls" json:"tls"`
}

// TLSConfig serves HTTPS directly, either from ACME certificates (TLS-ALPN-01) or from key pair files.
type TLSConfig struct {
	Enabled       bool     `yaml:"enabled" json:"enabled"`
	AutoCert      bool     `yaml:"auto_cert" json:"auto_cert"`
	Domains       []string `yaml:"domains" json:"domains" validate:"required_if=AutoCert true"`
	Email         string   `yaml:"email" json:"email"`
	CacheDir      string   `yaml:"cache_dir" json:"cache_dir"`
	ACMEDirectory string   `yaml:"acme_directory" json:"acme_directory" validate:"omitempty,url"`
	CertFile      string   `yaml:"cert_file" json:"cert_file"`
	KeyFile       string   `yaml:"key_file" json:"key_file"`
}

type HTTPConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LoggerConfig struct {
	Level  string      `yaml:"level" json:"level" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Type       string        `yaml:"type" json:"type" validate:"oneof=memory redis"`
	Config     interface{}   `yaml:"config" json:"config"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
}

// CMSConfig describes the upstream content API. Endpoint and Token may legitimately be empty in
// config; the CMS client reports the gap per call as a ConfigError.
type CMSConfig struct {
	Endpoint       string                `yaml:"endpoint" json:"endpoint" validate:"omitempty,url"`
	Token          string                `yaml:"token" json:"token"`
	Timeout        time.Duration         `yaml:"timeout" json:"timeout" validate:"min=0"`
	MaxAttempts    int                   `yaml:"max_attempts" json:"max_attempts" validate:"min=1,max=10"`
	BackoffUnit    time.Duration         `yaml:"backoff_unit" json:"backoff_unit" validate:"min=0"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"required_if=Enabled true"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests"`
}

type SiteConfig struct {
	URL           string `yaml:"url" json:"url" validate:"required,url"`
	CDNURL        string `yaml:"cdn_url" json:"cdn_url" validate:"omitempty,url"`
	FallbackImage string `yaml:"fallback_image" json:"fallback_image"`
	DefaultAuthor string `yaml:"default_author" json:"default_author"`
	SitemapSource string `yaml:"sitemap_source" json:"sitemap_source" validate:"oneof=local cms"`
	AdminToken    string `yaml:"admin_token" json:"admin_token"`
}

type BlogConfig struct {
	PostFreshness  time.Duration `yaml:"post_freshness" json:"post_freshness" validate:"min=0"`
	LookupTimeout  time.Duration `yaml:"lookup_timeout" json:"lookup_timeout" validate:"min=0"`
	CountTTL       time.Duration `yaml:"count_ttl" json:"count_ttl" validate:"min=0"`
	StatusTTL      time.Duration `yaml:"status_ttl" json:"status_ttl" validate:"min=0"`
	CategoriesTTL  time.Duration `yaml:"categories_ttl" json:"categories_ttl" validate:"min=0"`
	SitemapTTL     time.Duration `yaml:"sitemap_ttl" json:"sitemap_ttl" validate:"min=0"`
	SitemapBatch   int           `yaml:"sitemap_batch" json:"sitemap_batch" validate:"min=1,max=1000"`
	SitemapCap     int           `yaml:"sitemap_cap" json:"sitemap_cap" validate:"min=1"`
	SitemapChunk   int           `yaml:"sitemap_chunk" json:"sitemap_chunk" validate:"min=1,max=50000"`
	CategorySample int           `yaml:"category_sample" json:"category_sample" validate:"min=1"`
}

type StorageConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Bucket   string `yaml:"bucket" json:"bucket" validate:"required_if=Enabled true"`
	Region   string `yaml:"region" json:"region" validate:"required_if=Enabled true"`
	Endpoint string `yaml:"endpoint" json:"endpoint" validate:"omitempty,url"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

type EventsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	URL        string `yaml:"url" json:"url" validate:"required_if=Enabled true"`
	Exchange   string `yaml:"exchange" json:"exchange" validate:"required_if=Enabled true"`
	Queue      string `yaml:"queue" json:"queue" validate:"required_if=Enabled true"`
	RoutingKey string `yaml:"routing_key" json:"routing_key"`
}

type CronConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Timezone string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
}

type MiddlewaresConfig struct {
	Enabled       bool                  `yaml:"enabled" json:"enabled"`
	Recovery      *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	Logging       *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	Metadata      *MiddlewareItemConfig `yaml:"metadata" json:"metadata"`
	TrailingSlash *MiddlewareItemConfig `yaml:"trailing_slash" json:"trailing_slash"`
	Rewrite       *MiddlewareItemConfig `yaml:"rewrite" json:"rewrite"`
	Compression   *MiddlewareItemConfig `yaml:"compression" json:"compression"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Config  interface{} `yaml:"config" json:"config"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type VersionInfo struct {
	Version   string `json:"version"`
	BuildInfo string `json:"build_info"`
}
