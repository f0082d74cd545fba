package config

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tugasin/tugasin-blog/types"
)

type Loader struct {
	validator *validator.Validate
	envFiles  []string
	lookupEnv func(string) (string, bool)
}

type LoaderOption func(*Loader)

// WithEnvFiles sets the dotenv files merged into the process environment before overrides apply.
// Missing files are skipped.
func WithEnvFiles(files ...string) LoaderOption {
	return func(l *Loader) {
		l.envFiles = files
	}
}

func WithLookupEnv(lookup func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		l.lookupEnv = lookup
	}
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
		envFiles:  []string{".env", ".env.local"},
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) LoadFromFile(configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.Errorf(types.ErrConfigInvalidPath, "file not found: %s", configPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	return l.Load(data)
}

// Load parses yaml over Defaults, applies environment overrides and validates the result.
func (l *Loader) Load(data []byte) (*types.ServiceConfig, error) {
	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}
	l.applyEnv(config)

	if err := l.validator.Struct(config); err != nil {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return config, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) loadEnvFiles() error {
	for _, file := range l.envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		// godotenv.Load never overrides variables already present in the process.
		if err := godotenv.Load(file); err != nil {
			return types.WrapError(err, "failed to load env file "+file)
		}
	}
	return nil
}

func (l *Loader) applyEnv(config *types.ServiceConfig) {
	setString := func(key string, target *string) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*target = v
		}
	}

	setString("CMS_ENDPOINT", &config.CMS.Endpoint)
	setString("CMS_TOKEN", &config.CMS.Token)
	setString("SITE_URL", &config.Site.URL)
	setString("CDN_URL", &config.Site.CDNURL)
	setString("ADMIN_TOKEN", &config.Site.AdminToken)
	setString("LOG_LEVEL", &config.Logger.Level)

	if v, ok := l.lookupEnv("HTTP_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.HTTP.Port = port
		}
	}

	if v, ok := l.lookupEnv("REDIS_HOST"); ok && v != "" {
		cacheCfg := map[string]interface{}{}
		if existing, isMap := config.Cache.Config.(map[string]interface{}); isMap {
			cacheCfg = existing
		}
		cacheCfg["addr"] = v
		if pw, hasPw := l.lookupEnv("REDIS_PASSWORD"); hasPw {
			cacheCfg["password"] = pw
		}
		config.Cache.Type = "redis"
		config.Cache.Config = cacheCfg
	}

	if config.Storage == nil {
		config.Storage = &types.StorageConfig{}
	}
	if v, ok := l.lookupEnv("S3_BUCKET"); ok && v != "" {
		config.Storage.Enabled = true
		config.Storage.Bucket = v
	}
	setString("AWS_REGION", &config.Storage.Region)
	setString("S3_ENDPOINT", &config.Storage.Endpoint)

	if config.Events == nil {
		config.Events = &types.EventsConfig{}
	}
	if v, ok := l.lookupEnv("RABBITMQ_URL"); ok && v != "" {
		config.Events.Enabled = true
		config.Events.URL = v
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "tugasin-blog",
		Version: "dev",
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:            "0.0.0.0",
				Port:            8080,
				ReadTimeout:     30,
				WriteTimeout:    30,
				IdleTimeout:     120,
				ShutdownTimeout: 10,
			},
		},
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		Cache: &types.CacheConfig{
			Type:       "memory",
			DefaultTTL: 5 * time.Minute,
		},
		CMS: &types.CMSConfig{
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
			BackoffUnit: time.Second,
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          false,
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		Site: &types.SiteConfig{
			URL:           "https://tugasin.me",
			DefaultAuthor: "Admin",
			SitemapSource: "local",
		},
		Blog: &types.BlogConfig{
			PostFreshness:  5 * time.Minute,
			LookupTimeout:  5 * time.Second,
			CountTTL:       15 * time.Minute,
			StatusTTL:      2 * time.Minute,
			CategoriesTTL:  30 * time.Minute,
			SitemapTTL:     24 * time.Hour,
			SitemapBatch:   100,
			SitemapCap:     10000,
			SitemapChunk:   200,
			CategorySample: 50,
		},
		Storage: &types.StorageConfig{
			Enabled: false,
			Prefix:  "sitemaps/",
		},
		Events: &types.EventsConfig{
			Enabled:    false,
			Exchange:   "cms.events",
			Queue:      "tugasin-blog.cache",
			RoutingKey: "post.*",
		},
		Cron: &types.CronConfig{
			Enabled:  true,
			Timezone: "Asia/Jakarta",
		},
		Metrics: &types.MetricsConfig{
			Enabled: true,
		},
		Health: &types.HealthConfig{
			Enabled: true,
		},
		Middlewares: &types.MiddlewaresConfig{
			Enabled: true,
			Recovery: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  10,
			},
			Logging: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  20,
				Params: map[string]interface{}{
					"log_level":   "info",
					"log_headers": false,
				},
			},
			Metadata: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  30,
				Params: map[string]interface{}{
					"generate_request_id": true,
				},
			},
			TrailingSlash: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  40,
			},
			Rewrite: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  50,
			},
			Compression: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  60,
				Params: map[string]interface{}{
					"min_size": 1024,
				},
			},
		},
	}
}
