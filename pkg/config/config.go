package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	// NodeID seeds the snowflake generator; it must differ per running process.
	NodeID int64 `mapstructure:"NODE_ID"`
	Log        struct {
		Level      string `mapstructure:"LEVEL"`
		Path       string `mapstructure:"PATH"`
		MaxSizeMB  int    `mapstructure:"MAX_SIZE_MB"`
		MaxBackups int    `mapstructure:"MAX_BACKUPS"`
		MaxAgeDays int    `mapstructure:"MAX_AGE_DAYS"`
		Compress   bool   `mapstructure:"COMPRESS"`
	} `mapstructure:"LOG"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		SlowThreshold  time.Duration `mapstructure:"SLOW_THRESHOLD"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Worker struct {
		Concurrency     int           `mapstructure:"CONCURRENCY"`
		ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	} `mapstructure:"WORKER"`
	Metrics struct {
		Enabled bool   `mapstructure:"ENABLED"`
		Port    uint32 `mapstructure:"PORT"`
	} `mapstructure:"METRICS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"SERVER"`
	Minio struct {
		Endpoint   string        `mapstructure:"ENDPOINT"`
		AccessKey  string        `mapstructure:"ACCESS_KEY"`
		SecretKey  string        `mapstructure:"SECRET_KEY"`
		Secure     bool          `mapstructure:"SECURE"`
		BucketName string        `mapstructure:"BUCKET_NAME"`
		PresignTTL time.Duration `mapstructure:"PRESIGN_TTL"`
	} `mapstructure:"MINIO"`
	Otel struct {
		Enabled  bool   `mapstructure:"ENABLED"`
		Protocol string `mapstructure:"PROTOCOL"`
		Endpoint string `mapstructure:"ENDPOINT"`
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr          string `mapstructure:"ADDR"`
		BasicAuthUser string `mapstructure:"BASIC_AUTH_USER"`
		BasicAuthPass string `mapstructure:"BASIC_AUTH_PASS"`
		// Mutex and block profiles cost extra; off unless asked for.
		Contention bool `mapstructure:"CONTENTION"`
	} `mapstructure:"PYROSCOPE"`
	Progression Progression `mapstructure:"PROGRESSION"`
}

type Progression struct {
	// Timezone used to cut daily and weekly period keys.
	Timezone         string        `mapstructure:"TIMEZONE"`
	PityThreshold    int           `mapstructure:"PITY_THRESHOLD"`
	CatalogCacheTTL  time.Duration `mapstructure:"CATALOG_CACHE_TTL"`
	AssetURLTemplate string        `mapstructure:"ASSET_URL_TEMPLATE"`
	Tracks           []TrackRule   `mapstructure:"TRACKS"`
}

type TrackRule struct {
	Kind       string `mapstructure:"KIND"`
	Key        string `mapstructure:"KEY"`
	Multiplier int    `mapstructure:"MULTIPLIER"`
	Divider    int    `mapstructure:"DIVIDER"`
	// Aggregate tracks draw cards from the whole pool instead of filtering by key.
	Aggregate bool `mapstructure:"AGGREGATE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "progression-engine")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.SLOW_THRESHOLD", 200*time.Millisecond)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 4*time.Second)
	v.SetDefault("WORKER.CONCURRENCY", 10)
	v.SetDefault("WORKER.SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("METRICS.ENABLED", true)
	v.SetDefault("METRICS.PORT", 9100)
	v.SetDefault("SERVER.ADDR", "8080")
	v.SetDefault("SERVER.READ_TIMEOUT", 5*time.Second)
	v.SetDefault("SERVER.WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("MINIO.BUCKET_NAME", "cards")
	v.SetDefault("MINIO.PRESIGN_TTL", 24*time.Hour)
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("PROGRESSION.TIMEZONE", "UTC")
	v.SetDefault("PROGRESSION.PITY_THRESHOLD", 10)
	v.SetDefault("PROGRESSION.CATALOG_CACHE_TTL", 5*time.Minute)
	v.SetDefault("PROGRESSION.ASSET_URL_TEMPLATE", "https://cdn.example.com/cards/%s.webp")
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !asNotFound(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

// LoadFile reads a single config file, used by tools and tests.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Progression.PityThreshold <= 0 {
		return nil, fmt.Errorf("PROGRESSION.PITY_THRESHOLD must be > 0")
	}
	if _, err := time.LoadLocation(cfg.Progression.Timezone); err != nil {
		return nil, fmt.Errorf("PROGRESSION.TIMEZONE: %w", err)
	}
	return &cfg, nil
}

func asNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	nf, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = nf
	}
	return ok
}

// Location returns the timezone period keys are computed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Progression.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
