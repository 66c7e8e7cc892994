package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Batch        BatchConfig
	Pipeline     PipelineConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHIPLINE_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"SHIPLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHIPLINE_LOG_WARN_STACK" default:"false"`
	OpsAddr      string `envconfig:"SHIPLINE_OPS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHIPLINE_DB_DSN"`
	Driver string `envconfig:"SHIPLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHIPLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"SHIPLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHIPLINE_DB_USER"`
	LegacyPassword string `envconfig:"SHIPLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHIPLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHIPLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHIPLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHIPLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHIPLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHIPLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHIPLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHIPLINE_REDIS_ADDR"`
	Password     string        `envconfig:"SHIPLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHIPLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHIPLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHIPLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHIPLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHIPLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHIPLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BatchConfig bounds the adaptive chunked bulk loader.
type BatchConfig struct {
	InitialChunkSize int           `envconfig:"SHIPLINE_BATCH_INITIAL_CHUNK" default:"500"`
	MinChunkSize     int           `envconfig:"SHIPLINE_BATCH_MIN_CHUNK" default:"50"`
	MaxChunkSize     int           `envconfig:"SHIPLINE_BATCH_MAX_CHUNK" default:"2000"`
	MemoryThresholdB uint64        `envconfig:"SHIPLINE_BATCH_MEMORY_THRESHOLD_BYTES" default:"134217728"`
	MaxAttempts      int           `envconfig:"SHIPLINE_BATCH_MAX_ATTEMPTS" default:"4"`
	BackoffBase      time.Duration `envconfig:"SHIPLINE_BATCH_BACKOFF_BASE" default:"200ms"`
	Workers          int           `envconfig:"SHIPLINE_BATCH_WORKERS" default:"0"`
	ReclaimEvery     int           `envconfig:"SHIPLINE_BATCH_RECLAIM_EVERY" default:"10"`
}

// PipelineConfig carries run-level knobs that are not rule data.
type PipelineConfig struct {
	LockTTL         time.Duration `envconfig:"SHIPLINE_PIPELINE_LOCK_TTL" default:"2h"`
	NoteMarkerOpen  string        `envconfig:"SHIPLINE_PIPELINE_NOTE_MARKER_OPEN" default:"[["`
	NoteMarkerClose string        `envconfig:"SHIPLINE_PIPELINE_NOTE_MARKER_CLOSE" default:"]]"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHIPLINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHIPLINE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
