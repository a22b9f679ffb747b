package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for the mediapost service.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Tracing   TracingConfig
	Metrics   MetricsConfig
	Upload    UploadConfig
	Transcode TranscodeConfig
	Bluesky   BlueskyConfig
	Mastodon  MastodonConfig
	Ledger    LedgerConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"mediapost"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":3030"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

type AuthConfig struct {
	AdminToken string `env:"ADMIN_TOKEN,required"`
}

type StorageConfig struct {
	Endpoint  string `env:"STORAGE_ENDPOINT" envDefault:"s3.amazonaws.com"`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-2"`
	Bucket    string `env:"STORAGE_BUCKET,required"`
	AccessKey string `env:"STORAGE_ACCESS_KEY,required"`
	SecretKey string `env:"STORAGE_SECRET_KEY,required"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"true"`
	// PublicHosts lists every URL prefix under which stored objects are
	// reachable; publish operations strip these to recover storage keys.
	PublicHosts  []string `env:"STORAGE_PUBLIC_HOSTS" envSeparator:","`
	ListPageSize int      `env:"STORAGE_LIST_PAGE_SIZE" envDefault:"20"`
}

type DatabaseConfig struct {
	URL         string        `env:"DATABASE_URL,required"`
	MaxConns    int32         `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	ConnTimeout time.Duration `env:"DATABASE_CONN_TIMEOUT" envDefault:"10s"`
}

type KafkaConfig struct {
	Enabled      bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers      []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	EventsTopic  string        `env:"KAFKA_EVENTS_TOPIC" envDefault:"mediapost.events"`
	Retries      int           `env:"KAFKA_RETRIES" envDefault:"3"`
	BatchSize    int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
	Compression  string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
}

type TracingConfig struct {
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
}

type MetricsConfig struct {
	Addr string `env:"METRICS_ADDR" envDefault:":9102"`
}

type UploadConfig struct {
	Dir               string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxSizeBytes      int64  `env:"UPLOAD_MAX_SIZE_BYTES" envDefault:"52428800"`
	MultipartMemBytes int64  `env:"UPLOAD_MULTIPART_MEM_BYTES" envDefault:"33554432"`
}

type TranscodeConfig struct {
	FFmpegPath string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	Timeout    time.Duration `env:"TRANSCODE_TIMEOUT" envDefault:"5m"`
}

type BlueskyConfig struct {
	PDSURL       string        `env:"BLUESKY_PDS_URL" envDefault:"https://bsky.social"`
	VideoHost    string        `env:"BLUESKY_VIDEO_HOST" envDefault:"https://video.bsky.app"`
	Identifier   string        `env:"BLUESKY_IDENTIFIER"`
	Password     string        `env:"BLUESKY_PASSWORD"`
	PollInterval time.Duration `env:"BLUESKY_VIDEO_POLL_INTERVAL" envDefault:"1s"`
	PollTimeout  time.Duration `env:"BLUESKY_VIDEO_POLL_TIMEOUT" envDefault:"5m"`
}

type MastodonConfig struct {
	Server      string `env:"MASTODON_SERVER" envDefault:"https://mastodon.social"`
	AccessToken string `env:"MASTODON_ACCESS_TOKEN"`
}

type LedgerConfig struct {
	SweepInterval time.Duration `env:"LEDGER_SWEEP_INTERVAL" envDefault:"15m"`
	PendingMaxAge time.Duration `env:"LEDGER_PENDING_MAX_AGE" envDefault:"1h"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
