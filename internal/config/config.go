package config

import (
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	Database   Database  `yaml:"database"`
	Storage    Storage   `yaml:"storage"`
	PhotoRoom  PhotoRoom `yaml:"photoroom"`
	Upload     Upload    `yaml:"upload"`
	RateLimit  RateLimit `yaml:"rate_limit"`
	Kafka      Kafka     `yaml:"kafka"`
}

type HTTPServer struct {
	Address        string        `yaml:"address" env-default:"localhost:8082"`
	Timeout        time.Duration `yaml:"timeout" env-default:"15s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RequestTimeout time.Duration `yaml:"request_timeout" env-default:"60s"`
	BaseURL        string        `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8082"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:"http://localhost:5173"`
}

type Database struct {
	Host     string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"DB_USER" validate:"required"`
	Password string `yaml:"password" env:"DB_PASSWORD" validate:"required"`
	DBName   string `yaml:"dbname" env:"DB_NAME" env-default:"images"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`

	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
}

// Storage points at a MinIO (or any S3-compatible) object store.
type Storage struct {
	Endpoint   string `yaml:"endpoint" env:"STORAGE_ENDPOINT" env-default:"localhost:9000"`
	AccessKey  string `yaml:"access_key" env:"STORAGE_ACCESS_KEY" validate:"required"`
	SecretKey  string `yaml:"secret_key" env:"STORAGE_SECRET_KEY" validate:"required"`
	Bucket     string `yaml:"bucket" env:"STORAGE_BUCKET" env-default:"images"`
	PublicBase string `yaml:"public_base" env:"STORAGE_PUBLIC_BASE" env-default:"http://localhost:9000/images"`
	UseSSL     bool   `yaml:"use_ssl" env:"STORAGE_USE_SSL" env-default:"false"`
}

type PhotoRoom struct {
	APIKey  string        `yaml:"api_key" env:"PHOTOROOM_API_KEY" validate:"required"`
	APIURL  string        `yaml:"api_url" env-default:"https://sdk.photoroom.com/v1/segment"`
	Timeout time.Duration `yaml:"timeout" env-default:"30s"`
}

type Upload struct {
	MaxFileSizeMB int64    `yaml:"max_file_size_mb" env-default:"10"`
	AllowedTypes  []string `yaml:"allowed_types" env-default:"image/png,image/jpeg,image/webp,image/heic,image/heif"`
}

type RateLimit struct {
	Window      time.Duration `yaml:"window" env-default:"60s"`
	MaxRequests int           `yaml:"max_requests" env-default:"30"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env-default:"cleanup-tasks"`
	GroupID string   `yaml:"group_id" env-default:"image-cutout"`
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/local.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		log.Fatalf("invalid config: %s", err)
	}

	return &cfg
}

// MaxFileSizeBytes converts the configured megabyte cap to bytes.
func (u *Upload) MaxFileSizeBytes() int64 {
	return u.MaxFileSizeMB * 1024 * 1024
}
