package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env-default:"local"`
	Tokens     `yaml:"tokens"`
	Cookies    `yaml:"cookies"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	RabbitMQ   `yaml:"rabbitmq"`
	Media      `yaml:"media"`
	HTTPServer `yaml:"http_server"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Address  string `yaml:"address" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env-default:"0"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env-required:"true"`
	QueueName string `yaml:"queue_name" env-default:"vidtube.registrations"`
}

type Media struct {
	Endpoint  string `yaml:"endpoint" env-required:"true"`
	Region    string `yaml:"region" env-default:"us-east-1"`
	Bucket    string `yaml:"bucket" env-required:"true"`
	AccessKey string `yaml:"access_key" env:"MEDIA_ACCESS_KEY" env-required:"true"`
	SecretKey string `yaml:"secret_key" env:"MEDIA_SECRET_KEY" env-required:"true"`
}

type Tokens struct {
	AccessTokenSecret  string        `yaml:"access_token_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	RefreshTokenSecret string        `yaml:"refresh_token_secret" env:"REFRESH_TOKEN_SECRET" env-required:"true"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl" env-default:"15m"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl" env-default:"240h"`
}

type Cookies struct {
	Secure bool   `yaml:"secure" env-default:"true"`
	Domain string `yaml:"domain"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return &cfg
}
