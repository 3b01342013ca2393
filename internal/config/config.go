package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio y del cliente de sincronización.
type Config struct {
	HTTPPort            string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL         string `env:"DATABASE_URL"`
	JWTSecret           string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"60"`
	RedisAddr           string `env:"REDIS_ADDR"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	RedisDB             int    `env:"REDIS_DB" envDefault:"0"`

	// Lado cliente: destino del Fetch Gateway y cadencia del polling.
	ChatAPIBaseURL string `env:"CHAT_API_BASE_URL" envDefault:"http://localhost:8080"`
	ChatAPIToken   string `env:"CHAT_API_TOKEN"`
	PollIntervalMS int    `env:"POLL_INTERVAL_MS" envDefault:"2000"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
