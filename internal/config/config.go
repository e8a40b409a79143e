package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"dataplug"`
		Env  string `envconfig:"APP_ENV" default:"dev"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"dataplug"`
		Migrate  bool   `envconfig:"DB_MIGRATE" default:"false"`

		MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
		MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
		ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	// Gateway selects which payment gateway variant handles initiation.
	// Credentials are injected here rather than living as constants next to
	// the client code.
	Gateway struct {
		Provider string        `envconfig:"GATEWAY_PROVIDER" default:"moolre"`
		Timeout  time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
	}

	Moolre struct {
		BaseURL       string `envconfig:"MOOLRE_BASE_URL" default:"https://api.moolre.com"`
		Username      string `envconfig:"MOOLRE_API_USER"`
		PublicKey     string `envconfig:"MOOLRE_API_PUBKEY"`
		AccountNumber string `envconfig:"MOOLRE_ACCOUNT_NUMBER"`
		CallbackURL   string `envconfig:"MOOLRE_CALLBACK_URL"`
		RedirectURL   string `envconfig:"MOOLRE_REDIRECT_URL" default:"https://www.rickysdata.xyz"`
	}

	Teller struct {
		BaseURL    string `envconfig:"TELLER_BASE_URL" default:"https://prod.theteller.net"`
		MerchantID string `envconfig:"TELLER_MERCHANT_ID"`
		APIKey     string `envconfig:"TELLER_API_KEY"`
	}

	Admin struct {
		JWTSecret string        `envconfig:"ADMIN_JWT_SECRET" default:"changeme-secret"`
		JWTIssuer string        `envconfig:"ADMIN_JWT_ISSUER" default:"dataplug"`
		TokenTTL  time.Duration `envconfig:"ADMIN_TOKEN_TTL" default:"12h"`
	}

	Worker struct {
		Count      int `envconfig:"WORKER_COUNT" default:"4"`
		MaxRetries int `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
