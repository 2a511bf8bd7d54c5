package seed

import (
	"fmt"
	"net/url"

	pkgconfig "github.com/utafrali/BookReviewGo/pkg/config"
)

// Config holds the seeder settings.
type Config struct {
	APIURL         string `env:"SEED_API_URL" envDefault:"http://localhost:8080"`
	Users          int    `env:"SEED_USERS" envDefault:"5"`
	Books          int    `env:"SEED_BOOKS" envDefault:"10"`
	ReviewsPerBook int    `env:"SEED_REVIEWS_PER_BOOK" envDefault:"3"`
	Password       string `env:"SEED_PASSWORD" envDefault:"bookworm123"`
	RandomSeed     uint64 `env:"SEED_RANDOM_SEED" envDefault:"42"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads the seeder settings from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load seed config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid SEED_API_URL %q", c.APIURL)
	}
	if c.Users < 1 {
		return fmt.Errorf("SEED_USERS must be at least 1, got %d", c.Users)
	}
	if c.Books < 0 {
		return fmt.Errorf("SEED_BOOKS must not be negative, got %d", c.Books)
	}
	if c.ReviewsPerBook < 0 {
		return fmt.Errorf("SEED_REVIEWS_PER_BOOK must not be negative, got %d", c.ReviewsPerBook)
	}
	if len(c.Password) < 6 {
		return fmt.Errorf("SEED_PASSWORD must be at least 6 characters")
	}
	return nil
}
