// Command seed fills a running book review service with readers, books and
// reviews through its HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/BookReviewGo/internal/seed"
	"github.com/utafrali/BookReviewGo/pkg/httpclient"
	"github.com/utafrali/BookReviewGo/pkg/logger"
)

func main() {
	cfg, err := seed.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("bookreview-seed", cfg.LogLevel)
	log.Info("seeding book review service",
		slog.String("api_url", cfg.APIURL),
		slog.Int("users", cfg.Users),
		slog.Int("books", cfg.Books),
		slog.Int("reviews_per_book", cfg.ReviewsPerBook),
	)

	client := httpclient.NewBreaker(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultBreakerConfig("bookreview"),
		log,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := seed.New(cfg, client, log).Run(ctx)
	if err != nil {
		attrs := []any{slog.String("error", err.Error())}
		if report != nil {
			attrs = append(attrs, slog.Any("partial", report))
		}
		log.Error("seeding failed", attrs...)
		os.Exit(1)
	}
}
