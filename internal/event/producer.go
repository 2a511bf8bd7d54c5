package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/BookReviewGo/internal/domain"
	pkgkafka "github.com/utafrali/BookReviewGo/pkg/kafka"
	"github.com/utafrali/BookReviewGo/pkg/logger"
)

// Kafka topics for book and review events.
var (
	TopicReviewSubmitted = pkgkafka.Topic("review", "submitted")
	TopicReviewAmended   = pkgkafka.Topic("review", "amended")
	TopicReviewRetracted = pkgkafka.Topic("review", "retracted")

	TopicBookCreated          = pkgkafka.Topic("book", "created")
	TopicBookUpdated          = pkgkafka.Topic("book", "updated")
	TopicBookDeleted          = pkgkafka.Topic("book", "deleted")
	TopicBookRatingRecomputed = pkgkafka.Topic("book", "rating_recomputed")
)

const (
	AggregateTypeBook   = "book"
	AggregateTypeReview = "review"

	SourceBookReviewService = "bookreview-service"
)

// ReviewData is the payload of every review event.
type ReviewData struct {
	ID     string `json:"id"`
	BookID string `json:"book_id"`
	UserID string `json:"user_id"`
	Rating int    `json:"rating"`

	// PreviousRating is set on amended events when the rating changed.
	PreviousRating *int `json:"previous_rating,omitempty"`
}

// BookData is the payload of book.created and book.updated events.
type BookData struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Genre   string `json:"genre"`
	Year    int    `json:"year"`
	AddedBy string `json:"added_by"`
}

// BookDeletedData is the payload of a book.deleted event.
type BookDeletedData struct {
	ID string `json:"id"`
}

// RatingRecomputedData is the payload of a book.rating_recomputed event.
type RatingRecomputedData struct {
	BookID        string  `json:"book_id"`
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`
}

// Publisher sends an event envelope to a topic. *pkgkafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes book and review events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// NewNoopProducer returns a producer that drops every event. It is used when
// Kafka is disabled.
func NewNoopProducer(logger *slog.Logger) *Producer {
	return NewProducer(noopPublisher{}, logger)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

// PublishReviewSubmitted publishes a review.submitted event keyed by book.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewSubmitted, r.BookID, AggregateTypeReview, reviewData(r, nil))
}

// PublishReviewAmended publishes a review.amended event. previousRating is nil
// when only the text changed.
func (p *Producer) PublishReviewAmended(ctx context.Context, r *domain.Review, previousRating *int) error {
	return p.publish(ctx, TopicReviewAmended, r.BookID, AggregateTypeReview, reviewData(r, previousRating))
}

// PublishReviewRetracted publishes a review.retracted event.
func (p *Producer) PublishReviewRetracted(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewRetracted, r.BookID, AggregateTypeReview, reviewData(r, nil))
}

// PublishBookCreated publishes a book.created event.
func (p *Producer) PublishBookCreated(ctx context.Context, b *domain.Book) error {
	return p.publish(ctx, TopicBookCreated, b.ID, AggregateTypeBook, bookData(b))
}

// PublishBookUpdated publishes a book.updated event.
func (p *Producer) PublishBookUpdated(ctx context.Context, b *domain.Book) error {
	return p.publish(ctx, TopicBookUpdated, b.ID, AggregateTypeBook, bookData(b))
}

// PublishBookDeleted publishes a book.deleted event.
func (p *Producer) PublishBookDeleted(ctx context.Context, bookID string) error {
	return p.publish(ctx, TopicBookDeleted, bookID, AggregateTypeBook, BookDeletedData{ID: bookID})
}

// PublishRatingRecomputed publishes a book.rating_recomputed event.
func (p *Producer) PublishRatingRecomputed(ctx context.Context, bookID string, avg float64, count int) error {
	return p.publish(ctx, TopicBookRatingRecomputed, bookID, AggregateTypeBook, RatingRecomputedData{
		BookID:        bookID,
		AverageRating: avg,
		ReviewCount:   count,
	})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceBookReviewService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if userID := logger.UserIDFromContext(ctx); userID != "" {
		evt.WithMetadata("actor_id", userID)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "domain event published",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
		slog.String("event_id", evt.EventID),
	)
	return nil
}

func reviewData(r *domain.Review, previousRating *int) ReviewData {
	return ReviewData{
		ID:             r.ID,
		BookID:         r.BookID,
		UserID:         r.UserID,
		Rating:         r.Rating,
		PreviousRating: previousRating,
	}
}

func bookData(b *domain.Book) BookData {
	return BookData{
		ID:      b.ID,
		Title:   b.Title,
		Author:  b.Author,
		Genre:   b.Genre,
		Year:    b.Year,
		AddedBy: b.AddedBy,
	}
}
