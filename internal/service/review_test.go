package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/BookReviewGo/internal/domain"
	"github.com/utafrali/BookReviewGo/internal/event"
	"github.com/utafrali/BookReviewGo/internal/repository"
	"github.com/utafrali/BookReviewGo/internal/repository/memory"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

func errCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected *AppError, got %v", err)
	return appErr.Code
}

// countingRecomputer counts how often the review service triggers a
// recomputation before delegating to the real aggregator.
type countingRecomputer struct {
	inner Recomputer
	calls atomic.Int64
}

func (c *countingRecomputer) Recompute(ctx context.Context, bookID string) {
	c.calls.Add(1)
	if c.inner != nil {
		c.inner.Recompute(ctx, bookID)
	}
}

type reviewFixture struct {
	store      *memory.Store
	aggregator *RatingAggregator
	counter    *countingRecomputer
	svc        *ReviewService
	logs       *bytes.Buffer
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(&syncWriter{w: logs}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store := memory.NewStore()
	producer := event.NewNoopProducer(logger)
	agg := NewRatingAggregator(store.Books(), store.Reviews(), nil, producer, logger)
	counter := &countingRecomputer{inner: agg}

	return &reviewFixture{
		store:      store,
		aggregator: agg,
		counter:    counter,
		svc:        NewReviewService(store.Reviews(), store.Books(), counter, producer, logger),
		logs:       logs,
	}
}

func (f *reviewFixture) seedBook(t *testing.T, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.store.Books().Create(context.Background(), &domain.Book{
		ID:          id,
		Title:       "The Left Hand of Darkness",
		Author:      "Ursula K. Le Guin",
		Description: "An envoy on a winter planet.",
		Genre:       "Science Fiction",
		Year:        1969,
		AddedBy:     "owner",
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func (f *reviewFixture) average(t *testing.T, bookID string) float64 {
	t.Helper()
	b, err := f.store.Books().GetByID(context.Background(), bookID)
	require.NoError(t, err)
	return b.AverageRating
}

func (f *reviewFixture) submit(t *testing.T, bookID, userID string, rating int) *domain.Review {
	t.Helper()
	r, err := f.svc.Submit(context.Background(), &SubmitReviewInput{
		BookID:     bookID,
		UserID:     userID,
		Rating:     rating,
		ReviewText: "thoughts from " + userID,
	})
	require.NoError(t, err)
	return r
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// --- Tests ---

func TestReviewService_TwoReaderScenario(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	f.seedBook(t, "b1")

	assert.Equal(t, 0.0, f.average(t, "b1"))

	u := f.submit(t, "b1", "u", 4)
	assert.Equal(t, 4.0, f.average(t, "b1"))

	v := f.submit(t, "b1", "v", 2)
	assert.Equal(t, 3.0, f.average(t, "b1"))

	_, err := f.svc.Amend(ctx, u.ID, "u", &AmendReviewInput{Rating: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 3.5, f.average(t, "b1"))

	require.NoError(t, f.svc.Retract(ctx, v.ID, "v"))
	assert.Equal(t, 5.0, f.average(t, "b1"))

	_, err = f.svc.Submit(ctx, &SubmitReviewInput{BookID: "b1", UserID: "u", Rating: 1, ReviewText: "again"})
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_REVIEW", errCode(t, err))
	assert.ErrorIs(t, err, domain.ErrDuplicateReview)
	assert.Equal(t, 5.0, f.average(t, "b1"))

	assert.Equal(t, int64(4), f.counter.calls.Load())
}

func TestReviewService_Submit_Validation(t *testing.T) {
	f := newReviewFixture(t)
	f.seedBook(t, "b1")

	tests := []struct {
		name   string
		input  SubmitReviewInput
		status int
	}{
		{"rating zero", SubmitReviewInput{BookID: "b1", UserID: "u", Rating: 0, ReviewText: "ok"}, 400},
		{"rating six", SubmitReviewInput{BookID: "b1", UserID: "u", Rating: 6, ReviewText: "ok"}, 400},
		{"blank text", SubmitReviewInput{BookID: "b1", UserID: "u", Rating: 3, ReviewText: "   "}, 400},
		{"unknown book", SubmitReviewInput{BookID: "missing", UserID: "u", Rating: 3, ReviewText: "ok"}, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), &tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.status, apperrors.HTTPStatus(err))
		})
	}

	assert.Zero(t, f.counter.calls.Load())
	ratings, err := f.store.Reviews().RatingsForBook(context.Background(), "b1")
	require.NoError(t, err)
	assert.Empty(t, ratings)
}

func TestReviewService_Submit_TrimsText(t *testing.T) {
	f := newReviewFixture(t)
	f.seedBook(t, "b1")

	r, err := f.svc.Submit(context.Background(), &SubmitReviewInput{
		BookID: "b1", UserID: "u", Rating: 3, ReviewText: "  fine book \n",
	})
	require.NoError(t, err)
	assert.Equal(t, "fine book", r.ReviewText)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())
}

func TestReviewService_ConcurrentSubmitSamePair(t *testing.T) {
	f := newReviewFixture(t)
	f.seedBook(t, "b1")

	const workers = 32
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		dupes     atomic.Int64
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.svc.Submit(context.Background(), &SubmitReviewInput{
				BookID: "b1", UserID: "u", Rating: i%5 + 1, ReviewText: "race",
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrDuplicateReview):
				dupes.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), succeeded.Load())
	assert.Equal(t, int64(workers-1), dupes.Load())
	assert.Equal(t, int64(1), f.counter.calls.Load())

	ratings, err := f.store.Reviews().RatingsForBook(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	assert.Equal(t, float64(ratings[0]), f.average(t, "b1"))
}

func TestReviewService_ConcurrentSubmitDistinctUsers(t *testing.T) {
	f := newReviewFixture(t)
	f.seedBook(t, "b1")

	const users = 50
	var wg sync.WaitGroup
	sum := 0
	for i := 0; i < users; i++ {
		rating := i%5 + 1
		sum += rating
		wg.Add(1)
		go func(i, rating int) {
			defer wg.Done()
			_, err := f.svc.Submit(context.Background(), &SubmitReviewInput{
				BookID: "b1", UserID: fmt.Sprintf("user-%d", i), Rating: rating, ReviewText: "concurrent",
			})
			assert.NoError(t, err)
		}(i, rating)
	}
	wg.Wait()

	assert.InDelta(t, float64(sum)/users, f.average(t, "b1"), 1e-9)
	assert.Equal(t, int64(users), f.counter.calls.Load())
}

func TestReviewService_AverageMatchesLiveReviews(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	f.seedBook(t, "b1")
	f.seedBook(t, "b2")

	rng := rand.New(rand.NewSource(7))
	live := map[string]*domain.Review{}
	books := []string{"b1", "b2"}

	for step := 0; step < 300; step++ {
		bookID := books[rng.Intn(len(books))]
		userID := fmt.Sprintf("u%d", rng.Intn(6))
		key := bookID + "/" + userID
		existing := live[key]

		switch {
		case existing == nil:
			r, err := f.svc.Submit(ctx, &SubmitReviewInput{
				BookID: bookID, UserID: userID, Rating: rng.Intn(5) + 1, ReviewText: "step",
			})
			require.NoError(t, err)
			live[key] = r
		case rng.Intn(2) == 0:
			r, err := f.svc.Amend(ctx, existing.ID, userID, &AmendReviewInput{Rating: intPtr(rng.Intn(5) + 1)})
			require.NoError(t, err)
			live[key] = r
		default:
			require.NoError(t, f.svc.Retract(ctx, existing.ID, userID))
			delete(live, key)
		}

		for _, b := range books {
			ratings, err := f.store.Reviews().RatingsForBook(ctx, b)
			require.NoError(t, err)
			require.Equal(t, domain.MeanRating(ratings), f.average(t, b), "step %d book %s", step, b)
		}
	}
}

func TestReviewService_Amend(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	f.seedBook(t, "b1")
	r := f.submit(t, "b1", "u", 2)
	before := f.counter.calls.Load()

	t.Run("text only does not recompute", func(t *testing.T) {
		got, err := f.svc.Amend(ctx, r.ID, "u", &AmendReviewInput{ReviewText: strPtr(" better on reread ")})
		require.NoError(t, err)
		assert.Equal(t, "better on reread", got.ReviewText)
		assert.Equal(t, 2, got.Rating)
		assert.Equal(t, before, f.counter.calls.Load())
	})

	t.Run("same rating is a no-op", func(t *testing.T) {
		got, err := f.svc.Amend(ctx, r.ID, "u", &AmendReviewInput{Rating: intPtr(2)})
		require.NoError(t, err)
		assert.Equal(t, 2, got.Rating)
		assert.Equal(t, before, f.counter.calls.Load())
	})

	t.Run("invalid rating rejected", func(t *testing.T) {
		for _, rating := range []int{0, 6} {
			_, err := f.svc.Amend(ctx, r.ID, "u", &AmendReviewInput{Rating: intPtr(rating)})
			require.Error(t, err)
			assert.Equal(t, "VALIDATION_ERROR", errCode(t, err))
		}
		_, err := f.svc.Amend(ctx, r.ID, "u", &AmendReviewInput{ReviewText: strPtr("")})
		assert.Equal(t, "VALIDATION_ERROR", errCode(t, err))

		stored, err := f.store.Reviews().GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.Rating)
		assert.Equal(t, before, f.counter.calls.Load())
	})

	t.Run("missing review", func(t *testing.T) {
		_, err := f.svc.Amend(ctx, "nope", "u", &AmendReviewInput{Rating: intPtr(3)})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("rating change recomputes once", func(t *testing.T) {
		got, err := f.svc.Amend(ctx, r.ID, "u", &AmendReviewInput{Rating: intPtr(5)})
		require.NoError(t, err)
		assert.Equal(t, 5, got.Rating)
		assert.Equal(t, before+1, f.counter.calls.Load())
		assert.Equal(t, 5.0, f.average(t, "b1"))
	})
}

func TestReviewService_NonAuthor(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	f.seedBook(t, "b1")
	r := f.submit(t, "b1", "u", 4)
	before := f.counter.calls.Load()

	_, err := f.svc.Amend(ctx, r.ID, "intruder", &AmendReviewInput{Rating: intPtr(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	err = f.svc.Retract(ctx, r.ID, "intruder")
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", errCode(t, err))

	stored, err := f.store.Reviews().GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Rating)
	assert.Equal(t, 4.0, f.average(t, "b1"))
	assert.Equal(t, before, f.counter.calls.Load())

	err = f.svc.Retract(ctx, "nope", "u")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, before, f.counter.calls.Load())
}

func TestReviewService_RetractFreesPair(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	f.seedBook(t, "b1")

	r := f.submit(t, "b1", "u", 1)
	require.NoError(t, f.svc.Retract(ctx, r.ID, "u"))
	assert.Equal(t, 0.0, f.average(t, "b1"))

	again := f.submit(t, "b1", "u", 3)
	assert.NotEqual(t, r.ID, again.ID)
	assert.Equal(t, 3.0, f.average(t, "b1"))
}

func TestReviewService_OrphanedRatingIsLoggedNotReturned(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	f.seedBook(t, "b1")
	r := f.submit(t, "b1", "u", 4)

	// Remove the book behind the review core's back.
	require.NoError(t, f.store.Books().Delete(ctx, "b1"))

	orphanedBefore := testutil.ToFloat64(ratingRecomputationsTotal.WithLabelValues(outcomeOrphaned))

	got, err := f.svc.Amend(ctx, r.ID, "u", &AmendReviewInput{Rating: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Rating)

	stored, err := f.store.Reviews().GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Rating)

	assert.Contains(t, f.logs.String(), "orphaned rating")
	assert.Contains(t, f.logs.String(), `"level":"WARN"`)
	assert.Equal(t, orphanedBefore+1, testutil.ToFloat64(ratingRecomputationsTotal.WithLabelValues(outcomeOrphaned)))

	require.NoError(t, f.svc.Retract(ctx, r.ID, "u"))
}

func TestRatingAggregator_Idempotent(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	f.seedBook(t, "b1")
	f.submit(t, "b1", "u", 5)
	f.submit(t, "b1", "v", 2)
	f.submit(t, "b1", "w", 2)

	first := f.average(t, "b1")
	f.aggregator.Recompute(ctx, "b1")
	f.aggregator.Recompute(ctx, "b1")
	assert.Equal(t, first, f.average(t, "b1"))
	assert.Equal(t, 3.0, first)
}

// lockingBooks stands in for a store that recomputes the average itself.
type lockingBooks struct {
	repository.BookRepository
	calls []string
	avg   float64
	count int
	err   error
}

func (b *lockingBooks) RecomputeAverageRating(_ context.Context, bookID string) (float64, int, error) {
	b.calls = append(b.calls, bookID)
	return b.avg, b.count, b.err
}

func TestRatingAggregator_PrefersStoreRecompute(t *testing.T) {
	store := memory.NewStore()
	logger := newTestLogger()
	ctx := context.Background()
	cache := newFakeBookCache()
	books := &lockingBooks{BookRepository: store.Books(), avg: 4.5, count: 2}

	agg := NewRatingAggregator(books, store.Reviews(), cache, event.NewNoopProducer(logger), logger)
	agg.Recompute(ctx, "b1")

	assert.Equal(t, []string{"b1"}, books.calls)
	assert.Equal(t, []string{"b1"}, cache.invalidations)

	books.err = apperrors.NotFound("book", "b2")
	agg.Recompute(ctx, "b2")
	assert.Equal(t, []string{"b1", "b2"}, books.calls)
	assert.Equal(t, []string{"b1"}, cache.invalidations, "orphaned recompute leaves the cache alone")
}

func TestRatingAggregator_NoRounding(t *testing.T) {
	f := newReviewFixture(t)
	f.seedBook(t, "b1")
	f.submit(t, "b1", "u", 5)
	f.submit(t, "b1", "v", 4)
	f.submit(t, "b1", "w", 4)

	assert.Equal(t, 13.0/3.0, f.average(t, "b1"))
}

func TestRatingAggregator_RunsAfterCancellation(t *testing.T) {
	f := newReviewFixture(t)
	f.seedBook(t, "b1")
	require.NoError(t, f.store.Reviews().Create(context.Background(), &domain.Review{
		ID: "r1", BookID: "b1", UserID: "u", Rating: 3, ReviewText: "x",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.aggregator.Recompute(ctx, "b1")
	assert.Equal(t, 3.0, f.average(t, "b1"))
}

func TestReviewService_Listings(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	f.seedBook(t, "b1")
	require.NoError(t, f.store.Users().Create(ctx, &domain.User{ID: "u", Name: "Ada", Email: "ada@example.com"}))

	f.submit(t, "b1", "u", 5)
	f.submit(t, "b1", "v", 3)

	list, err := f.svc.ListByBook(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, list.Reviews, 2)
	assert.Equal(t, 2, list.Summary.TotalCount)
	assert.Equal(t, 4.0, list.Summary.AverageRating)
	assert.Equal(t, 1, list.Summary.Distribution[5])
	assert.Equal(t, 1, list.Summary.Distribution[3])
	assert.Equal(t, 0, list.Summary.Distribution[1])

	_, err = f.svc.ListByBook(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	mine, err := f.svc.ListByUser(ctx, "u")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "The Left Hand of Darkness", mine[0].BookTitle)
}

// --- Mock Repositories ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepository) GetByBookAndUser(ctx context.Context, bookID, userID string) (*domain.Review, error) {
	args := m.Called(ctx, bookID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepository) Update(ctx context.Context, review *domain.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockReviewRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockReviewRepository) ListByBook(ctx context.Context, bookID string) ([]domain.ReviewWithAuthor, error) {
	args := m.Called(ctx, bookID)
	return args.Get(0).([]domain.ReviewWithAuthor), args.Error(1)
}

func (m *mockReviewRepository) ListByUser(ctx context.Context, userID string) ([]domain.ReviewWithBook, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.ReviewWithBook), args.Error(1)
}

func (m *mockReviewRepository) RatingsForBook(ctx context.Context, bookID string) ([]int, error) {
	args := m.Called(ctx, bookID)
	return args.Get(0).([]int), args.Error(1)
}

func TestReviewService_Submit_DuplicateCaughtAtInsert(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	require.NoError(t, store.Books().Create(context.Background(), &domain.Book{ID: "b1", Title: "T", CreatedAt: now}))

	repo := new(mockReviewRepository)
	repo.On("GetByBookAndUser", mock.Anything, "b1", "u").Return(nil, apperrors.NotFound("review", "b1/u"))
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Review")).
		Return(fmt.Errorf("insert review: %w", domain.ErrDuplicateReview))

	counter := &countingRecomputer{}
	logger := newTestLogger()
	svc := NewReviewService(repo, store.Books(), counter, event.NewNoopProducer(logger), logger)

	_, err := svc.Submit(context.Background(), &SubmitReviewInput{BookID: "b1", UserID: "u", Rating: 4, ReviewText: "late"})
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_REVIEW", errCode(t, err))
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
	assert.Zero(t, counter.calls.Load())
	repo.AssertExpectations(t)
}

func TestReviewService_Submit_StoreFailure(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Books().Create(context.Background(), &domain.Book{ID: "b1", Title: "T"}))

	repo := new(mockReviewRepository)
	repo.On("GetByBookAndUser", mock.Anything, "b1", "u").Return(nil, errors.New("connection reset"))

	counter := &countingRecomputer{}
	logger := newTestLogger()
	svc := NewReviewService(repo, store.Books(), counter, event.NewNoopProducer(logger), logger)

	_, err := svc.Submit(context.Background(), &SubmitReviewInput{BookID: "b1", UserID: "u", Rating: 4, ReviewText: "x"})
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
	assert.Zero(t, counter.calls.Load())
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRatingAggregator_ReadFailureIsSwallowed(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Books().Create(context.Background(), &domain.Book{ID: "b1", AverageRating: 2.5}))

	repo := new(mockReviewRepository)
	repo.On("RatingsForBook", mock.Anything, "b1").Return([]int(nil), errors.New("timeout"))

	logger := newTestLogger()
	agg := NewRatingAggregator(store.Books(), repo, nil, event.NewNoopProducer(logger), logger)

	errorsBefore := testutil.ToFloat64(ratingRecomputationsTotal.WithLabelValues(outcomeError))
	agg.Recompute(context.Background(), "b1")

	b, err := store.Books().GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 2.5, b.AverageRating)
	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(ratingRecomputationsTotal.WithLabelValues(outcomeError)))
}
