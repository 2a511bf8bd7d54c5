// Package memory holds map-backed repositories for local runs and tests.
// Every repository from one Store shares a single lock, so a uniqueness check
// and the insert it guards are one atomic step.
package memory

import (
	"sync"

	"github.com/utafrali/BookReviewGo/internal/domain"
)

// Store is the shared state behind the memory repositories.
type Store struct {
	mu sync.RWMutex

	books   map[string]domain.Book
	reviews map[string]domain.Review
	users   map[string]domain.User

	// reviewByPair indexes review ids by book and user.
	reviewByPair map[pairKey]string
	// userByEmail indexes user ids by lower-cased email.
	userByEmail map[string]string
}

type pairKey struct {
	bookID string
	userID string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		books:        make(map[string]domain.Book),
		reviews:      make(map[string]domain.Review),
		users:        make(map[string]domain.User),
		reviewByPair: make(map[pairKey]string),
		userByEmail:  make(map[string]string),
	}
}

// Books returns a BookRepository over s.
func (s *Store) Books() *BookRepository { return &BookRepository{s: s} }

// Reviews returns a ReviewRepository over s.
func (s *Store) Reviews() *ReviewRepository { return &ReviewRepository{s: s} }

// Users returns a UserRepository over s.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Ping always succeeds. It lets the store stand in for a database in the
// readiness checks.
func (s *Store) Ping() error { return nil }
