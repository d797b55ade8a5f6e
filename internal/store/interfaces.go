package store

import (
	"context"

	"sneaker-review-service/internal/domain"
)

// CategoryStorer defines the database operations for categories.
// Categories are managed by administrators; end-user flows only read them.
type CategoryStorer interface {
	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error // Sneakers of the category keep existing with no category
}

// ListSneakersParams holds parameters for listing sneakers (pagination and filtering).
type ListSneakersParams struct {
	Limit       int
	Offset      int
	SearchQuery *string // Case-insensitive substring matched against name OR brand
	CategoryID  *int64  // Restricts the listing to one category
}

// SneakerStorer defines the database operations for sneakers.
type SneakerStorer interface {
	CreateSneaker(ctx context.Context, sneaker *domain.Sneaker) (*domain.Sneaker, error)
	GetSneakerByID(ctx context.Context, id int64) (*domain.Sneaker, error)
	ListSneakers(ctx context.Context, params ListSneakersParams) ([]domain.Sneaker, int, error) // Returns sneakers and total count
	DeleteSneaker(ctx context.Context, id int64) error                                         // Cascades to the sneaker's reviews
}

// ReviewStorer defines the database operations for reviews.
// Every write runs in its own transaction.
type ReviewStorer interface {
	CreateReview(ctx context.Context, review *domain.Review) (*domain.Review, error)
	GetReviewByID(ctx context.Context, id int64) (*domain.Review, error)
	ListReviewsBySneaker(ctx context.Context, sneakerID int64) ([]domain.Review, error) // Newest first
	UpdateReview(ctx context.Context, review *domain.Review) (*domain.Review, error)     // Title, body and rating only
	DeleteReview(ctx context.Context, id int64) error
}

// UserStorer defines the database operations for user accounts.
type UserStorer interface {
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	DeleteUser(ctx context.Context, id int64) error // Cascades to the user's reviews
}

// Store bundles every storer; both PostgresStore and MemoryStore implement it.
type Store interface {
	CategoryStorer
	SneakerStorer
	ReviewStorer
	UserStorer
}
