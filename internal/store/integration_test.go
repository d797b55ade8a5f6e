//go:build integration

package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"sneaker-review-service/internal/domain"
)

// setupPostgres starts a PostgreSQL container, applies the embedded migrations
// and returns a store over a fresh pool.
func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("sneakers"),
		postgres.WithUsername("sneakers"),
		postgres.WithPassword("sneakers"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrateDB, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	migrator, err := NewMigrator(migrateDB)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	version, dirty, ok, err := migrator.Version()
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
	require.NoError(t, migrator.Close())

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	s := NewPostgresStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIntegration_SchemaCascades(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	category, err := s.CreateCategory(ctx, &domain.Category{Name: "Corrida"})
	require.NoError(t, err)
	sneaker, err := s.CreateSneaker(ctx, &domain.Sneaker{Name: "Air Max", Brand: "Nike", CategoryID: &category.ID})
	require.NoError(t, err)
	alice, err := s.CreateUser(ctx, &domain.User{Username: "alice", PasswordHash: "x"})
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, &domain.User{Username: "bob", PasswordHash: "x"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, &domain.User{Username: "alice", PasswordHash: "y"})
	assert.True(t, errors.Is(err, ErrUsernameExists))

	aliceReview, err := s.CreateReview(ctx, &domain.Review{SneakerID: sneaker.ID, Author: domain.Author{ID: alice.ID}, Title: "a", Body: "a", Rating: 4})
	require.NoError(t, err)
	bobReview, err := s.CreateReview(ctx, &domain.Review{SneakerID: sneaker.ID, Author: domain.Author{ID: bob.ID}, Title: "b", Body: "b", Rating: 5})
	require.NoError(t, err)

	// Search is a literal, case-insensitive substring.
	found, total, err := s.ListSneakers(ctx, ListSneakersParams{Limit: 5, SearchQuery: PtrTo("AIR")})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, found, 1)
	_, total, err = s.ListSneakers(ctx, ListSneakersParams{Limit: 5, SearchQuery: PtrTo("%")})
	require.NoError(t, err)
	assert.Zero(t, total)

	// category -> sneaker.category_id set to NULL
	require.NoError(t, s.DeleteCategory(ctx, category.ID))
	reloaded, err := s.GetSneakerByID(ctx, sneaker.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.CategoryID)

	// user -> reviews removed
	require.NoError(t, s.DeleteUser(ctx, alice.ID))
	_, err = s.GetReviewByID(ctx, aliceReview.ID)
	assert.True(t, errors.Is(err, ErrReviewNotFound))

	// sneaker -> reviews removed
	require.NoError(t, s.DeleteSneaker(ctx, sneaker.ID))
	_, err = s.GetReviewByID(ctx, bobReview.ID)
	assert.True(t, errors.Is(err, ErrReviewNotFound))
}

func TestIntegration_RatingCheckConstraint(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	sneaker, err := s.CreateSneaker(ctx, &domain.Sneaker{Name: "Classic", Brand: "Reebok"})
	require.NoError(t, err)
	user, err := s.CreateUser(ctx, &domain.User{Username: "carol", PasswordHash: "x"})
	require.NoError(t, err)

	_, err = s.CreateReview(ctx, &domain.Review{SneakerID: sneaker.ID, Author: domain.Author{ID: user.ID}, Title: "t", Body: "b", Rating: 6})
	require.Error(t, err)
}
