package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sneaker-review-service/internal/domain"
)

// Helper function to create a mock DB and PostgresStore for testing
func newMockDBAndStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Failed to create sqlmock")

	store := NewPostgresStore(db)
	require.NotNil(t, store, "Store should not be nil")

	return db, mock, store
}

// PtrTo returns a pointer to v (useful for optional fields in domain structs).
func PtrTo[T any](v T) *T {
	return &v
}

var sneakerRowColumns = []string{"id", "name", "brand", "primary_image", "category_id", "name"}
var reviewRowColumns = []string{"id", "sneaker_id", "author_id", "username", "title", "body", "rating", "published_at"}

func TestPostgresStore_CreateCategory(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`INSERT INTO catalog.categories (name) VALUES ($1) RETURNING id, name;`)
	mock.ExpectQuery(query).
		WithArgs("Corrida").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(3), "Corrida"))

	created, err := store.CreateCategory(context.Background(), &domain.Category{Name: "Corrida"})

	require.NoError(t, err)
	assert.Equal(t, &domain.Category{ID: 3, Name: "Corrida"}, created)
	require.NoError(t, mock.ExpectationsWereMet(), "SQLmock expectations were not met")
}

func TestPostgresStore_GetCategoryByID_Found(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT id, name FROM catalog.categories WHERE id = $1;`)
	mock.ExpectQuery(query).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Casual"))

	category, err := store.GetCategoryByID(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "Casual", category.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCategoryByID_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT id, name FROM catalog.categories WHERE id = $1;`)
	mock.ExpectQuery(query).WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)

	category, err := store.GetCategoryByID(context.Background(), 99)

	assert.Nil(t, category)
	assert.True(t, errors.Is(err, ErrCategoryNotFound), "Error should be ErrCategoryNotFound")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCategories(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT id, name FROM catalog.categories ORDER BY name ASC, id ASC;`)
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(2), "Basquete").
		AddRow(int64(1), "Corrida"))

	categories, err := store.ListCategories(context.Background())

	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Basquete", categories[0].Name)
	assert.Equal(t, "Corrida", categories[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteCategory(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM catalog.categories WHERE id = $1;`)).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.DeleteCategory(context.Background(), 1))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM catalog.categories WHERE id = $1;`)).
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.DeleteCategory(context.Background(), 42)
		assert.True(t, errors.Is(err, ErrCategoryNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_CreateSneaker(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		toCreate := &domain.Sneaker{Name: "Air Max 90", Brand: "Nike", PrimaryImage: PtrTo("tenis_imagens/am90.jpg"), CategoryID: PtrTo(int64(1))}

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO catalog.sneakers (name, brand, primary_image, category_id)`)).
			WithArgs("Air Max 90", "Nike", "tenis_imagens/am90.jpg", int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
		mock.ExpectCommit()

		created, err := store.CreateSneaker(context.Background(), toCreate)

		require.NoError(t, err)
		assert.Equal(t, int64(7), created.ID)
		assert.Equal(t, "Nike Air Max 90", created.DisplayName())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownCategory", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO catalog.sneakers`)).
			WithArgs("Gel", "Asics", nil, int64(404)).
			WillReturnError(&pq.Error{Code: "23503", Constraint: "sneakers_category_id_fkey"})
		mock.ExpectRollback()

		created, err := store.CreateSneaker(context.Background(), &domain.Sneaker{Name: "Gel", Brand: "Asics", CategoryID: PtrTo(int64(404))})

		assert.Nil(t, created)
		assert.True(t, errors.Is(err, ErrCategoryNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_GetSneakerByID(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`FROM catalog.sneakers s LEFT JOIN catalog.categories c ON c.id = s.category_id WHERE s.id = $1;`)

	mock.ExpectQuery(query).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(sneakerRowColumns).AddRow(int64(7), "Air Max 90", "Nike", nil, int64(1), "Corrida"))
	mock.ExpectQuery(query).WithArgs(int64(8)).WillReturnError(sql.ErrNoRows)

	sneaker, err := store.GetSneakerByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, sneaker.PrimaryImage)
	require.NotNil(t, sneaker.CategoryName)
	assert.Equal(t, "Corrida", *sneaker.CategoryName)

	_, err = store.GetSneakerByID(context.Background(), 8)
	assert.True(t, errors.Is(err, ErrSneakerNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSneakers(t *testing.T) {
	t.Run("SearchNameOrBrand", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM catalog.sneakers s WHERE (s.name ILIKE $1 OR s.brand ILIKE $1)`)
		dataQuery := regexp.QuoteMeta(`WHERE (s.name ILIKE $1 OR s.brand ILIKE $1) ORDER BY s.id ASC LIMIT $2 OFFSET $3`)

		mock.ExpectQuery(countQuery).WithArgs("%air%").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery(dataQuery).WithArgs("%air%", 5, 0).
			WillReturnRows(sqlmock.NewRows(sneakerRowColumns).
				AddRow(int64(1), "Air Force 1", "Nike", nil, nil, nil).
				AddRow(int64(4), "Jordan", "Air Jordan", nil, nil, nil))

		sneakers, total, err := store.ListSneakers(context.Background(), ListSneakersParams{Limit: 5, Offset: 0, SearchQuery: PtrTo("air")})

		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, sneakers, 2)
		assert.Equal(t, int64(1), sneakers[0].ID)
		assert.Equal(t, int64(4), sneakers[1].ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CategoryFilterAndEscaping", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM catalog.sneakers s WHERE (s.name ILIKE $1 OR s.brand ILIKE $1) AND s.category_id = $2`)
		mock.ExpectQuery(countQuery).WithArgs(`%50\%\_off%`, int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		sneakers, total, err := store.ListSneakers(context.Background(), ListSneakersParams{
			Limit: 5, SearchQuery: PtrTo("50%_off"), CategoryID: PtrTo(int64(3)),
		})

		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, sneakers)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoFilters", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM catalog.sneakers s`)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))
		mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY s.id ASC LIMIT $1 OFFSET $2`)).WithArgs(5, 5).
			WillReturnRows(sqlmock.NewRows(sneakerRowColumns).AddRow(int64(6), "Classic", "Reebok", nil, nil, nil))

		sneakers, total, err := store.ListSneakers(context.Background(), ListSneakersParams{Limit: 5, Offset: 5})

		require.NoError(t, err)
		assert.Equal(t, 6, total)
		require.Len(t, sneakers, 1)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_CreateReview(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	review := &domain.Review{
		SneakerID:   7,
		Author:      domain.Author{ID: 1, Username: "alice"},
		Title:       "Confortável",
		Body:        "Uso todo dia.",
		Rating:      4,
		PublishedAt: published,
	}
	insert := regexp.QuoteMeta(`INSERT INTO catalog.reviews (sneaker_id, author_id, title, body, rating, published_at)`)

	t.Run("Success", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(insert).
			WithArgs(int64(7), int64(1), "Confortável", "Uso todo dia.", 4, published).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
		mock.ExpectCommit()

		created, err := store.CreateReview(context.Background(), review)

		require.NoError(t, err)
		assert.Equal(t, int64(11), created.ID)
		assert.Equal(t, "alice", created.Author.Username)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SneakerGone", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(insert).
			WillReturnError(&pq.Error{Code: "23503", Constraint: "reviews_sneaker_id_fkey"})
		mock.ExpectRollback()

		_, err := store.CreateReview(context.Background(), review)
		assert.True(t, errors.Is(err, ErrSneakerNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AuthorGone", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(insert).
			WillReturnError(&pq.Error{Code: "23503", Constraint: "reviews_author_id_fkey"})
		mock.ExpectRollback()

		_, err := store.CreateReview(context.Background(), review)
		assert.True(t, errors.Is(err, ErrUserNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_ListReviewsBySneaker(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	newer := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	query := regexp.QuoteMeta(`WHERE r.sneaker_id = $1 ORDER BY r.published_at DESC, r.id DESC;`)
	mock.ExpectQuery(query).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(reviewRowColumns).
			AddRow(int64(2), int64(7), int64(2), "bob", "Bom", "Gostei", 5, newer).
			AddRow(int64(1), int64(7), int64(1), "alice", "Ok", "Mais ou menos", 3, older))

	reviews, err := store.ListReviewsBySneaker(context.Background(), 7)

	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "bob", reviews[0].Author.Username)
	assert.True(t, reviews[0].PublishedAt.After(reviews[1].PublishedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateReview(t *testing.T) {
	query := regexp.QuoteMeta(`UPDATE catalog.reviews r SET title = $1, body = $2, rating = $3 FROM auth.users u WHERE r.id = $4 AND u.id = r.author_id`)

	t.Run("Success", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		published := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectBegin()
		mock.ExpectQuery(query).WithArgs("Novo", "Texto novo", 2, int64(11)).
			WillReturnRows(sqlmock.NewRows(reviewRowColumns).
				AddRow(int64(11), int64(7), int64(1), "alice", "Novo", "Texto novo", 2, published))
		mock.ExpectCommit()

		updated, err := store.UpdateReview(context.Background(), &domain.Review{ID: 11, Title: "Novo", Body: "Texto novo", Rating: 2})

		require.NoError(t, err)
		assert.Equal(t, int64(7), updated.SneakerID)
		assert.Equal(t, published, updated.PublishedAt)
		assert.Equal(t, 2, updated.Rating)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(query).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := store.UpdateReview(context.Background(), &domain.Review{ID: 99, Title: "x", Body: "y", Rating: 1})
		assert.True(t, errors.Is(err, ErrReviewNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_DeleteReview_CommitFailure(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM catalog.reviews WHERE id = $1;`)).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	err := store.DeleteReview(context.Background(), 11)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateUser(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO auth.users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, date_joined;`)

	t.Run("Success", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		joined := time.Now().Truncate(time.Millisecond)
		mock.ExpectBegin()
		mock.ExpectQuery(insert).WithArgs("alice", "hash").
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "date_joined"}).
				AddRow(int64(1), "alice", "hash", joined))
		mock.ExpectCommit()

		user, err := store.CreateUser(context.Background(), &domain.User{Username: "alice", PasswordHash: "hash"})

		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		assert.WithinDuration(t, joined, user.DateJoined, time.Second)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		db, mock, store := newMockDBAndStore(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(insert).WithArgs("alice", "hash").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})
		mock.ExpectRollback()

		user, err := store.CreateUser(context.Background(), &domain.User{Username: "alice", PasswordHash: "hash"})

		assert.Nil(t, user)
		assert.True(t, errors.Is(err, ErrUsernameExists), "Error should be ErrUsernameExists")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_GetUserByUsername_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM auth.users WHERE username = $1;`)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	user, err := store.GetUserByUsername(context.Background(), "ghost")

	assert.Nil(t, user)
	assert.True(t, errors.Is(err, ErrUserNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteUser(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM auth.users WHERE id = $1;`)).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.DeleteUser(context.Background(), 2))
	require.NoError(t, mock.ExpectationsWereMet())
}
