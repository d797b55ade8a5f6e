package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"sneaker-review-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrCategoryNotFound = errors.New("store: category not found")
	ErrSneakerNotFound  = errors.New("store: sneaker not found")
	ErrReviewNotFound   = errors.New("store: review not found")
	ErrUserNotFound     = errors.New("store: user not found")
	ErrUsernameExists   = errors.New("store: username already exists")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// withTx runs fn inside one transaction, rolling back when fn fails.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("store: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

func pqCode(err error) (pq.ErrorCode, string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, pqErr.Constraint
	}
	return "", ""
}

// likeEscaper makes user input match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// --- CategoryStorer Implementation ---

func (s *PostgresStore) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	query := `
		INSERT INTO catalog.categories (name)
		VALUES ($1)
		RETURNING id, name;
	`
	var created domain.Category
	if err := s.db.QueryRowContext(ctx, query, category.Name).Scan(&created.ID, &created.Name); err != nil {
		return nil, fmt.Errorf("store: CreateCategory failed to scan row: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error) {
	query := `
		SELECT id, name
		FROM catalog.categories
		WHERE id = $1;
	`
	var category domain.Category
	err := s.db.QueryRowContext(ctx, query, id).Scan(&category.ID, &category.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: GetCategoryByID failed to scan row: %w", err)
	}
	return &category, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	query := `
		SELECT id, name
		FROM catalog.categories
		ORDER BY name ASC, id ASC;
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: ListCategories failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("store: ListCategories failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListCategories iteration error: %w", err)
	}
	return categories, nil
}

// DeleteCategory removes a category. The schema's ON DELETE SET NULL detaches its sneakers.
func (s *PostgresStore) DeleteCategory(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return execDelete(ctx, tx, `DELETE FROM catalog.categories WHERE id = $1;`, id, ErrCategoryNotFound, "DeleteCategory")
	})
}

// --- SneakerStorer Implementation ---

const sneakerColumns = `s.id, s.name, s.brand, s.primary_image, s.category_id, c.name`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSneaker(row rowScanner, sn *domain.Sneaker) error {
	return row.Scan(&sn.ID, &sn.Name, &sn.Brand, &sn.PrimaryImage, &sn.CategoryID, &sn.CategoryName)
}

func (s *PostgresStore) CreateSneaker(ctx context.Context, sneaker *domain.Sneaker) (*domain.Sneaker, error) {
	query := `
		INSERT INTO catalog.sneakers (name, brand, primary_image, category_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`
	created := *sneaker
	created.CategoryName = nil
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query, sneaker.Name, sneaker.Brand, sneaker.PrimaryImage, sneaker.CategoryID).Scan(&created.ID)
	})
	if err != nil {
		if code, _ := pqCode(err); code == pqForeignKeyViolation {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: CreateSneaker failed to insert: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetSneakerByID(ctx context.Context, id int64) (*domain.Sneaker, error) {
	query := `
		SELECT ` + sneakerColumns + `
		FROM catalog.sneakers s
		LEFT JOIN catalog.categories c ON c.id = s.category_id
		WHERE s.id = $1;
	`
	var sneaker domain.Sneaker
	if err := scanSneaker(s.db.QueryRowContext(ctx, query, id), &sneaker); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSneakerNotFound
		}
		return nil, fmt.Errorf("store: GetSneakerByID failed to scan row: %w", err)
	}
	return &sneaker, nil
}

// ListSneakers retrieves one page of sneakers ordered by id, with the total count of matches.
func (s *PostgresStore) ListSneakers(ctx context.Context, params ListSneakersParams) ([]domain.Sneaker, int, error) {
	var whereClauses []string
	var queryArgs []interface{}
	argID := 1

	if params.SearchQuery != nil && *params.SearchQuery != "" {
		// Search in name OR brand
		whereClauses = append(whereClauses, fmt.Sprintf("(s.name ILIKE $%d OR s.brand ILIKE $%d)", argID, argID))
		queryArgs = append(queryArgs, containsPattern(*params.SearchQuery))
		argID++
	}
	if params.CategoryID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("s.category_id = $%d", argID))
		queryArgs = append(queryArgs, *params.CategoryID)
		argID++
	}

	whereCondition := ""
	if len(whereClauses) > 0 {
		whereCondition = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM catalog.sneakers s" + whereCondition
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, queryArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListSneakers failed to count sneakers: %w", err)
	}

	if totalCount == 0 || params.Offset >= totalCount {
		return []domain.Sneaker{}, totalCount, nil
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM catalog.sneakers s LEFT JOIN catalog.categories c ON c.id = s.category_id%s ORDER BY s.id ASC LIMIT $%d OFFSET $%d",
		sneakerColumns, whereCondition, argID, argID+1)
	finalQueryArgs := append(queryArgs, params.Limit, params.Offset)

	rows, err := s.db.QueryContext(ctx, dataQuery, finalQueryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListSneakers failed to query sneakers: %w", err)
	}
	defer rows.Close()

	sneakers := make([]domain.Sneaker, 0, params.Limit)
	for rows.Next() {
		var sn domain.Sneaker
		if err := scanSneaker(rows, &sn); err != nil {
			return nil, 0, fmt.Errorf("store: ListSneakers failed to scan sneaker row: %w", err)
		}
		sneakers = append(sneakers, sn)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListSneakers iteration error: %w", err)
	}

	return sneakers, totalCount, nil
}

// DeleteSneaker removes a sneaker; ON DELETE CASCADE removes its reviews.
func (s *PostgresStore) DeleteSneaker(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return execDelete(ctx, tx, `DELETE FROM catalog.sneakers WHERE id = $1;`, id, ErrSneakerNotFound, "DeleteSneaker")
	})
}

// --- ReviewStorer Implementation ---

const reviewColumns = `r.id, r.sneaker_id, r.author_id, u.username, r.title, r.body, r.rating, r.published_at`

func scanReview(row rowScanner, r *domain.Review) error {
	return row.Scan(&r.ID, &r.SneakerID, &r.Author.ID, &r.Author.Username, &r.Title, &r.Body, &r.Rating, &r.PublishedAt)
}

func (s *PostgresStore) CreateReview(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	query := `
		INSERT INTO catalog.reviews (sneaker_id, author_id, title, body, rating, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
	`
	created := *review
	if created.PublishedAt.IsZero() {
		created.PublishedAt = time.Now().UTC()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query,
			created.SneakerID, created.Author.ID, created.Title, created.Body, created.Rating, created.PublishedAt,
		).Scan(&created.ID)
	})
	if err != nil {
		if code, constraint := pqCode(err); code == pqForeignKeyViolation {
			if strings.Contains(constraint, "author") {
				return nil, ErrUserNotFound
			}
			return nil, ErrSneakerNotFound
		}
		return nil, fmt.Errorf("store: CreateReview failed to insert: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetReviewByID(ctx context.Context, id int64) (*domain.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM catalog.reviews r
		JOIN auth.users u ON u.id = r.author_id
		WHERE r.id = $1;
	`
	var review domain.Review
	if err := scanReview(s.db.QueryRowContext(ctx, query, id), &review); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("store: GetReviewByID failed to scan row: %w", err)
	}
	return &review, nil
}

// ListReviewsBySneaker returns the sneaker's reviews, newest first.
func (s *PostgresStore) ListReviewsBySneaker(ctx context.Context, sneakerID int64) ([]domain.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM catalog.reviews r
		JOIN auth.users u ON u.id = r.author_id
		WHERE r.sneaker_id = $1
		ORDER BY r.published_at DESC, r.id DESC;
	`
	rows, err := s.db.QueryContext(ctx, query, sneakerID)
	if err != nil {
		return nil, fmt.Errorf("store: ListReviewsBySneaker failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	for rows.Next() {
		var r domain.Review
		if err := scanReview(rows, &r); err != nil {
			return nil, fmt.Errorf("store: ListReviewsBySneaker failed to scan review row: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListReviewsBySneaker iteration error: %w", err)
	}
	return reviews, nil
}

// UpdateReview rewrites title, body and rating. Sneaker, author and published_at are left untouched.
func (s *PostgresStore) UpdateReview(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	query := `
		UPDATE catalog.reviews r
		SET title = $1, body = $2, rating = $3
		FROM auth.users u
		WHERE r.id = $4 AND u.id = r.author_id
		RETURNING ` + reviewColumns + `;
	`
	var updated domain.Review
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return scanReview(tx.QueryRowContext(ctx, query, review.Title, review.Body, review.Rating, review.ID), &updated)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("store: UpdateReview failed to scan row: %w", err)
	}
	return &updated, nil
}

func (s *PostgresStore) DeleteReview(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return execDelete(ctx, tx, `DELETE FROM catalog.reviews WHERE id = $1;`, id, ErrReviewNotFound, "DeleteReview")
	})
}

// --- UserStorer Implementation ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO auth.users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, username, password_hash, date_joined;
	`
	var created domain.User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, query, user.Username, user.PasswordHash).
			Scan(&created.ID, &created.Username, &created.PasswordHash, &created.DateJoined)
	})
	if err != nil {
		if code, _ := pqCode(err); code == pqUniqueViolation {
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("store: CreateUser failed to scan row: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.getUser(ctx, `SELECT id, username, password_hash, date_joined FROM auth.users WHERE id = $1;`, id)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT id, username, password_hash, date_joined FROM auth.users WHERE username = $1;`, username)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DateJoined)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: getUser failed to scan row: %w", err)
	}
	return &u, nil
}

// DeleteUser removes an account; ON DELETE CASCADE removes the reviews it authored.
func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return execDelete(ctx, tx, `DELETE FROM auth.users WHERE id = $1;`, id, ErrUserNotFound, "DeleteUser")
	})
}

func execDelete(ctx context.Context, tx *sql.Tx, query string, id int64, notFound error, op string) error {
	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("store: %s failed to execute delete: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s failed to get rows affected: %w", op, err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

// Ping checks the connection; used by the health check.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
