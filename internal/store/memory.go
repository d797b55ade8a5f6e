package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"sneaker-review-service/internal/domain"
)

// MemoryStore is an in-process Store. It mirrors the schema's cascade rules:
// deleting a sneaker or a user drops their reviews, deleting a category
// leaves its sneakers without one.
type MemoryStore struct {
	mu         sync.RWMutex
	categories map[int64]domain.Category
	sneakers   map[int64]domain.Sneaker
	reviews    map[int64]domain.Review
	users      map[int64]domain.User
	nextID     map[string]int64
	now        func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories: make(map[int64]domain.Category),
		sneakers:   make(map[int64]domain.Sneaker),
		reviews:    make(map[int64]domain.Review),
		users:      make(map[int64]domain.User),
		nextID:     make(map[string]int64),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) allocID(table string) int64 {
	m.nextID[table]++
	return m.nextID[table]
}

func (m *MemoryStore) CreateCategory(_ context.Context, category *domain.Category) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := domain.Category{ID: m.allocID("categories"), Name: category.Name}
	m.categories[c.ID] = c
	return &c, nil
}

func (m *MemoryStore) GetCategoryByID(_ context.Context, id int64) (*domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	return &c, nil
}

func (m *MemoryStore) ListCategories(_ context.Context) ([]domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	categories := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Name != categories[j].Name {
			return categories[i].Name < categories[j].Name
		}
		return categories[i].ID < categories[j].ID
	})
	return categories, nil
}

func (m *MemoryStore) DeleteCategory(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	delete(m.categories, id)
	for sid, s := range m.sneakers {
		if s.CategoryID != nil && *s.CategoryID == id {
			s.CategoryID = nil
			m.sneakers[sid] = s
		}
	}
	return nil
}

func (m *MemoryStore) CreateSneaker(_ context.Context, sneaker *domain.Sneaker) (*domain.Sneaker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sneaker.CategoryID != nil {
		if _, ok := m.categories[*sneaker.CategoryID]; !ok {
			return nil, ErrCategoryNotFound
		}
	}
	s := *sneaker
	s.ID = m.allocID("sneakers")
	s.CategoryName = nil
	m.sneakers[s.ID] = s
	return &s, nil
}

// withCategoryName fills the joined category name the way the SQL LEFT JOIN does.
func (m *MemoryStore) withCategoryName(s domain.Sneaker) domain.Sneaker {
	s.CategoryName = nil
	if s.CategoryID != nil {
		if c, ok := m.categories[*s.CategoryID]; ok {
			name := c.Name
			s.CategoryName = &name
		}
	}
	return s
}

func (m *MemoryStore) GetSneakerByID(_ context.Context, id int64) (*domain.Sneaker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sneakers[id]
	if !ok {
		return nil, ErrSneakerNotFound
	}
	s = m.withCategoryName(s)
	return &s, nil
}

func (m *MemoryStore) ListSneakers(_ context.Context, params ListSneakersParams) ([]domain.Sneaker, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var needle string
	if params.SearchQuery != nil {
		needle = strings.ToLower(*params.SearchQuery)
	}

	matches := make([]domain.Sneaker, 0)
	for _, s := range m.sneakers {
		if params.CategoryID != nil && (s.CategoryID == nil || *s.CategoryID != *params.CategoryID) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(s.Name), needle) &&
			!strings.Contains(strings.ToLower(s.Brand), needle) {
			continue
		}
		matches = append(matches, m.withCategoryName(s))
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	total := len(matches)
	if params.Offset >= total {
		return []domain.Sneaker{}, total, nil
	}
	end := total
	if params.Limit > 0 && params.Offset+params.Limit < total {
		end = params.Offset + params.Limit
	}
	return matches[params.Offset:end], total, nil
}

func (m *MemoryStore) DeleteSneaker(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sneakers[id]; !ok {
		return ErrSneakerNotFound
	}
	delete(m.sneakers, id)
	for rid, r := range m.reviews {
		if r.SneakerID == id {
			delete(m.reviews, rid)
		}
	}
	return nil
}

// withAuthor refreshes the author username from the users table.
func (m *MemoryStore) withAuthor(r domain.Review) domain.Review {
	if u, ok := m.users[r.Author.ID]; ok {
		r.Author.Username = u.Username
	}
	return r
}

func (m *MemoryStore) CreateReview(_ context.Context, review *domain.Review) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sneakers[review.SneakerID]; !ok {
		return nil, ErrSneakerNotFound
	}
	if _, ok := m.users[review.Author.ID]; !ok {
		return nil, ErrUserNotFound
	}
	r := *review
	r.ID = m.allocID("reviews")
	if r.PublishedAt.IsZero() {
		r.PublishedAt = m.now()
	}
	r = m.withAuthor(r)
	m.reviews[r.ID] = r
	return &r, nil
}

func (m *MemoryStore) GetReviewByID(_ context.Context, id int64) (*domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reviews[id]
	if !ok {
		return nil, ErrReviewNotFound
	}
	r = m.withAuthor(r)
	return &r, nil
}

func (m *MemoryStore) ListReviewsBySneaker(_ context.Context, sneakerID int64) ([]domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reviews := make([]domain.Review, 0)
	for _, r := range m.reviews {
		if r.SneakerID == sneakerID {
			reviews = append(reviews, m.withAuthor(r))
		}
	}
	sort.Slice(reviews, func(i, j int) bool {
		if !reviews[i].PublishedAt.Equal(reviews[j].PublishedAt) {
			return reviews[i].PublishedAt.After(reviews[j].PublishedAt)
		}
		return reviews[i].ID > reviews[j].ID
	})
	return reviews, nil
}

func (m *MemoryStore) UpdateReview(_ context.Context, review *domain.Review) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reviews[review.ID]
	if !ok {
		return nil, ErrReviewNotFound
	}
	r.Title = review.Title
	r.Body = review.Body
	r.Rating = review.Rating
	m.reviews[r.ID] = r
	r = m.withAuthor(r)
	return &r, nil
}

func (m *MemoryStore) DeleteReview(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reviews[id]; !ok {
		return ErrReviewNotFound
	}
	delete(m.reviews, id)
	return nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == user.Username {
			return nil, ErrUsernameExists
		}
	}
	u := domain.User{
		ID:           m.allocID("users"),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		DateJoined:   m.now(),
	}
	m.users[u.ID] = u
	return &u, nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(m.users, id)
	for rid, r := range m.reviews {
		if r.Author.ID == id {
			delete(m.reviews, rid)
		}
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
