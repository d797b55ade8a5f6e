package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"sneaker-review-service/internal/domain"
	"sneaker-review-service/internal/events"
	"sneaker-review-service/internal/metrics"
	"sneaker-review-service/internal/store"
)

// ReviewInput is the submitted review form. Sneaker and author are never part of it.
type ReviewInput struct {
	Title  string `json:"title" validate:"required,max=200"`
	Body   string `json:"body" validate:"required"`
	Rating string `json:"rating" validate:"required,rating"`
}

// ReviewForm is the create/edit form context.
type ReviewForm struct {
	Sneaker       *domain.Sneaker       `json:"tenis"`
	Review        *domain.Review        `json:"review,omitempty"`
	Values        ReviewInput           `json:"form"`
	RatingChoices []domain.RatingChoice `json:"rating_choices"`
}

// ReviewStore is what ReviewService needs from storage.
type ReviewStore interface {
	store.SneakerStorer
	store.ReviewStorer
}

// ReviewService creates, edits and deletes reviews. Every operation runs the
// same guard chain: authenticate, load, authorize, validate, write.
type ReviewService struct {
	store     ReviewStore
	publisher events.ReviewPublisher
	validate  *validator.Validate
	logger    *logrus.Logger
	now       func() time.Time
}

func NewReviewService(st ReviewStore, publisher events.ReviewPublisher, logger *logrus.Logger) *ReviewService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ReviewService{
		store:     st,
		publisher: publisher,
		validate:  newValidator(0),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReviewService) loadSneaker(ctx context.Context, id int64) (*domain.Sneaker, error) {
	sneaker, err := s.store.GetSneakerByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrSneakerNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: load sneaker %d: %w", id, err)
	}
	return sneaker, nil
}

// loadOwned loads a review and checks that currentUser wrote it.
func (s *ReviewService) loadOwned(ctx context.Context, reviewID int64, currentUser *domain.User) (*domain.Review, error) {
	if currentUser == nil {
		return nil, ErrUnauthenticated
	}
	review, err := s.store.GetReviewByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, store.ErrReviewNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: load review %d: %w", reviewID, err)
	}
	if !review.IsAuthoredBy(currentUser) {
		return nil, ErrForbidden
	}
	return review, nil
}

func (s *ReviewService) clean(in ReviewInput) (ReviewInput, int, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	in.Rating = strings.TrimSpace(in.Rating)
	if err := s.validate.Struct(in); err != nil {
		return in, 0, toValidationError(err)
	}
	rating, _ := strconv.Atoi(in.Rating)
	return in, rating, nil
}

// NewForm backs the empty create form.
func (s *ReviewService) NewForm(ctx context.Context, sneakerID int64, currentUser *domain.User) (*ReviewForm, error) {
	if currentUser == nil {
		return nil, ErrUnauthenticated
	}
	sneaker, err := s.loadSneaker(ctx, sneakerID)
	if err != nil {
		return nil, err
	}
	return &ReviewForm{
		Sneaker:       sneaker,
		Values:        ReviewInput{Rating: strconv.Itoa(domain.DefaultRating)},
		RatingChoices: domain.RatingChoices(),
	}, nil
}

// Create stores a review of sneakerID written by currentUser.
func (s *ReviewService) Create(ctx context.Context, sneakerID int64, currentUser *domain.User, in ReviewInput) (*domain.Review, error) {
	if currentUser == nil {
		return nil, ErrUnauthenticated
	}
	if _, err := s.loadSneaker(ctx, sneakerID); err != nil {
		return nil, err
	}
	in, rating, err := s.clean(in)
	if err != nil {
		return nil, err
	}

	review, err := s.store.CreateReview(ctx, &domain.Review{
		SneakerID:   sneakerID,
		Author:      domain.Author{ID: currentUser.ID, Username: currentUser.Username},
		Title:       in.Title,
		Body:        in.Body,
		Rating:      rating,
		PublishedAt: s.now(),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSneakerNotFound):
			return nil, ErrNotFound
		case errors.Is(err, store.ErrUserNotFound):
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("service: create review: %w", err)
	}

	s.committed(ctx, events.ReviewCreated, review)
	return review, nil
}

// GetForEdit backs the edit form, prefilled with the stored values.
func (s *ReviewService) GetForEdit(ctx context.Context, reviewID int64, currentUser *domain.User) (*ReviewForm, error) {
	review, err := s.loadOwned(ctx, reviewID, currentUser)
	if err != nil {
		return nil, err
	}
	sneaker, err := s.loadSneaker(ctx, review.SneakerID)
	if err != nil {
		return nil, err
	}
	return &ReviewForm{
		Sneaker:       sneaker,
		Review:        review,
		Values:        ReviewInput{Title: review.Title, Body: review.Body, Rating: strconv.Itoa(review.Rating)},
		RatingChoices: domain.RatingChoices(),
	}, nil
}

// Update rewrites title, body and rating of the caller's own review.
// Concurrent updates are last-writer-wins.
func (s *ReviewService) Update(ctx context.Context, reviewID int64, currentUser *domain.User, in ReviewInput) (*domain.Review, error) {
	review, err := s.loadOwned(ctx, reviewID, currentUser)
	if err != nil {
		return nil, err
	}
	in, rating, err := s.clean(in)
	if err != nil {
		return nil, err
	}

	review.Title = in.Title
	review.Body = in.Body
	review.Rating = rating
	updated, err := s.store.UpdateReview(ctx, review)
	if err != nil {
		if errors.Is(err, store.ErrReviewNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: update review %d: %w", reviewID, err)
	}

	s.committed(ctx, events.ReviewUpdated, updated)
	return updated, nil
}

// GetForDelete backs the delete confirmation page.
func (s *ReviewService) GetForDelete(ctx context.Context, reviewID int64, currentUser *domain.User) (*domain.Review, error) {
	return s.loadOwned(ctx, reviewID, currentUser)
}

// Delete removes the caller's own review and returns the sneaker it belonged to.
func (s *ReviewService) Delete(ctx context.Context, reviewID int64, currentUser *domain.User) (int64, error) {
	review, err := s.loadOwned(ctx, reviewID, currentUser)
	if err != nil {
		return 0, err
	}
	sneakerID := review.SneakerID

	if err := s.store.DeleteReview(ctx, reviewID); err != nil {
		if errors.Is(err, store.ErrReviewNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("service: delete review %d: %w", reviewID, err)
	}

	s.committed(ctx, events.ReviewDeleted, review)
	return sneakerID, nil
}

// committed records a finished write. Publishing failures are logged and
// counted; the write itself already succeeded.
func (s *ReviewService) committed(ctx context.Context, t events.EventType, review *domain.Review) {
	metrics.RecordReviewWrite(strings.TrimPrefix(string(t), "review_"))
	if err := s.publisher.PublishReview(ctx, events.NewReviewEvent(t, review)); err != nil {
		metrics.RecordEventFailure(string(t))
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":      t,
			"review_id":  review.ID,
			"sneaker_id": review.SneakerID,
		}).Error("failed to publish review event")
	}
}
