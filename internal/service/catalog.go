package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"sneaker-review-service/internal/domain"
	"sneaker-review-service/internal/store"
)

// PageSize is the fixed number of sneakers per listing page.
const PageSize = 5

// ListSneakersInput carries the raw listing parameters of a request.
type ListSneakersInput struct {
	Page       string // "", a 1-based number or "last"
	Query      string // matched against name or brand, case-insensitively
	CategoryID *int64
}

// SneakerPage is the listing context.
type SneakerPage struct {
	Sneakers    []domain.Sneaker `json:"tenis_list"`
	SearchQuery string           `json:"search_query"`
	CategoryID  *int64           `json:"category_id,omitempty"`
	Page        int              `json:"page"`
	NumPages    int              `json:"num_pages"`
	Count       int              `json:"count"`
	HasNext     bool             `json:"has_next"`
	HasPrevious bool             `json:"has_previous"`
	IsPaginated bool             `json:"is_paginated"`
}

// SneakerDetail is the detail context: one sneaker and its reviews, newest first.
type SneakerDetail struct {
	Sneaker *domain.Sneaker `json:"tenis"`
	Reviews []domain.Review `json:"reviews_list"`
}

// CatalogService serves the read-only catalog.
type CatalogService struct {
	categories store.CategoryStorer
	sneakers   store.SneakerStorer
	reviews    store.ReviewStorer
}

func NewCatalogService(categories store.CategoryStorer, sneakers store.SneakerStorer, reviews store.ReviewStorer) *CatalogService {
	return &CatalogService{categories: categories, sneakers: sneakers, reviews: reviews}
}

// parsePage validates the page parameter. last reports the "last" keyword.
func parsePage(raw string) (page int, last bool, err error) {
	switch raw {
	case "":
		return 1, false, nil
	case "last":
		return 0, true, nil
	}
	page, err = strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false, ErrPageOutOfRange
	}
	return page, false, nil
}

func numPages(total int) int {
	if total == 0 {
		return 1
	}
	return (total + PageSize - 1) / PageSize
}

// ListSneakers returns one page of the catalog. An empty result still has a
// page 1; any other page past the end is ErrPageOutOfRange.
func (s *CatalogService) ListSneakers(ctx context.Context, in ListSneakersInput) (*SneakerPage, error) {
	page, last, err := parsePage(in.Page)
	if err != nil {
		return nil, err
	}

	params := store.ListSneakersParams{Limit: PageSize, CategoryID: in.CategoryID}
	if in.Query != "" {
		q := in.Query
		params.SearchQuery = &q
	}
	if !last {
		params.Offset = (page - 1) * PageSize
	}

	items, total, err := s.sneakers.ListSneakers(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("service: list sneakers: %w", err)
	}

	pages := numPages(total)
	if last {
		page = pages
		if page > 1 {
			params.Offset = (page - 1) * PageSize
			if items, total, err = s.sneakers.ListSneakers(ctx, params); err != nil {
				return nil, fmt.Errorf("service: list sneakers: %w", err)
			}
			pages = numPages(total)
		}
	}
	if page > pages {
		return nil, ErrPageOutOfRange
	}

	return &SneakerPage{
		Sneakers:    items,
		SearchQuery: in.Query,
		CategoryID:  in.CategoryID,
		Page:        page,
		NumPages:    pages,
		Count:       total,
		HasNext:     page < pages,
		HasPrevious: page > 1,
		IsPaginated: pages > 1,
	}, nil
}

// GetSneakerDetail loads a sneaker with its reviews.
func (s *CatalogService) GetSneakerDetail(ctx context.Context, sneakerID int64) (*SneakerDetail, error) {
	sneaker, err := s.sneakers.GetSneakerByID(ctx, sneakerID)
	if err != nil {
		if errors.Is(err, store.ErrSneakerNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: get sneaker %d: %w", sneakerID, err)
	}
	reviews, err := s.reviews.ListReviewsBySneaker(ctx, sneakerID)
	if err != nil {
		return nil, fmt.Errorf("service: list reviews of sneaker %d: %w", sneakerID, err)
	}
	return &SneakerDetail{Sneaker: sneaker, Reviews: reviews}, nil
}

// ListCategories returns every category, by name.
func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list categories: %w", err)
	}
	return categories, nil
}
