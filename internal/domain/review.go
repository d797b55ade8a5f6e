package domain

import (
	"fmt"
	"time"
)

// Rating bounds and default for a review.
const (
	MinRating     = 1
	MaxRating     = 5
	DefaultRating = 5
)

// RatingChoice is one selectable rating with its human label.
type RatingChoice struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// RatingChoices lists every valid rating in ascending order.
func RatingChoices() []RatingChoice {
	choices := make([]RatingChoice, 0, MaxRating)
	for v := MinRating; v <= MaxRating; v++ {
		label := fmt.Sprintf("%d Estrelas", v)
		if v == 1 {
			label = "1 Estrela"
		}
		choices = append(choices, RatingChoice{Value: v, Label: label})
	}
	return choices
}

// ValidRating reports whether r is one of the enumerated ratings.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// Author is the public view of the user who wrote a review.
type Author struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Review is a user-authored evaluation of one sneaker.
// SneakerID and Author are always set server-side.
type Review struct {
	ID          int64     `json:"id"`
	SneakerID   int64     `json:"sneaker_id"`
	Author      Author    `json:"author"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Rating      int       `json:"rating"`
	PublishedAt time.Time `json:"published_at"`
}

// IsAuthoredBy reports whether u wrote the review. A nil user never matches.
func (r *Review) IsAuthoredBy(u *User) bool {
	return u != nil && r.Author.ID == u.ID
}
