package domain

// Category groups sneakers in the catalog ("Categoria").
// Names are not unique.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Sneaker is a catalog entry ("Tênis").
// The json tags correspond to the fields exposed in API responses.
type Sneaker struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Brand        string  `json:"brand"`
	PrimaryImage *string `json:"primary_image,omitempty"` // Path relative to the media root, nil when no image was uploaded
	CategoryID   *int64  `json:"category_id,omitempty"`   // Nil when uncategorized or the category was deleted
	CategoryName *string `json:"category_name,omitempty"` // Filled by joins on read; never written
}

// DisplayName renders the sneaker the way the catalog shows it, brand first.
func (s Sneaker) DisplayName() string {
	return s.Brand + " " + s.Name
}
