package model

import (
	"errors"
	"time"
)

// Item is a catalog listing.
type Item struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Price         float64   `json:"price"`
	Category      string    `json:"category"`
	ImageFilename *string   `json:"image_filename"`
	Sold          bool      `json:"sold"`
	CreatedAt     time.Time `json:"created_at"`
}

// Item categories.
const (
	CategoryMice      = "mice"
	CategoryMousepads = "mousepads"
)

// ValidCategory reports whether c is one of the fixed item categories.
func ValidCategory(c string) bool {
	return c == CategoryMice || c == CategoryMousepads
}

// NewItem holds the fields of an item about to be inserted. The repository
// assigns the id and creation time; new items are never sold.
type NewItem struct {
	Title         string
	Price         float64
	Category      string
	ImageFilename *string
}

// ItemUpdate is a partial update. Nil fields are left untouched.
type ItemUpdate struct {
	Title         *string
	Price         *float64
	Category      *string
	Sold          *bool
	ImageFilename *string
}

// IsEmpty reports whether the update changes nothing.
func (u ItemUpdate) IsEmpty() bool {
	return u.Title == nil && u.Price == nil && u.Category == nil && u.Sold == nil && u.ImageFilename == nil
}

// ItemFilter selects items for listing. Zero values mean "no filter".
// Search is matched as literal text, case-insensitively, against the title.
type ItemFilter struct {
	Category string
	Sold     *bool
	Search   string
}

var (
	// ErrNotFound is returned when no item has the requested id.
	ErrNotFound = errors.New("item not found")

	// ErrInvalidID is returned when an id cannot belong to the backing store.
	ErrInvalidID = errors.New("invalid item id")

	// ErrNotInitialized is returned when a repository is used before its
	// connection has been opened.
	ErrNotInitialized = errors.New("repository used before initialization")

	// ErrInvalidCategory is returned for a category outside the fixed set.
	ErrInvalidCategory = errors.New("invalid category")
)
