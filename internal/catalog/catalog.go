// Package catalog implements item management on top of an item repository
// and an image store.
//
// Every mutation validates its input before touching either collaborator.
// When a mutation involves both, images are written before the record that
// references them and removed only after the record no longer does, so a
// failure can leave an unreferenced file behind but never a record pointing
// at a missing one.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/jimmystore/catalog/internal/images"
	"github.com/jimmystore/catalog/internal/model"
)

// ErrInvalidInput is returned for a missing title or a negative price.
var ErrInvalidInput = errors.New("invalid input")

// Repository stores item records.
type Repository interface {
	Insert(ctx context.Context, item model.NewItem) (*model.Item, error)
	FindByID(ctx context.Context, id string) (*model.Item, error)
	Update(ctx context.Context, id string, u model.ItemUpdate) (*model.Item, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f model.ItemFilter) ([]model.Item, error)
}

// Upload is an image attached to a create or update request.
type Upload struct {
	Filename string
	Content  []byte
}

// CreateInput describes a new item.
type CreateInput struct {
	Title    string
	Price    float64
	Category string
	Image    *Upload
}

// UpdateInput describes a partial update. Nil fields are left untouched.
type UpdateInput struct {
	Title    *string
	Price    *float64
	Category *string
	Sold     *bool
	Image    *Upload
}

// ListQuery carries the raw listing parameters.
type ListQuery struct {
	Category string
	Search   string
	Sold     string
}

// Service orchestrates item records and their images.
type Service struct {
	items  Repository
	images images.Store
}

// NewService returns a Service using the given repository and image store.
func NewService(items Repository, imgs images.Store) *Service {
	return &Service{items: items, images: imgs}
}

// Create validates the input, saves the image if any, then inserts the item.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Item, error) {
	title := strings.TrimSpace(in.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	if !model.ValidCategory(in.Category) {
		return nil, model.ErrInvalidCategory
	}
	if err := validateUpload(in.Image); err != nil {
		return nil, err
	}

	var filename *string
	if in.Image != nil {
		name, err := s.images.Save(ctx, in.Image.Filename, in.Image.Content)
		if err != nil {
			return nil, fmt.Errorf("saving image: %w", err)
		}
		filename = &name
	}

	item, err := s.items.Insert(ctx, model.NewItem{
		Title:         title,
		Price:         in.Price,
		Category:      in.Category,
		ImageFilename: filename,
	})
	if err != nil {
		if filename != nil {
			s.discardImage(ctx, *filename, "create failed")
		}
		return nil, fmt.Errorf("inserting item: %w", err)
	}

	slog.Info("item created", "id", item.ID, "title", item.Title, "image", item.ImageFilename != nil)
	return item, nil
}

// Update applies a partial update. A replacement image is saved first, the
// record is then pointed at it, and only then is the old image removed.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*model.Item, error) {
	existing, err := s.items.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var u model.ItemUpdate
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		u.Title = &title
	}
	if in.Price != nil {
		if err := validatePrice(*in.Price); err != nil {
			return nil, err
		}
		u.Price = in.Price
	}
	if in.Category != nil {
		if !model.ValidCategory(*in.Category) {
			return nil, model.ErrInvalidCategory
		}
		u.Category = in.Category
	}
	u.Sold = in.Sold
	if err := validateUpload(in.Image); err != nil {
		return nil, err
	}

	var newName string
	if in.Image != nil {
		newName, err = s.images.Save(ctx, in.Image.Filename, in.Image.Content)
		if err != nil {
			return nil, fmt.Errorf("saving image: %w", err)
		}
		u.ImageFilename = &newName
	}

	updated, err := s.items.Update(ctx, id, u)
	if err != nil {
		if newName != "" {
			s.discardImage(ctx, newName, "update failed")
		}
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating item: %w", err)
	}

	if newName != "" && existing.ImageFilename != nil && *existing.ImageFilename != newName {
		s.discardImage(ctx, *existing.ImageFilename, "replaced")
	}

	slog.Info("item updated", "id", updated.ID, "image_replaced", newName != "")
	return updated, nil
}

// Delete removes the item record and then its image.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.items.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.items.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting item: %w", err)
	}

	if existing.ImageFilename != nil {
		s.discardImage(ctx, *existing.ImageFilename, "item deleted")
	}

	slog.Info("item deleted", "id", id)
	return nil
}

// Get returns a single item.
func (s *Service) Get(ctx context.Context, id string) (*model.Item, error) {
	return s.items.FindByID(ctx, id)
}

// List returns items matching the raw query parameters, newest first.
func (s *Service) List(ctx context.Context, q ListQuery) ([]model.Item, error) {
	items, err := s.items.List(ctx, BuildFilter(q))
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// BuildFilter converts raw listing parameters into a filter. Unrecognized
// category or sold values are dropped rather than rejected; clients rely on
// that leniency.
func BuildFilter(q ListQuery) model.ItemFilter {
	var f model.ItemFilter
	if model.ValidCategory(q.Category) {
		f.Category = q.Category
	}
	switch q.Sold {
	case "true":
		sold := true
		f.Sold = &sold
	case "false":
		sold := false
		f.Sold = &sold
	}
	f.Search = q.Search
	return f
}

// discardImage removes an image that is no longer, or never was, referenced.
// Failures only leave an orphaned file, so they are logged and not returned.
func (s *Service) discardImage(ctx context.Context, name, reason string) {
	if err := s.images.Delete(ctx, name); err != nil {
		slog.Error("failed to remove image, file orphaned", "name", name, "reason", reason, "error", err)
	}
}

func validateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	return nil
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return fmt.Errorf("%w: price must be a non-negative number", ErrInvalidInput)
	}
	return nil
}

func validateUpload(u *Upload) error {
	if u == nil {
		return nil
	}
	return images.Validate(u.Filename, int64(len(u.Content)))
}
