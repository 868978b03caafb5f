package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jimmystore/catalog/internal/model"
)

// timeLayout is fixed-width so that text order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const itemColumns = `id, title, price, category, image_filename, sold, created_at`

// Items is the SQLite-backed item repository.
type Items struct {
	db  *sql.DB
	now func() time.Time
}

// NewItems returns an item repository using db.
func NewItems(db *sql.DB) *Items {
	return &Items{db: db, now: time.Now}
}

func (s *Items) conn() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, model.ErrNotInitialized
	}
	return s.db, nil
}

// Insert creates a new unsold item stamped with the current time.
func (s *Items) Insert(ctx context.Context, item model.NewItem) (*model.Item, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if !model.ValidCategory(item.Category) {
		return nil, model.ErrInvalidCategory
	}

	createdAt := s.now().UTC().Format(timeLayout)
	result, err := db.ExecContext(ctx,
		`INSERT INTO items (title, price, category, image_filename, sold, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		item.Title, item.Price, item.Category, nullString(item.ImageFilename), createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return s.get(ctx, db, id)
}

// FindByID returns the item with the given id or model.ErrNotFound.
func (s *Items) FindByID(ctx context.Context, id string) (*model.Item, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	n, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, db, n)
}

func (s *Items) get(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// Update applies the supplied fields and returns the refreshed item. An
// empty update returns the item unchanged.
func (s *Items) Update(ctx context.Context, id string, u model.ItemUpdate) (*model.Item, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	n, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if u.Category != nil && !model.ValidCategory(*u.Category) {
		return nil, model.ErrInvalidCategory
	}
	if u.IsEmpty() {
		return s.get(ctx, db, n)
	}

	var sets []string
	var args []any
	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Price != nil {
		sets = append(sets, "price = ?")
		args = append(args, *u.Price)
	}
	if u.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *u.Category)
	}
	if u.Sold != nil {
		sets = append(sets, "sold = ?")
		args = append(args, *u.Sold)
	}
	if u.ImageFilename != nil {
		sets = append(sets, "image_filename = ?")
		args = append(args, *u.ImageFilename)
	}
	args = append(args, n)

	result, err := db.ExecContext(ctx,
		`UPDATE items SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}
	if affected == 0 {
		return nil, model.ErrNotFound
	}

	return s.get(ctx, db, n)
}

// Delete permanently removes an item.
func (s *Items) Delete(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	n, err := parseID(id)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, n)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// List returns items matching f, newest first.
func (s *Items) List(ctx context.Context, f model.ItemFilter) ([]model.Item, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	where, args := buildWhere(f)
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items`+where+` ORDER BY created_at DESC, id DESC`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// buildWhere turns a filter into a WHERE clause. Categories outside the
// fixed set are ignored rather than matched. LIKE is case-insensitive for
// ASCII letters only.
func buildWhere(f model.ItemFilter) (string, []any) {
	var conds []string
	var args []any

	if model.ValidCategory(f.Category) {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Sold != nil {
		conds = append(conds, "sold = ?")
		args = append(args, *f.Sold)
	}
	if f.Search != "" {
		conds = append(conds, `title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+EscapeLike(f.Search)+"%")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// EscapeLike escapes LIKE metacharacters so s matches only itself, using
// backslash as the escape character.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*model.Item, error) {
	var (
		item      model.Item
		id        int64
		image     sql.NullString
		createdAt string
	)
	if err := row.Scan(&id, &item.Title, &item.Price, &item.Category, &image, &item.Sold, &createdAt); err != nil {
		return nil, err
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}

	item.ID = strconv.FormatInt(id, 10)
	item.CreatedAt = t
	if image.Valid {
		name := image.String
		item.ImageFilename = &name
	}
	return &item, nil
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, model.ErrInvalidID
	}
	return n, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
