package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jimmystore/catalog/internal/catalog"
	"github.com/jimmystore/catalog/internal/images"
	"github.com/jimmystore/catalog/internal/model"
)

const (
	// maxFormBody leaves room for the text fields and multipart framing
	// around a maximum-size image.
	maxFormBody = images.MaxSize + 1<<20
	// formMemory is how much of a multipart body is kept in memory; the
	// rest spills to temporary files.
	formMemory = 1 << 20
)

var errBodyTooLarge = errors.New("request body too large")

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	Catalog *catalog.Service
}

// List handles GET /items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.Catalog.List(r.Context(), catalog.ListQuery{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Sold:     q.Get("sold"),
	})
	if err != nil {
		writeServiceError(w, "list items", err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Get handles GET /items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.Catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "get item", err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Create handles POST /items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := parseItemForm(w, r); err != nil {
		writeFormError(w, err)
		return
	}
	defer cleanupForm(r)

	title, ok := formValue(r, "title")
	if !ok {
		jsonError(w, http.StatusBadRequest, "title required")
		return
	}
	rawPrice, ok := formValue(r, "price")
	if !ok {
		jsonError(w, http.StatusBadRequest, "price required")
		return
	}
	price, err := parsePrice(rawPrice)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	category, ok := formValue(r, "category")
	if !ok {
		jsonError(w, http.StatusBadRequest, "category required")
		return
	}

	upload, err := formUpload(r)
	if err != nil {
		writeFormError(w, err)
		return
	}

	item, err := h.Catalog.Create(r.Context(), catalog.CreateInput{
		Title:    title,
		Price:    price,
		Category: category,
		Image:    upload,
	})
	if err != nil {
		writeServiceError(w, "create item", err)
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

// Update handles PUT /items/{id}. Only the fields present in the form are
// changed.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if err := parseItemForm(w, r); err != nil {
		writeFormError(w, err)
		return
	}
	defer cleanupForm(r)

	var in catalog.UpdateInput
	if v, ok := formValue(r, "title"); ok {
		in.Title = &v
	}
	if v, ok := formValue(r, "price"); ok {
		price, err := parsePrice(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Price = &price
	}
	if v, ok := formValue(r, "category"); ok {
		in.Category = &v
	}
	if v, ok := formValue(r, "sold"); ok {
		sold, err := parseSold(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Sold = &sold
	}

	upload, err := formUpload(r)
	if err != nil {
		writeFormError(w, err)
		return
	}
	in.Image = upload

	item, err := h.Catalog.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, "update item", err)
		return
	}

	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, "delete item", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"deleted": true})
}

// parseItemForm parses a multipart or urlencoded body, capped at maxFormBody.
func parseItemForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)

	err := r.ParseMultipartForm(formMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return fmt.Errorf("parsing form: %w", err)
	}
	return nil
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}

// formValue returns the first value of a body field and whether it was sent.
func formValue(r *http.Request, key string) (string, bool) {
	vs, ok := r.PostForm[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// formUpload reads the optional "image" part. At most one byte past
// images.MaxSize is read, which is enough for validation to reject it.
func formUpload(r *http.Request) (*catalog.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, images.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return &catalog.Upload{Filename: header.Filename, Content: content}, nil
}

func writeFormError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		jsonError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	jsonError(w, http.StatusBadRequest, "invalid form body")
}

func parsePrice(s string) (float64, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.New("price must be a number")
	}
	return price, nil
}

// parseSold accepts the usual spellings of a boolean form field.
func parseSold(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	}
	return false, errors.New("sold must be a boolean")
}
