package api

import (
	"net/http"

	"github.com/jimmystore/catalog/internal/auth"
	"github.com/jimmystore/catalog/internal/catalog"
)

// Deps are the collaborators the HTTP API is built from.
type Deps struct {
	Catalog   *catalog.Service
	Gate      *auth.Gate
	Admin     *auth.Admin
	JWTSecret string
	// Uploads serves stored images by name; nil disables /uploads/.
	Uploads     http.Handler
	CORSOrigins []string
}

// NewRouter creates the API router with all endpoints registered, wrapped in
// request logging and CORS handling.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{Admin: d.Admin, JWTSecret: d.JWTSecret}
	itemsHandler := &ItemsHandler{Catalog: d.Catalog}

	requireAdmin := RequireAdmin(d.Gate)

	// Public.
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("GET /items", itemsHandler.List)
	mux.HandleFunc("GET /items/{id}", itemsHandler.Get)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Uploads != nil {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", d.Uploads))
	}

	// Admin only.
	mux.Handle("POST /items", requireAdmin(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("PUT /items/{id}", requireAdmin(http.HandlerFunc(itemsHandler.Update)))
	mux.Handle("DELETE /items/{id}", requireAdmin(http.HandlerFunc(itemsHandler.Delete)))

	return LoggingMiddleware(CORSMiddleware(d.CORSOrigins)(mux))
}
