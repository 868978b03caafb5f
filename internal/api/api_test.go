package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jimmystore/catalog/internal/auth"
	"github.com/jimmystore/catalog/internal/catalog"
	"github.com/jimmystore/catalog/internal/db"
	"github.com/jimmystore/catalog/internal/images"
	"github.com/jimmystore/catalog/internal/model"
	"github.com/jimmystore/catalog/internal/store"
)

const (
	testJWTSecret = "test-secret"
	testAdminUser = "admin"
	testAdminPass = "password"
)

type testServer struct {
	*httptest.Server
	uploads string
}

func newTestAdmin(t *testing.T) *auth.Admin {
	t.Helper()
	admin, err := auth.NewAdmin(testAdminUser, testAdminPass)
	if err != nil {
		t.Fatalf("NewAdmin: %v", err)
	}
	return admin
}

func newRouter(t *testing.T, repo catalog.Repository, imgs images.Store, uploads http.Handler) http.Handler {
	t.Helper()
	return NewRouter(Deps{
		Catalog:     catalog.NewService(repo, imgs),
		Gate:        auth.NewGate(auth.JWTVerifier{Secret: testJWTSecret}),
		Admin:       newTestAdmin(t),
		JWTSecret:   testJWTSecret,
		Uploads:     uploads,
		CORSOrigins: []string{"http://localhost:3000"},
	})
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	database := db.NewTestDB(t)
	dir := filepath.Join(t.TempDir(), "uploads")
	disk, err := images.NewDisk(dir)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	server := httptest.NewServer(newRouter(t, store.NewItems(database), disk, disk.Handler()))
	t.Cleanup(server.Close)
	return &testServer{Server: server, uploads: dir}
}

func login(t *testing.T, serverURL string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": testAdminUser, "password": testAdminPass})
	resp, err := http.Post(serverURL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if loginResp.AccessToken == "" {
		t.Fatal("empty token from login")
	}
	if loginResp.TokenType != "bearer" {
		t.Errorf("token_type = %q, want bearer", loginResp.TokenType)
	}
	return loginResp.AccessToken
}

type formFile struct {
	name    string
	content []byte
}

// multipartBody encodes fields and an optional "image" file part.
func multipartBody(t *testing.T, fields map[string]string, file *formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile("image", file.name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(file.content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func formRequest(t *testing.T, method, target, token string, fields map[string]string, file *formFile) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, fields, file)
	req, err := http.NewRequest(method, target, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	return resp
}

func doRequest(t *testing.T, method, target, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	return resp
}

// decodeItem checks the status and decodes the item from the body.
func decodeItem(t *testing.T, resp *http.Response, want int) model.Item {
	t.Helper()
	expectStatusOpen(t, resp, want)
	defer resp.Body.Close()
	var item model.Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		t.Fatalf("decoding item: %v", err)
	}
	return item
}

func listItems(t *testing.T, target string) []model.Item {
	t.Helper()
	resp, err := http.Get(target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", target, resp.StatusCode)
	}
	var items []model.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	return items
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()
	expectStatusOpen(t, resp, want)
}

// expectStatusOpen is expectStatus for responses whose body is still needed.
func expectStatusOpen(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d (body %v)", resp.StatusCode, want, body)
	}
}

func TestLoginEndpoint(t *testing.T) {
	server := setupTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong password", `{"username":"admin","password":"wrong"}`, http.StatusUnauthorized},
		{"wrong username", `{"username":"root","password":"password"}`, http.StatusUnauthorized},
		{"missing fields", `{}`, http.StatusBadRequest},
		{"malformed", `{"username":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/auth/login", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			expectStatus(t, resp, tt.want)
		})
	}

	token := login(t, server.URL)
	claims, err := auth.ValidateToken(testJWTSecret, token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Subject != auth.AdminSubject {
		t.Errorf("subject = %q, want %q", claims.Subject, auth.AdminSubject)
	}
}

func TestItemLifecycle(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server.URL)

	resp := formRequest(t, http.MethodPost, server.URL+"/items", token, map[string]string{
		"title":    "Logitech G303",
		"price":    "49.99",
		"category": "mice",
	}, nil)
	created := decodeItem(t, resp, http.StatusCreated)
	if created.ID == "" || created.Title != "Logitech G303" || created.Price != 49.99 ||
		created.Category != model.CategoryMice || created.Sold || created.ImageFilename != nil {
		t.Fatalf("unexpected created item: %+v", created)
	}

	resp = formRequest(t, http.MethodPut, server.URL+"/items/"+created.ID, token, map[string]string{"sold": "true"}, nil)
	updated := decodeItem(t, resp, http.StatusOK)
	if !updated.Sold || updated.Title != created.Title || updated.Price != created.Price {
		t.Fatalf("unexpected updated item: %+v", updated)
	}

	items := listItems(t, server.URL+"/items?sold=true")
	if len(items) != 1 || items[0].ID != created.ID {
		t.Fatalf("sold listing = %+v", items)
	}

	resp = doRequest(t, http.MethodDelete, server.URL+"/items/"+created.ID, token)
	expectStatusOpen(t, resp, http.StatusOK)
	var deleted map[string]bool
	json.NewDecoder(resp.Body).Decode(&deleted)
	resp.Body.Close()
	if !deleted["deleted"] {
		t.Errorf("delete response = %v", deleted)
	}

	if items := listItems(t, server.URL+"/items"); len(items) != 0 {
		t.Errorf("expected empty list after delete, got %+v", items)
	}
	expectStatus(t, doRequest(t, http.MethodGet, server.URL+"/items/"+created.ID, ""), http.StatusNotFound)
}

func TestListReturnsEmptyArray(t *testing.T) {
	server := setupTestServer(t)

	resp, err := http.Get(server.URL + "/items")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var raw bytes.Buffer
	raw.ReadFrom(resp.Body)
	if got := strings.TrimSpace(raw.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestListFilters(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server.URL)

	for _, f := range []map[string]string{
		{"title": "Logitech G303", "price": "25", "category": "mice"},
		{"title": "Artisan Hien", "price": "50", "category": "mousepads"},
		{"title": "Zowie EC2", "price": "40", "category": "mice"},
	} {
		expectStatus(t, formRequest(t, http.MethodPost, server.URL+"/items", token, f, nil), http.StatusCreated)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Zowie EC2", "Artisan Hien", "Logitech G303"}},
		{"category=mice", []string{"Zowie EC2", "Logitech G303"}},
		{"category=keyboards", []string{"Zowie EC2", "Artisan Hien", "Logitech G303"}},
		{"search=" + url.QueryEscape("hien"), []string{"Artisan Hien"}},
		{"sold=false&category=mousepads", []string{"Artisan Hien"}},
		{"sold=maybe", []string{"Zowie EC2", "Artisan Hien", "Logitech G303"}},
		{"search=" + url.QueryEscape("%"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			items := listItems(t, server.URL+"/items?"+tt.query)
			if len(items) != len(tt.want) {
				t.Fatalf("got %d items, want %d: %+v", len(items), len(tt.want), items)
			}
			for i, item := range items {
				if item.Title != tt.want[i] {
					t.Errorf("item %d = %q, want %q", i, item.Title, tt.want[i])
				}
			}
		})
	}
}

func TestCreateWithImage(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server.URL)

	png := []byte("\x89PNG\r\n\x1a\nnot really a png")
	resp := formRequest(t, http.MethodPost, server.URL+"/items", token, map[string]string{
		"title":    "Artisan Zero",
		"price":    "45",
		"category": "mousepads",
	}, &formFile{name: "Zero.PNG", content: png})
	item := decodeItem(t, resp, http.StatusCreated)
	if item.ImageFilename == nil || !strings.HasSuffix(*item.ImageFilename, ".png") {
		t.Fatalf("image_filename = %v, want *.png", item.ImageFilename)
	}

	got, err := os.ReadFile(filepath.Join(server.uploads, *item.ImageFilename))
	if err != nil {
		t.Fatalf("stored image: %v", err)
	}
	if !bytes.Equal(got, png) {
		t.Error("stored image content differs from upload")
	}

	served, err := http.Get(server.URL + "/uploads/" + *item.ImageFilename)
	if err != nil {
		t.Fatal(err)
	}
	defer served.Body.Close()
	if served.StatusCode != http.StatusOK {
		t.Fatalf("GET /uploads: status %d", served.StatusCode)
	}
	var body bytes.Buffer
	body.ReadFrom(served.Body)
	if !bytes.Equal(body.Bytes(), png) {
		t.Error("served image content differs from upload")
	}
}

func TestCreateValidation(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server.URL)

	valid := func() map[string]string {
		return map[string]string{"title": "Pad", "price": "10", "category": "mousepads"}
	}

	tests := []struct {
		name   string
		mutate func(map[string]string)
		file   *formFile
		want   int
	}{
		{"invalid category", func(f map[string]string) { f["category"] = "keyboards" }, nil, http.StatusBadRequest},
		{"missing title", func(f map[string]string) { delete(f, "title") }, nil, http.StatusBadRequest},
		{"blank title", func(f map[string]string) { f["title"] = "   " }, nil, http.StatusBadRequest},
		{"missing price", func(f map[string]string) { delete(f, "price") }, nil, http.StatusBadRequest},
		{"non-numeric price", func(f map[string]string) { f["price"] = "cheap" }, nil, http.StatusBadRequest},
		{"negative price", func(f map[string]string) { f["price"] = "-1" }, nil, http.StatusBadRequest},
		{"exe upload", func(map[string]string) {}, &formFile{name: "payload.exe", content: []byte("MZ")}, http.StatusBadRequest},
		{"no extension", func(map[string]string) {}, &formFile{name: "image", content: []byte("x")}, http.StatusBadRequest},
		{"image over limit", func(map[string]string) {}, &formFile{name: "big.jpg", content: make([]byte, images.MaxSize+1)}, http.StatusRequestEntityTooLarge},
		{"body over cap", func(map[string]string) {}, &formFile{name: "huge.jpg", content: make([]byte, maxFormBody)}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := valid()
			tt.mutate(fields)
			expectStatus(t, formRequest(t, http.MethodPost, server.URL+"/items", token, fields, tt.file), tt.want)
		})
	}

	if items := listItems(t, server.URL+"/items"); len(items) != 0 {
		t.Errorf("rejected creates left %d items", len(items))
	}
	entries, err := os.ReadDir(server.uploads)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected creates left %d files", len(entries))
	}
}

func TestUpdateAndDeleteErrors(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server.URL)

	expectStatus(t, formRequest(t, http.MethodPut, server.URL+"/items/999", token, map[string]string{"sold": "true"}, nil), http.StatusNotFound)
	expectStatus(t, doRequest(t, http.MethodDelete, server.URL+"/items/999", token), http.StatusNotFound)
	expectStatus(t, doRequest(t, http.MethodGet, server.URL+"/items/abc", ""), http.StatusBadRequest)

	resp := formRequest(t, http.MethodPost, server.URL+"/items", token, map[string]string{
		"title": "G Pro", "price": "80", "category": "mice",
	}, nil)
	item := decodeItem(t, resp, http.StatusCreated)

	expectStatus(t, formRequest(t, http.MethodPut, server.URL+"/items/"+item.ID, token, map[string]string{"sold": "sometimes"}, nil), http.StatusBadRequest)
	expectStatus(t, formRequest(t, http.MethodPut, server.URL+"/items/"+item.ID, token, map[string]string{"category": "keyboards"}, nil), http.StatusBadRequest)
}

func TestReplaceImage(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server.URL)

	resp := formRequest(t, http.MethodPost, server.URL+"/items", token, map[string]string{
		"title": "Pad", "price": "10", "category": "mousepads",
	}, &formFile{name: "a.jpg", content: []byte("first")})
	first := decodeItem(t, resp, http.StatusCreated)

	resp = formRequest(t, http.MethodPut, server.URL+"/items/"+first.ID, token, nil, &formFile{name: "b.webp", content: []byte("second")})
	second := decodeItem(t, resp, http.StatusOK)

	if second.ImageFilename == nil || *second.ImageFilename == *first.ImageFilename {
		t.Fatalf("image not replaced: %v", second.ImageFilename)
	}
	if _, err := os.Stat(filepath.Join(server.uploads, *first.ImageFilename)); !os.IsNotExist(err) {
		t.Errorf("old image still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(server.uploads, *second.ImageFilename)); err != nil {
		t.Errorf("new image missing: %v", err)
	}

	expectStatus(t, doRequest(t, http.MethodDelete, server.URL+"/items/"+first.ID, token), http.StatusOK)
	if _, err := os.Stat(filepath.Join(server.uploads, *second.ImageFilename)); !os.IsNotExist(err) {
		t.Errorf("image survived item deletion: %v", err)
	}
}

// untouchableRepo and untouchableImages fail the test if any method runs.
type untouchableRepo struct{ t *testing.T }

func (r untouchableRepo) fail(op string) { r.t.Errorf("repository %s called on unauthorized request", op) }

func (r untouchableRepo) Insert(context.Context, model.NewItem) (*model.Item, error) {
	r.fail("Insert")
	return nil, model.ErrNotFound
}

func (r untouchableRepo) FindByID(context.Context, string) (*model.Item, error) {
	r.fail("FindByID")
	return nil, model.ErrNotFound
}

func (r untouchableRepo) Update(context.Context, string, model.ItemUpdate) (*model.Item, error) {
	r.fail("Update")
	return nil, model.ErrNotFound
}

func (r untouchableRepo) Delete(context.Context, string) error {
	r.fail("Delete")
	return model.ErrNotFound
}

func (r untouchableRepo) List(context.Context, model.ItemFilter) ([]model.Item, error) {
	r.fail("List")
	return nil, nil
}

type untouchableImages struct{ t *testing.T }

func (i untouchableImages) Save(context.Context, string, []byte) (string, error) {
	i.t.Error("image Save called on unauthorized request")
	return "", images.ErrInvalidName
}

func (i untouchableImages) Delete(context.Context, string) error {
	i.t.Error("image Delete called on unauthorized request")
	return nil
}

func (i untouchableImages) Exists(context.Context, string) (bool, error) {
	i.t.Error("image Exists called on unauthorized request")
	return false, nil
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{RegisteredClaims: claims}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return tok
}

func TestMutationsRequireAdmin(t *testing.T) {
	server := httptest.NewServer(newRouter(t, untouchableRepo{t}, untouchableImages{t}, nil))
	t.Cleanup(server.Close)

	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tokens := map[string]string{
		"no token":     "",
		"garbage":      "not-a-jwt",
		"wrong secret": signToken(t, "other-secret", jwt.RegisteredClaims{Subject: auth.AdminSubject, ExpiresAt: future}),
		"non-admin":    signToken(t, testJWTSecret, jwt.RegisteredClaims{Subject: "customer", ExpiresAt: future}),
		"expired": signToken(t, testJWTSecret, jwt.RegisteredClaims{
			Subject:   auth.AdminSubject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}),
	}

	fields := map[string]string{"title": "G303", "price": "25", "category": "mice"}
	image := &formFile{name: "a.png", content: []byte("png")}

	for name, token := range tokens {
		t.Run(name, func(t *testing.T) {
			for _, resp := range []*http.Response{
				formRequest(t, http.MethodPost, server.URL+"/items", token, fields, image),
				formRequest(t, http.MethodPut, server.URL+"/items/1", token, fields, image),
				doRequest(t, http.MethodDelete, server.URL+"/items/1", token),
			} {
				if got := resp.Header.Get("WWW-Authenticate"); got != "Bearer" {
					t.Errorf("WWW-Authenticate = %q, want Bearer", got)
				}
				expectStatus(t, resp, http.StatusUnauthorized)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	server := setupTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/items", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, server.URL+"/items", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin got Allow-Origin %q", got)
	}
}

func TestHealthz(t *testing.T) {
	server := setupTestServer(t)
	expectStatus(t, doRequest(t, http.MethodGet, server.URL+"/healthz", ""), http.StatusOK)
}
