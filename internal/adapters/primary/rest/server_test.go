package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/jupiterclapton/postfeed/internal/adapters/secondary/security"
	"github.com/jupiterclapton/postfeed/internal/core/services"
	"github.com/jupiterclapton/postfeed/internal/testutil"
)

type testServer struct {
	e      *echo.Echo
	posts  *services.PostService
	images *testutil.Images
	pub    *testutil.Publisher
}

func newTestServer(t *testing.T, limiter Limiter) *testServer {
	t.Helper()
	tokens, err := security.NewJWTProvider("somesupersecretsecret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	users := testutil.NewUserRepo()
	images := &testutil.Images{}
	pub := &testutil.Publisher{}
	identity := services.NewIdentityService(users, security.NewBcryptHasher(bcrypt.MinCost), tokens)
	posts := services.NewPostService(testutil.NewPostRepo(users), users, images, pub, nil)

	deps := Deps{Identity: identity, Posts: posts, Images: images}
	if limiter != nil {
		deps.AuthLimiter = limiter
	}
	return &testServer{e: NewServer(deps), posts: posts, images: images, pub: pub}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func jsonRequest(method, target, token string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

// multipartRequest adds an "image" file part when contentType is not empty.
func multipartRequest(t *testing.T, method, target, token string, fields map[string]string, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if contentType != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="photo.png"`)
		hdr.Set("Content-Type", contentType)
		part, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(part, "fake-image-bytes"); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

// signupAndLogin returns the user id and a bearer token.
func (s *testServer) signupAndLogin(t *testing.T, email string) (string, string) {
	t.Helper()
	rec, body := s.do(t, jsonRequest(http.MethodPost, "/signup", "", map[string]string{
		"email": email, "name": "Max", "password": "secret",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %v", rec.Code, body)
	}
	rec, body = s.do(t, jsonRequest(http.MethodPost, "/login", "", map[string]string{
		"email": email, "password": "secret",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %v", rec.Code, body)
	}
	return body["userId"].(string), body["token"].(string)
}

func (s *testServer) createPost(t *testing.T, token, title string) map[string]any {
	t.Helper()
	rec, body := s.do(t, multipartRequest(t, http.MethodPost, "/feed/post", token,
		map[string]string{"title": title, "content": "Some content"}, "image/png"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %v", rec.Code, body)
	}
	return body["post"].(map[string]any)
}

func TestSignupErrors(t *testing.T) {
	s := newTestServer(t, nil)
	s.signupAndLogin(t, "max@test.com")

	rec, body := s.do(t, jsonRequest(http.MethodPost, "/signup", "", map[string]string{
		"email": "max@test.com", "name": "Max", "password": "secret",
	}))
	if rec.Code != http.StatusConflict || body["code"] != float64(http.StatusConflict) {
		t.Fatalf("duplicate signup = %d %v", rec.Code, body)
	}

	rec, body = s.do(t, jsonRequest(http.MethodPost, "/signup", "", map[string]string{
		"email": "not-an-email", "name": "Max", "password": "123",
	}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid signup = %d %v", rec.Code, body)
	}
	if data, _ := body["data"].([]any); len(data) != 2 {
		t.Fatalf("field errors = %v, want 2", body["data"])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s := newTestServer(t, nil)
	s.signupAndLogin(t, "max@test.com")

	rec, body := s.do(t, jsonRequest(http.MethodPost, "/login", "", map[string]string{
		"email": "max@test.com", "password": "nope!",
	}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login = %d %v", rec.Code, body)
	}
	if _, ok := body["token"]; ok {
		t.Fatal("failed login must not return a token")
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.signupAndLogin(t, "max@test.com")

	rec, body := s.do(t, jsonRequest(http.MethodGet, "/status", token, nil))
	if rec.Code != http.StatusOK || body["status"] != "I am new!" {
		t.Fatalf("get status = %d %v", rec.Code, body)
	}

	rec, _ = s.do(t, jsonRequest(http.MethodPut, "/status", token, map[string]string{"status": "Busy"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}
	_, body = s.do(t, jsonRequest(http.MethodGet, "/status", token, nil))
	if body["status"] != "Busy" {
		t.Fatalf("status = %v, want Busy", body["status"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/feed/posts"},
		{http.MethodPost, "/feed/post"},
		{http.MethodPut, "/feed/post/abc"},
		{http.MethodDelete, "/feed/post/abc"},
		{http.MethodGet, "/status"},
		{http.MethodPut, "/post-image"},
	}
	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			for _, token := range []string{"", "garbage"} {
				rec, body := s.do(t, jsonRequest(r.method, r.path, token, nil))
				if rec.Code != http.StatusUnauthorized || body["code"] != float64(http.StatusUnauthorized) {
					t.Fatalf("token %q: status = %d %v", token, rec.Code, body)
				}
			}
		})
	}
}

func TestPostLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	userID, token := s.signupAndLogin(t, "max@test.com")

	post := s.createPost(t, token, "First post")
	postID := post["_id"].(string)
	creator := post["creator"].(map[string]any)
	if creator["_id"] != userID || creator["name"] != "Max" {
		t.Fatalf("creator = %v", creator)
	}
	if !strings.HasPrefix(post["imageUrl"].(string), "images/") {
		t.Fatalf("imageUrl = %v", post["imageUrl"])
	}

	// Public read
	rec, body := s.do(t, jsonRequest(http.MethodGet, "/feed/post/"+postID, "", nil))
	if rec.Code != http.StatusOK || body["post"].(map[string]any)["title"] != "First post" {
		t.Fatalf("get = %d %v", rec.Code, body)
	}

	// Update keeping the image through the body field
	rec, body = s.do(t, jsonRequest(http.MethodPut, "/feed/post/"+postID, token, map[string]string{
		"title": "Edited title", "content": "Edited content", "image": post["imageUrl"].(string),
	}))
	if rec.Code != http.StatusOK || body["post"].(map[string]any)["title"] != "Edited title" {
		t.Fatalf("update = %d %v", rec.Code, body)
	}

	// Delete
	rec, _ = s.do(t, jsonRequest(http.MethodDelete, "/feed/post/"+postID, token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec, body = s.do(t, jsonRequest(http.MethodGet, "/feed/post/"+postID, "", nil))
	if rec.Code != http.StatusNotFound || body["message"] != "Could not find post." {
		t.Fatalf("get deleted = %d %v", rec.Code, body)
	}

	s.posts.Wait()
	if n := len(s.pub.Events()); n != 3 {
		t.Fatalf("published %d events, want 3", n)
	}
}

func TestCreatePostValidation(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.signupAndLogin(t, "max@test.com")

	tests := []struct {
		name        string
		fields      map[string]string
		contentType string
		wantMsg     string
		wantRelease bool
	}{
		{
			name:    "no image",
			fields:  map[string]string{"title": "Valid title", "content": "Valid content"},
			wantMsg: "No image provided.",
		},
		{
			name:        "unsupported image type",
			fields:      map[string]string{"title": "Valid title", "content": "Valid content"},
			contentType: "application/pdf",
			wantMsg:     "No image provided.",
		},
		{
			name:        "short title releases the upload",
			fields:      map[string]string{"title": "Four", "content": "Valid content"},
			contentType: "image/png",
			wantMsg:     "Validation failed, entered data is incorrect.",
			wantRelease: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(s.images.Released())
			rec, body := s.do(t, multipartRequest(t, http.MethodPost, "/feed/post", token, tt.fields, tt.contentType))
			if rec.Code != http.StatusUnprocessableEntity || body["message"] != tt.wantMsg {
				t.Fatalf("create = %d %v", rec.Code, body)
			}
			released := len(s.images.Released()) - before
			if tt.wantRelease != (released == 1) {
				t.Fatalf("released %d uploads, wantRelease=%v", released, tt.wantRelease)
			}
		})
	}
}

func TestUpdateAndDeleteByNonOwner(t *testing.T) {
	s := newTestServer(t, nil)
	_, owner := s.signupAndLogin(t, "max@test.com")
	_, other := s.signupAndLogin(t, "anna@test.com")
	post := s.createPost(t, owner, "Owned post")
	path := "/feed/post/" + post["_id"].(string)

	rec, _ := s.do(t, jsonRequest(http.MethodPut, path, other, map[string]string{
		"title": "Hijacked", "content": "Hijacked", "image": post["imageUrl"].(string),
	}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("update by non owner = %d", rec.Code)
	}
	rec, _ = s.do(t, jsonRequest(http.MethodDelete, path, other, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("delete by non owner = %d", rec.Code)
	}

	rec, body := s.do(t, jsonRequest(http.MethodPut, path, owner, map[string]string{
		"title": "Edited", "content": "Edited",
	}))
	if rec.Code != http.StatusUnprocessableEntity || body["message"] != "No file picked!" {
		t.Fatalf("update without image = %d %v", rec.Code, body)
	}
}

func TestListPostsPagination(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.signupAndLogin(t, "max@test.com")
	for i := 1; i <= 5; i++ {
		s.createPost(t, token, fmt.Sprintf("Post number %d", i))
	}

	tests := []struct {
		query   string
		wantLen int
		page    float64
	}{
		{"", 2, 1},
		{"?page=3", 1, 3},
		{"?page=4", 0, 4},
		{"?page=abc", 2, 1},
		{"?page=4611686018427387905", 0, 4611686018427387905},
	}
	for _, tt := range tests {
		rec, body := s.do(t, jsonRequest(http.MethodGet, "/feed/posts"+tt.query, token, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", tt.query, rec.Code)
		}
		posts, ok := body["posts"].([]any)
		if !ok || len(posts) != tt.wantLen {
			t.Fatalf("%s: posts = %v, want %d", tt.query, body["posts"], tt.wantLen)
		}
		if body["totalItems"] != float64(5) || body["totalPages"] != float64(3) || body["currentPage"] != tt.page {
			t.Fatalf("%s: unexpected meta %v", tt.query, body)
		}
	}
}

func TestUploadImage(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.signupAndLogin(t, "max@test.com")

	rec, body := s.do(t, multipartRequest(t, http.MethodPut, "/post-image", token, nil, ""))
	if rec.Code != http.StatusOK || body["message"] != "No file provided!" {
		t.Fatalf("no file = %d %v", rec.Code, body)
	}

	rec, body = s.do(t, multipartRequest(t, http.MethodPut, "/post-image", token, nil, "image/jpeg"))
	if rec.Code != http.StatusCreated || !strings.HasPrefix(body["filePath"].(string), "images/") {
		t.Fatalf("upload = %d %v", rec.Code, body)
	}
}

func TestImagesOfOtherUsersSurvive(t *testing.T) {
	s := newTestServer(t, nil)
	_, victimToken := s.signupAndLogin(t, "victim@test.com")
	_, token := s.signupAndLogin(t, "attacker@test.com")
	victimImage := s.createPost(t, victimToken, "Victim post")["imageUrl"].(string)

	// oldPath is no longer honoured by the upload route.
	rec, body := s.do(t, multipartRequest(t, http.MethodPut, "/post-image", token,
		map[string]string{"oldPath": victimImage}, "image/png"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d %v", rec.Code, body)
	}
	if rel := s.images.Released(); len(rel) != 0 {
		t.Fatalf("released = %v, want none", rel)
	}

	// Pointing one's own post at the victim's image is rejected.
	own := s.createPost(t, token, "Attacker post")
	path := "/feed/post/" + own["_id"].(string)
	rec, body = s.do(t, jsonRequest(http.MethodPut, path, token, map[string]string{
		"title": "Attacker post", "content": "Some content", "image": victimImage,
	}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("update with foreign image = %d %v", rec.Code, body)
	}
	rec, body = s.do(t, jsonRequest(http.MethodPut, path, token, map[string]string{
		"title": "Attacker post", "content": "Some content", "image": "images/made-up.png",
	}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("update with unknown image = %d %v", rec.Code, body)
	}

	rec, _ = s.do(t, jsonRequest(http.MethodDelete, path, token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	rel := s.images.Released()
	if len(rel) != 1 || rel[0] != own["imageUrl"].(string) {
		t.Fatalf("released = %v, want only %s", rel, own["imageUrl"])
	}
	for _, r := range rel {
		if r == victimImage {
			t.Fatalf("victim image %s was released", victimImage)
		}
	}
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (l stubLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.allowed, l.err
}

func TestAuthRateLimit(t *testing.T) {
	s := newTestServer(t, stubLimiter{allowed: false})
	rec, body := s.do(t, jsonRequest(http.MethodPost, "/login", "", map[string]string{"email": "a@b.c", "password": "x"}))
	if rec.Code != http.StatusTooManyRequests || body["code"] != float64(http.StatusTooManyRequests) {
		t.Fatalf("limited login = %d %v", rec.Code, body)
	}

	// Limiter failures let the request through.
	s = newTestServer(t, stubLimiter{err: errors.New("redis down")})
	s.signupAndLogin(t, "max@test.com")
}

func TestUnknownRouteUsesErrorBody(t *testing.T) {
	s := newTestServer(t, nil)
	rec, body := s.do(t, jsonRequest(http.MethodGet, "/nope", "", nil))
	if rec.Code != http.StatusNotFound || body["code"] != float64(http.StatusNotFound) {
		t.Fatalf("unknown route = %d %v", rec.Code, body)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestHealthzReportsUnreadyStore(t *testing.T) {
	e := NewServer(Deps{
		Ready: func(context.Context) error { return errors.New("connection refused") },
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz = %d, want 503", rec.Code)
	}
}
