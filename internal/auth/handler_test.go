package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-books/internal/app"
	"github.com/odyssey-erp/odyssey-books/internal/auth"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
	_ "github.com/odyssey-erp/odyssey-books/testing"
)

type stubRepo struct {
	users   map[int64]*auth.User
	touched int
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user", httpx.ErrNotFound)
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: user", httpx.ErrNotFound)
}

func (s *stubRepo) Create(_ context.Context, u auth.User) (int64, error) {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return 0, fmt.Errorf("%w: email", httpx.ErrDuplicate)
		}
	}
	id := int64(len(s.users) + 1)
	s.users[id] = &u
	return id, nil
}

func (s *stubRepo) TouchLogin(context.Context, int64) error {
	s.touched++
	return nil
}

type fixture struct {
	handler  *auth.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{users: map[int64]*auth.User{
		1: {ID: 1, Email: "owner@books.test", Name: "Owner", Role: "admin", PasswordHash: string(hash), IsActive: true},
		2: {ID: 2, Email: "gone@books.test", Role: "staff", PasswordHash: string(hash), IsActive: false},
	}}
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	handler := auth.NewHandler(nil, auth.NewService(repo), sessions, shared.NewCSRFManager("csrfsecret"), httpx.NewValidator())
	return &fixture{handler: handler, sessions: sessions, repo: repo, redis: mr}
}

// serve runs fn behind the production session middleware, which commits the
// session before the first byte is written.
func (f *fixture) serve(t *testing.T, fn http.HandlerFunc, method, body string, cookie *http.Cookie) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(method, "/api/auth", strings.NewReader(body))
	if cookie != nil {
		req.AddCookie(cookie)
	}
	var sess *shared.Session
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess = shared.SessionFromContext(r.Context())
		fn(w, r)
	})
	rec := httptest.NewRecorder()
	app.SessionMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)), f.sessions)(capture).ServeHTTP(rec, req)
	require.NotNil(t, sess)
	return rec, sess
}

func sessionCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginStoresRoleInSession(t *testing.T) {
	f := newFixture(t)

	rec, sess := f.serve(t, f.handler.Login, http.MethodPost, `{"email":"Owner@Books.test","password":"correct-horse"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp auth.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Authenticated)
	require.NotEmpty(t, resp.CSRFToken)
	assert.NoError(t, shared.NewCSRFManager("csrfsecret").VerifyToken(context.Background(), sess, resp.CSRFToken))
	assert.NotContains(t, rec.Body.String(), "correct-horse")
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.Equal(t, "1", sess.User())
	assert.Equal(t, "admin", sess.Role())
	assert.Equal(t, 1, f.repo.touched)

	cookie := sessionCookie(rec, f.sessions.CookieName())
	require.NotNil(t, cookie)
	rec, _ = f.serve(t, f.handler.Session, http.MethodGet, "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Authenticated)
	assert.Equal(t, "owner@books.test", resp.User.Email)
}

func TestLoginRejections(t *testing.T) {
	f := newFixture(t)
	for name, tc := range map[string]struct {
		body string
		want int
	}{
		"wrong password": {`{"email":"owner@books.test","password":"wrong-password"}`, http.StatusUnauthorized},
		"unknown user":   {`{"email":"nobody@books.test","password":"correct-horse"}`, http.StatusUnauthorized},
		"inactive user":  {`{"email":"gone@books.test","password":"correct-horse"}`, http.StatusUnauthorized},
		"short password": {`{"email":"owner@books.test","password":"short"}`, http.StatusBadRequest},
		"not json":       {`email=owner`, http.StatusBadRequest},
	} {
		t.Run(name, func(t *testing.T) {
			rec, sess := f.serve(t, f.handler.Login, http.MethodPost, tc.body, nil)
			assert.Equal(t, tc.want, rec.Code)
			assert.Empty(t, sess.User())
		})
	}
	assert.Zero(t, f.repo.touched)
}

func TestLoginWithoutSessionFails(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"owner@books.test","password":"correct-horse"}`))
	rec := httptest.NewRecorder()
	f.handler.Login(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "csrfToken")
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newFixture(t)
	rec, sess := f.serve(t, f.handler.Login, http.MethodPost, `{"email":"owner@books.test","password":"correct-horse"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec, f.sessions.CookieName())
	require.NotNil(t, cookie)
	assert.True(t, f.redis.Exists("books:session:"+sess.ID))

	rec, _ = f.serve(t, f.handler.Logout, http.MethodPost, "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.redis.Exists("books:session:"+sess.ID))

	rec, _ = f.serve(t, f.handler.Session, http.MethodGet, "", cookie)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
}

func TestCSRFTokenIsStable(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.serve(t, f.handler.CSRF, http.MethodGet, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var first map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.NotEmpty(t, first["csrfToken"])

	cookie := sessionCookie(rec, f.sessions.CookieName())
	require.NotNil(t, cookie)
	rec, _ = f.serve(t, f.handler.CSRF, http.MethodGet, "", cookie)
	var second map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first["csrfToken"], second["csrfToken"])
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	svc := auth.NewService(f.repo)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, " Clerk@Books.test ", "Clerk", "long-enough", rbac.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, "clerk@books.test", u.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("long-enough")))

	_, err = svc.CreateUser(ctx, "clerk@books.test", "Clerk", "long-enough", rbac.RoleStaff)
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
	_, err = svc.CreateUser(ctx, "x@books.test", "X", "short", rbac.RoleStaff)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	_, err = svc.CreateUser(ctx, "y@books.test", "Y", "long-enough", rbac.Role("root"))
	assert.ErrorIs(t, err, httpx.ErrValidation)
}
