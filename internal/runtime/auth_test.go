package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func protected(t *testing.T) (*echo.Echo, echo.HandlerFunc) {
	t.Helper()
	e := echo.New()
	h := func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("user_id").(string))
	}
	return e, EchoAuthMiddleware(testSecret)(h)
}

func TestAuthMiddlewareBearer(t *testing.T) {
	e, h := protected(t)
	tok, err := SignJWT("user-1", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Body.String() != "user-1" {
		t.Fatalf("subject not propagated: %q", rec.Body.String())
	}
	if sub, ok := SubjectFromContext(c.Request().Context()); !ok || sub != "user-1" {
		t.Fatalf("subject missing from context: %q %v", sub, ok)
	}
}

func TestAuthMiddlewareCookie(t *testing.T) {
	e, h := protected(t)
	tok, _ := SignJWT("user-2", testSecret, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: tok})
	rec := httptest.NewRecorder()

	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Body.String() != "user-2" {
		t.Fatalf("unexpected subject: %q", rec.Body.String())
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	e, h := protected(t)

	// no token
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := h(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}

	// wrong secret
	tok, _ := SignJWT("user-1", []byte("other-secret"), time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	err = h(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %v", err)
	}

	// expired token
	tok, _ = SignJWT("user-1", testSecret, -time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	err = h(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %v", err)
	}
}
