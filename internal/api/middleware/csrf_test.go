package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCSRFKey = []byte("12345678901234567890123456789012")

func TestCSRFProtection_BlocksMissingToken(t *testing.T) {
	handler := CSRFProtection(testCSRFKey, false)(okHandler())

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, "/auth/login", strings.NewReader("email=a%40b.co"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		res := httptest.NewRecorder()

		handler.ServeHTTP(res, req)

		assert.Equal(t, http.StatusForbidden, res.Code, method)
		assert.Contains(t, res.Body.String(), "Your form has expired", method)
	}
}

func TestCSRFProtection_SafeMethodsPass(t *testing.T) {
	handler := CSRFProtection(testCSRFKey, false)(okHandler())

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(method, "/auth/login", nil))
		assert.Equal(t, http.StatusOK, res.Code, method)
	}
}

func TestCSRFProtection_SetsCookie(t *testing.T) {
	handler := CSRFProtection(testCSRFKey, false)(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	var found *http.Cookie
	for _, c := range res.Result().Cookies() {
		if c.Name == "_gorilla_csrf" {
			found = c
		}
	}
	require.NotNil(t, found, "CSRF cookie not set")
	assert.True(t, found.HttpOnly)
	assert.Equal(t, "/", found.Path)
	assert.Equal(t, http.SameSiteLaxMode, found.SameSite)
}

func TestCSRFProtection_FormRoundTrip(t *testing.T) {
	var token string
	handler := CSRFProtection(testCSRFKey, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = CSRFToken(r)
		w.WriteHeader(http.StatusOK)
	}))

	getRes := httptest.NewRecorder()
	handler.ServeHTTP(getRes, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.NotEmpty(t, token)
	cookies := getRes.Result().Cookies()
	require.NotEmpty(t, cookies)

	form := url.Values{CSRFFieldName(): {token}, "email": {"jane@example.com"}}
	postReq := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		postReq.AddCookie(c)
	}
	postRes := httptest.NewRecorder()
	handler.ServeHTTP(postRes, postReq)

	assert.Equal(t, http.StatusOK, postRes.Code)
}

func TestCSRFProtection_InvalidTokenBlocked(t *testing.T) {
	handler := CSRFProtection(testCSRFKey, false)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("X-CSRF-Token", "invalid-token-12345")
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestCSRFErrorHandler_RendersPage(t *testing.T) {
	res := httptest.NewRecorder()
	csrfErrorHandler(res, httptest.NewRequest(http.MethodPost, "/organizers/interest", nil))

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "text/html; charset=utf-8", res.Header().Get("Content-Type"))
	assert.Contains(t, res.Body.String(), `href="/organizers/interest"`)
}

func TestCSRFFieldName(t *testing.T) {
	assert.Equal(t, "gorilla.csrf.Token", CSRFFieldName())
}
