package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bodhi-industries/eventhub/internal/api/render"
	"github.com/bodhi-industries/eventhub/internal/auth"
	"github.com/bodhi-industries/eventhub/internal/config"
	"github.com/bodhi-industries/eventhub/internal/identity"
	"github.com/bodhi-industries/eventhub/internal/legacyapi"
	"github.com/bodhi-industries/eventhub/internal/session"
	"github.com/bodhi-industries/eventhub/web"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testCookie   = "eventhub_session"
	goodPassword = "secret1"
)

// fakeBackend stands in for the legacy REST backend.
type fakeBackend struct {
	mu             sync.Mutex
	calls          []string
	listStatus     int
	events         string
	interestStatus int
	interest       []legacyapi.InterestRequest
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)
	b.mu.Unlock()

	switch r.Method + " " + r.URL.Path {
	case "POST /auth/login":
		var in struct{ Password string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != goodPassword {
			writeTestJSON(w, http.StatusUnauthorized, `{"message":"Invalid credentials"}`)
			return
		}
		writeTestJSON(w, http.StatusOK, organizerJSON)
	case "POST /auth/register":
		writeTestJSON(w, http.StatusCreated, organizerJSON)
	case "POST /auth/logout":
		writeTestJSON(w, http.StatusOK, `{}`)
	case "GET /events/", "HEAD /events/":
		b.mu.Lock()
		status, events := b.listStatus, b.events
		b.mu.Unlock()
		if status != 0 {
			writeTestJSON(w, status, `{"message":"backend down"}`)
			return
		}
		if events == "" {
			events = `[]`
		}
		writeTestJSON(w, http.StatusOK, events)
	case "POST /event-detail":
		switch readID(r) {
		case "42":
			writeTestJSON(w, http.StatusOK, `[{"id":42,"event_name":"Launch Party","event_description":"<p>Rockets &amp; <strong>music</strong></p><script>alert(1)</script>","event_date":"2025-03-15T19:00:00Z","venue_address":"Hangar 9","banner_image_url":""}]`)
		case "500":
			writeTestJSON(w, http.StatusInternalServerError, `{"message":"boom"}`)
		default:
			writeTestJSON(w, http.StatusOK, `[]`)
		}
	case "POST /ticket-tiers":
		if readID(r) == "42" {
			writeTestJSON(w, http.StatusOK, `[{"id":1,"tier_name":"General","tier_price":25},{"id":2,"tier_name":"VIP","tier_price":"12.5"}]`)
			return
		}
		writeTestJSON(w, http.StatusInternalServerError, `{"message":"boom"}`)
	case "POST /organizers/interest":
		var in legacyapi.InterestRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.mu.Lock()
		status := b.interestStatus
		if status == 0 {
			b.interest = append(b.interest, in)
		}
		b.mu.Unlock()
		if status != 0 {
			writeTestJSON(w, status, `{"message":"boom"}`)
			return
		}
		writeTestJSON(w, http.StatusCreated, `{}`)
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) setEvents(raw string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = raw
}

func (b *fakeBackend) failList(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listStatus = status
}

func (b *fakeBackend) failInterest(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interestStatus = status
}

func (b *fakeBackend) Interest() []legacyapi.InterestRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]legacyapi.InterestRequest(nil), b.interest...)
}

const organizerJSON = `{"user":{"id":17,"email":"org@example.com","name":"Orbit Org","role":"organizer","createdAt":"2023-05-01T00:00:00Z"},"token":"legacy-token"}`

// fakeIdentity stands in for the GoTrue endpoints under /auth/v1.
type fakeIdentity struct {
	mu        sync.Mutex
	calls     []string
	recovered []string
}

func (f *fakeIdentity) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	switch r.Method + " " + strings.TrimPrefix(r.URL.Path, "/auth/v1") {
	case "POST /token":
		var in struct{ Password string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != goodPassword {
			writeTestJSON(w, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
			return
		}
		writeTestJSON(w, http.StatusOK, userSessionJSON())
	case "POST /signup":
		var in struct{ Email string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		if strings.HasPrefix(in.Email, "pending") {
			writeTestJSON(w, http.StatusOK, `{"id":"u-2","email":"`+in.Email+`"}`)
			return
		}
		writeTestJSON(w, http.StatusOK, userSessionJSON())
	case "POST /logout":
		w.WriteHeader(http.StatusNoContent)
	case "POST /recover":
		var in struct{ Email string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		f.recovered = append(f.recovered, in.Email)
		f.mu.Unlock()
		writeTestJSON(w, http.StatusOK, `{}`)
	case "GET /health":
		writeTestJSON(w, http.StatusOK, `{"name":"GoTrue"}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeIdentity) Recovered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.recovered...)
}

func userSessionJSON() string {
	exp := time.Now().Add(time.Hour).Unix()
	return `{"access_token":"user-token","refresh_token":"refresh-1","token_type":"bearer","expires_in":3600,"expires_at":` +
		strconv.FormatInt(exp, 10) +
		`,"user":{"id":"u-1","email":"ada@example.com","user_metadata":{"name":"Ada"}}}`
}

func readID(r *http.Request) string {
	var in struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	return in.ID
}

func writeTestJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

type testEnv struct {
	site     *Site
	bridge   *session.Bridge
	backend  *fakeBackend
	idp      *fakeIdentity
	legacy   *legacyapi.Client
	identity *identity.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	renderer, err := render.New(web.Templates())
	require.NoError(t, err)

	backend := &fakeBackend{}
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	idp := &fakeIdentity{}
	idpSrv := httptest.NewServer(idp)
	t.Cleanup(idpSrv.Close)

	return &testEnv{
		site: &Site{
			Renderer:       renderer,
			CaptchaSiteKey: "site-key",
			Version:        "test",
			Env:            "test",
		},
		bridge: session.NewBridge(config.SessionConfig{
			CookieName:   testCookie,
			ExpiryPolicy: config.ExpiryFromToken,
			FixedTTL:     time.Hour,
		}),
		backend:  backend,
		idp:      idp,
		legacy:   legacyapi.NewClient(backendSrv.URL),
		identity: identity.NewClient(idpSrv.URL, "anon-key"),
	}
}

// provider returns a started provider with no restored session.
func (e *testEnv) provider(t *testing.T) *auth.Provider {
	t.Helper()
	p := auth.NewProvider(auth.Deps{
		Legacy:   e.legacy,
		Identity: e.identity.NewAuth(),
		Captcha:  auth.NewCaptchaGuard(time.Minute),
		Logger:   zerolog.Nop(),
	})
	p.Start(t.Context(), "")
	t.Cleanup(p.Close)
	select {
	case <-p.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("provider never became ready")
	}
	return p
}

func withProvider(r *http.Request, p *auth.Provider) *http.Request {
	return r.WithContext(auth.WithProvider(r.Context(), p))
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// signInOrganizer logs p in through the login handler and drops the
// resulting toast.
func (e *testEnv) signInOrganizer(t *testing.T, p *auth.Provider) {
	t.Helper()
	values := url.Values{
		"kind":       {"organizer"},
		"email":      {"org@example.com"},
		"password":   {goodPassword},
		captchaField: {"signin-" + t.Name()},
	}
	rec := httptest.NewRecorder()
	NewAuthPages(e.site, e.bridge, e.identity, "").Login(rec, withProvider(postForm("/auth/login", values), p))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	p.TakeFlashes()
}
