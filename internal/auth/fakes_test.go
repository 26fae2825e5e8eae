package auth

import (
	"context"
	"sync"
	"time"

	"github.com/bodhi-industries/eventhub/internal/identity"
	"github.com/bodhi-industries/eventhub/internal/legacyapi"
)

type fakeLegacy struct {
	mu          sync.Mutex
	calls       []string
	loginResp   *legacyapi.AuthResponse
	loginErr    error
	registerErr error
	logoutErr   error
	logoutToken string
	meResp      *legacyapi.User
	meErr       error
	captchas    []string
}

func (f *fakeLegacy) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeLegacy) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeLegacy) Login(ctx context.Context, email, password, captchaToken string) (*legacyapi.AuthResponse, error) {
	f.record("login")
	f.mu.Lock()
	f.captchas = append(f.captchas, captchaToken)
	f.mu.Unlock()
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResp, nil
}

func (f *fakeLegacy) Register(ctx context.Context, name, email, password, captchaToken string) (*legacyapi.AuthResponse, error) {
	f.record("register")
	f.mu.Lock()
	f.captchas = append(f.captchas, captchaToken)
	f.mu.Unlock()
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &legacyapi.AuthResponse{
		User:  legacyapi.User{ID: "org-new", Email: email, Name: name, Role: "organizer"},
		Token: "legacy-new",
	}, nil
}

func (f *fakeLegacy) Logout(ctx context.Context, token string) error {
	f.record("logout")
	f.logoutToken = token
	return f.logoutErr
}

func (f *fakeLegacy) Captchas() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.captchas...)
}

func (f *fakeLegacy) Me(ctx context.Context, token string) (*legacyapi.User, error) {
	f.record("me")
	if f.meErr != nil {
		return nil, f.meErr
	}
	return f.meResp, nil
}

// fakeIdentity mimics identity.Auth: it owns a session and publishes changes.
type fakeIdentity struct {
	mu         sync.Mutex
	calls      []string
	session    *identity.Session
	signInResp *identity.Session
	signInErr  error
	signUpResp *identity.Session
	signUpUser *identity.User
	signUpErr  error
	signOutErr error
	restore    *identity.Session
	restoreErr error
	subs       []chan identity.AuthChange
	discarded  int
}

func (f *fakeIdentity) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeIdentity) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeIdentity) publish(event identity.Event, s *identity.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
	for _, ch := range f.subs {
		select {
		case ch <- identity.AuthChange{Event: event, Session: s}:
		default:
		}
	}
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password, captchaToken string) (*identity.Session, error) {
	f.record("sign_in")
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	f.publish(identity.EventSignedIn, f.signInResp)
	return f.signInResp, nil
}

func (f *fakeIdentity) SignUp(ctx context.Context, params identity.SignUpParams) (*identity.Session, *identity.User, error) {
	f.record("sign_up")
	if f.signUpErr != nil {
		return nil, nil, f.signUpErr
	}
	if f.signUpResp != nil {
		f.publish(identity.EventSignedIn, f.signUpResp)
		return f.signUpResp, &f.signUpResp.User, nil
	}
	return nil, f.signUpUser, nil
}

func (f *fakeIdentity) SignOut(ctx context.Context) error {
	f.record("sign_out")
	f.publish(identity.EventSignedOut, nil)
	return f.signOutErr
}

// Discard is local only, so it is counted apart from the remote calls.
func (f *fakeIdentity) Discard() {
	f.mu.Lock()
	f.discarded++
	f.mu.Unlock()
	f.publish(identity.EventSignedOut, nil)
}

func (f *fakeIdentity) Discarded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discarded
}

func (f *fakeIdentity) GetSession(ctx context.Context) (*identity.Session, error) {
	f.record("get_session")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeIdentity) Restore(ctx context.Context, accessToken string) (*identity.Session, error) {
	f.record("restore")
	if f.restoreErr != nil {
		f.publish(identity.EventInitialSession, nil)
		return nil, f.restoreErr
	}
	f.publish(identity.EventInitialSession, f.restore)
	return f.restore, nil
}

func (f *fakeIdentity) Subscribe() (<-chan identity.AuthChange, func()) {
	ch := make(chan identity.AuthChange, 8)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			for i, sub := range f.subs {
				if sub == ch {
					f.subs = append(f.subs[:i], f.subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

type fakePage struct {
	navigated []string
	token     string
	expiresAt time.Time
	forgotten bool
}

func (p *fakePage) Navigate(path string) { p.navigated = append(p.navigated, path) }

func (p *fakePage) PersistToken(accessToken string, expiresAt time.Time) error {
	p.token = accessToken
	p.expiresAt = expiresAt
	p.forgotten = false
	return nil
}

func (p *fakePage) ForgetToken() {
	p.token = ""
	p.forgotten = true
}

func userSession(token string) *identity.Session {
	return &identity.Session{
		AccessToken:  token,
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User: identity.User{
			ID:           "user-1",
			Email:        "jane@example.com",
			UserMetadata: map[string]any{"name": "Jane"},
			CreatedAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func organizerResponse() *legacyapi.AuthResponse {
	return &legacyapi.AuthResponse{
		User:  legacyapi.User{ID: "17", Email: "org@example.com", Name: "Org", Role: "organizer", CreatedAt: "2023-01-02T03:04:05Z"},
		Token: "legacy-token",
	}
}
