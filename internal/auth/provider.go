// Package auth holds the per-browser Auth Context: the current user, a read
// reference to the identity session, and the login, register and logout
// operations that dispatch to the identity provider (end users) or the
// legacy backend (organizers).
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/bodhi-industries/eventhub/internal/identity"
	"github.com/bodhi-industries/eventhub/internal/legacyapi"
	"github.com/bodhi-industries/eventhub/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	DashboardPath = "/dashboard"
	HomePath      = "/"
)

// Page is the request-scoped view of the browser a provider operation acts
// on: where to go next and what to do with the session cookie.
type Page interface {
	Navigate(path string)
	PersistToken(accessToken string, expiresAt time.Time) error
	ForgetToken()
}

// LegacyBackend is the subset of the legacy backend used for organizers.
type LegacyBackend interface {
	Login(ctx context.Context, email, password, captchaToken string) (*legacyapi.AuthResponse, error)
	Register(ctx context.Context, name, email, password, captchaToken string) (*legacyapi.AuthResponse, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*legacyapi.User, error)
}

// IdentitySession is one browser's handle on the identity provider.
type IdentitySession interface {
	SignInWithPassword(ctx context.Context, email, password, captchaToken string) (*identity.Session, error)
	SignUp(ctx context.Context, params identity.SignUpParams) (*identity.Session, *identity.User, error)
	SignOut(ctx context.Context) error
	// Discard forgets the local session without a remote call.
	Discard()
	GetSession(ctx context.Context) (*identity.Session, error)
	Restore(ctx context.Context, accessToken string) (*identity.Session, error)
	Subscribe() (<-chan identity.AuthChange, func())
}

type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
	FlashInfo    FlashKind = "info"
)

// Flash is a toast to show on the next rendered page.
type Flash struct {
	Kind    FlashKind
	Message string
}

type LoginRequest struct {
	Email        string
	Password     string
	Kind         Kind
	CaptchaToken string
}

type RegisterRequest struct {
	Name         string
	Email        string
	Password     string
	Kind         Kind
	CaptchaToken string
}

// RegisterResult reports a registration. Pending means the identity provider
// is waiting for email confirmation and nobody is signed in yet.
type RegisterResult struct {
	User    *User
	Pending bool
}

type Deps struct {
	Legacy   LegacyBackend
	Identity IdentitySession
	Captcha  *CaptchaGuard
	Logger   zerolog.Logger
}

// Provider is the Auth Context of one browser session. At most one identity
// is current: an organizer login replaces an end-user session and vice versa.
// Remote calls run outside the lock; when two operations race, the last
// response to land wins.
type Provider struct {
	legacy   LegacyBackend
	identity IdentitySession
	captcha  *CaptchaGuard
	logger   zerolog.Logger
	now      func() time.Time

	mu          sync.Mutex
	user        *User
	session     *identity.Session
	legacyToken string
	loading     bool
	started     bool
	mounted     bool
	flashes     []Flash

	ready       chan struct{}
	readyOnce   sync.Once
	closeOnce   sync.Once
	unsubscribe func()
}

func NewProvider(deps Deps) *Provider {
	captcha := deps.Captcha
	if captcha == nil {
		captcha = NewCaptchaGuard(10 * time.Minute)
	}
	return &Provider{
		legacy:   deps.Legacy,
		identity: deps.Identity,
		captcha:  captcha,
		logger:   deps.Logger,
		now:      time.Now,
		loading:  true,
		ready:    make(chan struct{}),
	}
}

// Start restores an end-user session from accessToken in the background and
// subscribes to identity changes until Close. Only the first call has an
// effect. Organizer sessions are never restored.
func (p *Provider) Start(ctx context.Context, accessToken string) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mounted = true
	p.mu.Unlock()

	changes, unsubscribe := p.identity.Subscribe()
	p.mu.Lock()
	p.unsubscribe = unsubscribe
	p.mu.Unlock()
	go p.listen(changes)

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer p.markReady()
		s, err := p.identity.Restore(ctx, accessToken)
		if err != nil {
			p.logger.Debug().Err(err).Msg("session restore failed")
			return
		}
		// Apply directly so the state is settled before Ready closes.
		if s != nil {
			p.apply(identity.AuthChange{Event: identity.EventInitialSession, Session: s})
		}
	}()
}

// Ready is closed once the initial restore has finished.
func (p *Provider) Ready() <-chan struct{} { return p.ready }

func (p *Provider) markReady() {
	p.readyOnce.Do(func() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
		close(p.ready)
	})
}

// Close stops listening for identity changes. It is safe to call more than
// once; changes that arrive afterwards are ignored.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.mounted = false
		unsubscribe := p.unsubscribe
		p.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		p.markReady()
	})
}

func (p *Provider) listen(changes <-chan identity.AuthChange) {
	for change := range changes {
		p.apply(change)
	}
}

func (p *Provider) apply(change identity.AuthChange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.mounted {
		return
	}

	organizer := p.user != nil && p.user.Role != RoleUser
	if change.Session == nil {
		p.session = nil
		if !organizer {
			p.user = nil
		}
		return
	}
	if organizer {
		// An organizer is signed in; a late identity event must not replace it.
		return
	}
	p.session = change.Session
	p.user = userFromIdentity(change.Session.User)
}

// Login signs in with the authority selected by req.Kind. On success the
// page navigates to the dashboard.
func (p *Provider) Login(ctx context.Context, page Page, req LoginRequest) (*User, error) {
	if err := p.captcha.Consume(req.CaptchaToken); err != nil {
		p.record("login", req.Kind, "invalid")
		return nil, err
	}

	var (
		user *User
		err  error
	)
	switch req.Kind {
	case KindOrganizer:
		var resp *legacyapi.AuthResponse
		resp, err = p.legacy.Login(ctx, req.Email, req.Password, req.CaptchaToken)
		if err != nil {
			err = classifyLegacy("organizer login", err)
			break
		}
		user = p.becomeOrganizer(page, resp)
	default:
		var s *identity.Session
		s, err = p.identity.SignInWithPassword(ctx, req.Email, req.Password, req.CaptchaToken)
		if err != nil {
			err = classifyIdentity("user login", err)
			break
		}
		user = p.becomeUser(page, s)
	}
	if err != nil {
		p.fail("login", req.Kind, err)
		return nil, err
	}

	p.record("login", req.Kind, "success")
	p.logger.Info().Str("user_id", user.ID).Str("kind", string(req.Kind)).Msg("signed in")
	p.flash(FlashSuccess, "Successfully logged in")
	page.Navigate(DashboardPath)
	return user, nil
}

// Register creates an account with the authority selected by req.Kind.
// End users whose address needs confirmation get a Pending result with no
// session, no cookie and no navigation.
func (p *Provider) Register(ctx context.Context, page Page, req RegisterRequest) (*RegisterResult, error) {
	if err := p.captcha.Consume(req.CaptchaToken); err != nil {
		p.record("register", req.Kind, "invalid")
		return nil, err
	}

	switch req.Kind {
	case KindOrganizer:
		resp, err := p.legacy.Register(ctx, req.Name, req.Email, req.Password, req.CaptchaToken)
		if err != nil {
			err = classifyLegacy("organizer register", err)
			p.fail("register", req.Kind, err)
			return nil, err
		}
		user := p.becomeOrganizer(page, resp)
		p.record("register", req.Kind, "success")
		p.flash(FlashSuccess, "Registration successful")
		page.Navigate(DashboardPath)
		return &RegisterResult{User: user}, nil

	default:
		s, u, err := p.identity.SignUp(ctx, identity.SignUpParams{
			Email:        req.Email,
			Password:     req.Password,
			Name:         req.Name,
			CaptchaToken: req.CaptchaToken,
		})
		if err != nil {
			err = classifyIdentity("user register", err)
			p.fail("register", req.Kind, err)
			return nil, err
		}
		if s == nil {
			p.record("register", req.Kind, "pending")
			p.logger.Info().Str("user_id", u.ID).Msg("registration awaiting email confirmation")
			p.flash(FlashInfo, "Please check your email to confirm your account")
			return &RegisterResult{User: userFromIdentity(*u), Pending: true}, nil
		}
		user := p.becomeUser(page, s)
		p.record("register", req.Kind, "success")
		p.flash(FlashSuccess, "Registration successful")
		page.Navigate(DashboardPath)
		return &RegisterResult{User: user}, nil
	}
}

// Logout ends the current identity with the authority that issued it. Local
// state and the cookie are cleared and the page navigates home even when the
// remote call fails; that failure is returned as a *NetworkError.
func (p *Provider) Logout(ctx context.Context, page Page) error {
	p.mu.Lock()
	user := p.user
	token := p.legacyToken
	p.mu.Unlock()

	kind := KindUser
	var remoteErr error
	if user != nil && user.Role != RoleUser {
		kind = KindOrganizer
		remoteErr = p.legacy.Logout(ctx, token)
	} else {
		remoteErr = p.identity.SignOut(ctx)
	}

	p.mu.Lock()
	p.user = nil
	p.session = nil
	p.legacyToken = ""
	p.mu.Unlock()

	page.ForgetToken()
	page.Navigate(HomePath)

	if remoteErr != nil {
		err := &NetworkError{Op: "logout", Err: remoteErr}
		p.record("logout", kind, "error")
		p.logger.Warn().Err(remoteErr).Str("kind", string(kind)).Msg("remote logout failed")
		p.flash(FlashError, "Logout failed")
		return err
	}
	p.record("logout", kind, "success")
	p.flash(FlashSuccess, "Successfully logged out")
	return nil
}

// RefreshProfile re-reads the organizer profile from the legacy backend. It
// does nothing for end users. On failure the in-memory user is kept.
func (p *Provider) RefreshProfile(ctx context.Context) error {
	p.mu.Lock()
	user := p.user
	token := p.legacyToken
	p.mu.Unlock()

	if user == nil || user.Role == RoleUser {
		return nil
	}
	profile, err := p.legacy.Me(ctx, token)
	if err != nil {
		return classifyLegacy("organizer profile", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil || p.user.ID != user.ID {
		return nil
	}
	refreshed := userFromLegacy(*profile)
	if refreshed.ID == "" {
		refreshed.ID = user.ID
	}
	if refreshed.CreatedAt.IsZero() {
		refreshed.CreatedAt = user.CreatedAt
	}
	p.user = refreshed
	return nil
}

func (p *Provider) becomeOrganizer(page Page, resp *legacyapi.AuthResponse) *User {
	user := userFromLegacy(resp.User)

	p.mu.Lock()
	hadSession := p.session != nil
	p.user = user
	p.session = nil
	p.legacyToken = resp.Token
	p.mu.Unlock()

	// The identity provider is never contacted on the organizer path.
	if hadSession {
		p.identity.Discard()
	}

	if resp.Token == "" {
		page.ForgetToken()
		return user
	}
	if err := page.PersistToken(resp.Token, time.Time{}); err != nil {
		p.logger.Warn().Err(err).Msg("failed to write session cookie")
	}
	return user
}

func (p *Provider) becomeUser(page Page, s *identity.Session) *User {
	user := userFromIdentity(s.User)

	p.mu.Lock()
	p.user = user
	p.session = s
	p.legacyToken = ""
	p.mu.Unlock()

	expiresAt, _ := s.Expiry()
	if err := page.PersistToken(s.AccessToken, expiresAt); err != nil {
		p.logger.Warn().Err(err).Msg("failed to write session cookie")
	}
	return user
}

func (p *Provider) fail(action string, kind Kind, err error) {
	outcome := "error"
	event := p.logger.Warn()
	if _, ok := err.(*RejectedError); ok {
		outcome = "rejected"
		event = p.logger.Info()
	}
	p.record(action, kind, outcome)
	event.Err(err).Str("action", action).Str("kind", string(kind)).Msg("authentication failed")
}

func (p *Provider) record(action string, kind Kind, outcome string) {
	if kind == "" {
		kind = KindUser
	}
	metrics.AuthAttemptsTotal.WithLabelValues(action, string(kind), outcome).Inc()
}

func (p *Provider) flash(kind FlashKind, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flashes = append(p.flashes, Flash{Kind: kind, Message: message})
}

// TakeFlashes returns and clears pending toasts.
func (p *Provider) TakeFlashes() []Flash {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.flashes
	p.flashes = nil
	return out
}

// User returns a copy of the current user, or nil.
func (p *Provider) User() *User {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

// Session returns the identity session reference, or nil. It must not be
// modified.
func (p *Provider) Session() *identity.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// LiveSession returns the identity session after refreshing it if it has
// expired. It returns nil when there is no usable session.
func (p *Provider) LiveSession(ctx context.Context) *identity.Session {
	p.mu.Lock()
	current := p.session
	p.mu.Unlock()
	if current == nil {
		return nil
	}
	if !current.Expired(p.now()) {
		return current
	}
	s, err := p.identity.GetSession(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("session refresh failed")
		return nil
	}
	return s
}

func (p *Provider) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

func (p *Provider) Authenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user != nil || p.session != nil
}

// Kind returns the kind of the current identity; ok is false when nobody is
// signed in.
func (p *Provider) Kind() (kind Kind, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.user != nil && p.user.Role != RoleUser:
		return KindOrganizer, true
	case p.user != nil || p.session != nil:
		return KindUser, true
	default:
		return "", false
	}
}
