package identity

import (
	"context"
	"sync"
	"time"
)

const subscriberBuffer = 8

// Auth holds the identity session of one browser and publishes every change
// to its subscribers. Callers may read the Session it returns but must not
// modify it.
type Auth struct {
	client *Client
	now    func() time.Time

	mu      sync.Mutex
	session *Session
	subs    map[int]chan AuthChange
	nextSub int
}

// NewAuth returns an Auth with no session.
func (c *Client) NewAuth() *Auth {
	return &Auth{
		client: c,
		now:    time.Now,
		subs:   make(map[int]chan AuthChange),
	}
}

// Session returns the current session without refreshing it.
func (a *Auth) Session() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// SignInWithPassword signs in and replaces the current session.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password, captchaToken string) (*Session, error) {
	s, err := a.client.SignInWithPassword(ctx, email, password, captchaToken)
	if err != nil {
		return nil, err
	}
	a.set(EventSignedIn, s)
	return s, nil
}

// SignUp registers a user. A nil session means the address must be confirmed
// before signing in; the current session is left unchanged in that case.
func (a *Auth) SignUp(ctx context.Context, params SignUpParams) (*Session, *User, error) {
	s, u, err := a.client.SignUp(ctx, params)
	if err != nil {
		return nil, nil, err
	}
	if s != nil {
		a.set(EventSignedIn, s)
	}
	return s, u, nil
}

// SignOut clears the local session first, then revokes it remotely. The local
// state is gone even when the remote call fails.
func (a *Auth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	previous := a.session
	a.mu.Unlock()

	a.set(EventSignedOut, nil)

	if previous == nil || previous.AccessToken == "" {
		return nil
	}
	return a.client.SignOut(ctx, previous.AccessToken)
}

// Discard drops the local session and publishes SIGNED_OUT without telling
// the identity provider. The remote session stays valid until it expires.
func (a *Auth) Discard() {
	a.set(EventSignedOut, nil)
}

// GetSession returns the current session, refreshing it first when it has
// expired and a refresh token is available. A failed refresh signs out.
func (a *Auth) GetSession(ctx context.Context) (*Session, error) {
	a.mu.Lock()
	current := a.session
	a.mu.Unlock()

	if current == nil || !current.Expired(a.now()) {
		return current, nil
	}
	if current.RefreshToken == "" {
		a.set(EventSignedOut, nil)
		return nil, nil
	}

	refreshed, err := a.client.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		a.set(EventSignedOut, nil)
		return nil, err
	}
	a.set(EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// Restore rebuilds a session from an access token the browser already holds
// and publishes INITIAL_SESSION. An empty or rejected token publishes
// INITIAL_SESSION with no session. A session established while the restore
// was in flight wins: it is kept, published and returned instead.
func (a *Auth) Restore(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return a.settleInitial(nil), nil
	}

	user, err := a.client.GetUser(ctx, accessToken)
	if err != nil {
		a.settleInitial(nil)
		return nil, err
	}

	s := &Session{
		AccessToken: accessToken,
		TokenType:   "bearer",
		User:        *user,
	}
	if exp, ok := TokenExpiry(accessToken); ok {
		s.ExpiresAt = exp.Unix()
	}
	return a.settleInitial(s), nil
}

// settleInitial publishes INITIAL_SESSION with restored, unless a session is
// already current, and returns the session it published.
func (a *Auth) settleInitial(restored *Session) *Session {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		restored = a.session
	}
	a.session = restored
	a.broadcast(AuthChange{Event: EventInitialSession, Session: restored})
	return restored
}

// Subscribe registers for session changes. The returned function removes the
// subscription and closes the channel; calling it more than once is safe.
// Delivery never blocks: a subscriber whose buffer is full misses the event.
func (a *Auth) Subscribe() (<-chan AuthChange, func()) {
	ch := make(chan AuthChange, subscriberBuffer)

	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

func (a *Auth) set(event Event, s *Session) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.session = s
	a.broadcast(AuthChange{Event: event, Session: s})
}

// broadcast delivers change to every subscriber. Callers hold a.mu.
func (a *Auth) broadcast(change AuthChange) {
	for _, ch := range a.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
