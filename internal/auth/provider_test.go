package auth

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bodhi-industries/eventhub/internal/identity"
	"github.com/bodhi-industries/eventhub/internal/legacyapi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	legacy   *fakeLegacy
	identity *fakeIdentity
	provider *Provider
	page     *fakePage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		legacy:   &fakeLegacy{loginResp: organizerResponse()},
		identity: &fakeIdentity{signInResp: userSession("access-1")},
		page:     &fakePage{},
	}
	h.provider = NewProvider(Deps{
		Legacy:   h.legacy,
		Identity: h.identity,
		Captcha:  NewCaptchaGuard(time.Minute),
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(h.provider.Close)
	return h
}

func TestLogin_OrganizerUsesLegacyOnly(t *testing.T) {
	h := newHarness(t)

	user, err := h.provider.Login(t.Context(), h.page, LoginRequest{
		Email: "org@example.com", Password: "secret1", Kind: KindOrganizer, CaptchaToken: "c1",
	})
	require.NoError(t, err)

	assert.Equal(t, RoleOrganizer, user.Role)
	assert.Equal(t, "17", user.ID)
	assert.Equal(t, 2023, user.CreatedAt.Year())
	assert.Equal(t, []string{"login"}, h.legacy.Calls())
	assert.Equal(t, []string{"c1"}, h.legacy.Captchas())
	assert.Empty(t, h.identity.Calls())
	assert.Equal(t, []string{DashboardPath}, h.page.navigated)
	assert.Equal(t, "legacy-token", h.page.token)

	kind, ok := h.provider.Kind()
	assert.True(t, ok)
	assert.Equal(t, KindOrganizer, kind)
	assert.Nil(t, h.provider.Session())
}

func TestLogin_OrganizerWithoutTokenForgetsCookie(t *testing.T) {
	h := newHarness(t)
	h.legacy.loginResp = &legacyapi.AuthResponse{User: legacyapi.User{ID: "17", Email: "org@example.com"}}

	_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "org@example.com", Password: "secret1", Kind: KindOrganizer, CaptchaToken: "c1"})
	require.NoError(t, err)
	assert.True(t, h.page.forgotten)
	assert.Empty(t, h.page.token)
}

func TestLogin_UserUsesIdentityOnly(t *testing.T) {
	h := newHarness(t)

	user, err := h.provider.Login(t.Context(), h.page, LoginRequest{
		Email: "jane@example.com", Password: "secret1", Kind: KindUser, CaptchaToken: "c1",
	})
	require.NoError(t, err)

	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "Jane", user.Name)
	assert.Empty(t, h.legacy.Calls())
	assert.Equal(t, []string{"sign_in"}, h.identity.Calls())

	// The cookie carries exactly the provider's access token.
	assert.Equal(t, h.identity.signInResp.AccessToken, h.page.token)
	assert.Equal(t, time.Unix(h.identity.signInResp.ExpiresAt, 0), h.page.expiresAt)
	assert.Equal(t, []string{DashboardPath}, h.page.navigated)
	assert.Same(t, h.identity.signInResp, h.provider.Session())

	flashes := h.provider.TakeFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, FlashSuccess, flashes[0].Kind)
	assert.Empty(t, h.provider.TakeFlashes())
}

func TestLogin_UserMissingNameDefaultsEmpty(t *testing.T) {
	h := newHarness(t)
	s := userSession("access-1")
	s.User.UserMetadata = nil
	h.identity.signInResp = s

	user, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "jane@example.com", Password: "secret1", CaptchaToken: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "", user.Name)
}

func TestLogin_IdentityMessageCategories(t *testing.T) {
	tests := []struct {
		message  string
		category Category
	}{
		{"Email not confirmed", CategoryEmailNotConfirmed},
		{"Invalid login credentials", CategoryInvalidCredentials},
		{"Rate limit exceeded", CategoryRateLimited},
		{"Database exploded", CategoryUnknown},
		{"email not confirmed", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			h := newHarness(t)
			h.identity.signInErr = &identity.Error{Status: http.StatusBadRequest, Message: tt.message}

			_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "jane@example.com", Password: "secret1", Kind: KindUser, CaptchaToken: "c1"})

			var rejected *RejectedError
			require.True(t, errors.As(err, &rejected))
			assert.Equal(t, tt.category, rejected.Category)
			assert.Equal(t, tt.message, rejected.Message)
			assert.Empty(t, h.page.navigated)
			assert.Empty(t, h.page.token)
			assert.Nil(t, h.provider.User())
		})
	}
}

func TestLogin_TransportFailureIsNetworkError(t *testing.T) {
	h := newHarness(t)
	h.identity.signInErr = &identity.Error{Message: "dial tcp: connection refused"}

	_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "jane@example.com", Password: "secret1", Kind: KindUser, CaptchaToken: "c1"})
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestLogin_LegacyErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		rejected Category
		network  bool
	}{
		{"unauthorized", &legacyapi.Error{Op: "login", Status: 401, Message: "Invalid credentials"}, CategoryInvalidCredentials, false},
		{"forbidden", &legacyapi.Error{Op: "login", Status: 403, Message: "Forbidden"}, CategoryInvalidCredentials, false},
		{"throttled", &legacyapi.Error{Op: "login", Status: 429, Message: "Slow down"}, CategoryRateLimited, false},
		{"conflict", &legacyapi.Error{Op: "login", Status: 409, Message: "Email taken"}, CategoryUnknown, false},
		{"server", &legacyapi.Error{Op: "login", Status: 502, Message: "Bad Gateway"}, "", true},
		{"transport", &legacyapi.Error{Op: "login", Message: "timeout"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.legacy.loginErr = tt.err

			_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "org@example.com", Password: "secret1", Kind: KindOrganizer, CaptchaToken: "c1"})
			require.Error(t, err)

			if tt.network {
				var netErr *NetworkError
				assert.True(t, errors.As(err, &netErr))
				return
			}
			var rejected *RejectedError
			require.True(t, errors.As(err, &rejected))
			assert.Equal(t, tt.rejected, rejected.Category)
		})
	}
}

func TestLogin_CaptchaRequiredAndSingleUse(t *testing.T) {
	h := newHarness(t)

	_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "jane@example.com", Password: "secret1"})
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "captchaToken", validation.Field)
	assert.Empty(t, h.identity.Calls())

	_, err = h.provider.Login(t.Context(), h.page, LoginRequest{Email: "jane@example.com", Password: "secret1", CaptchaToken: "same"})
	require.NoError(t, err)

	_, err = h.provider.Login(t.Context(), h.page, LoginRequest{Email: "jane@example.com", Password: "secret1", CaptchaToken: "same"})
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, []string{"sign_in"}, h.identity.Calls())
}

func TestLogin_OrganizerReplacesUserSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "jane@example.com", Password: "secret1", Kind: KindUser, CaptchaToken: "c1"})
	require.NoError(t, err)

	_, err = h.provider.Login(t.Context(), h.page, LoginRequest{Email: "org@example.com", Password: "secret1", Kind: KindOrganizer, CaptchaToken: "c2"})
	require.NoError(t, err)

	// Only the user login reached the identity provider; the end-user
	// session was dropped locally.
	assert.Equal(t, []string{"sign_in"}, h.identity.Calls())
	assert.Equal(t, 1, h.identity.Discarded())
	assert.Nil(t, h.provider.Session())
	assert.Equal(t, RoleOrganizer, h.provider.User().Role)
	assert.Equal(t, "legacy-token", h.page.token)
}

func TestLogout_UserClearsStateEvenOnFailure(t *testing.T) {
	h := newHarness(t)
	_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "jane@example.com", Password: "secret1", CaptchaToken: "c1"})
	require.NoError(t, err)
	h.provider.TakeFlashes()
	h.identity.signOutErr = errors.New("network down")

	err = h.provider.Logout(t.Context(), h.page)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Nil(t, h.provider.User())
	assert.Nil(t, h.provider.Session())
	assert.False(t, h.provider.Authenticated())
	assert.True(t, h.page.forgotten)
	assert.Equal(t, HomePath, h.page.navigated[len(h.page.navigated)-1])
	assert.Empty(t, h.legacy.Calls())

	flashes := h.provider.TakeFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, FlashError, flashes[0].Kind)
}

func TestLogout_OrganizerUsesLegacy(t *testing.T) {
	h := newHarness(t)
	_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "org@example.com", Password: "secret1", Kind: KindOrganizer, CaptchaToken: "c1"})
	require.NoError(t, err)

	require.NoError(t, h.provider.Logout(t.Context(), h.page))
	assert.Equal(t, []string{"login", "logout"}, h.legacy.Calls())
	assert.Equal(t, "legacy-token", h.legacy.logoutToken)
	assert.Empty(t, h.identity.Calls())
	assert.Nil(t, h.provider.User())
	assert.True(t, h.page.forgotten)
}

func TestLogout_Anonymous(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.provider.Logout(t.Context(), h.page))
	assert.Equal(t, []string{"sign_out"}, h.identity.Calls())
	assert.Equal(t, []string{HomePath}, h.page.navigated)
}

func TestRegister_UserPendingConfirmation(t *testing.T) {
	h := newHarness(t)
	h.identity.signUpUser = &identity.User{ID: "user-2", Email: "new@example.com"}

	result, err := h.provider.Register(t.Context(), h.page, RegisterRequest{
		Name: "New", Email: "new@example.com", Password: "secret1", Kind: KindUser, CaptchaToken: "c1",
	})
	require.NoError(t, err)

	assert.True(t, result.Pending)
	assert.Nil(t, h.provider.User())
	assert.Empty(t, h.page.token)
	assert.False(t, h.page.forgotten)
	assert.Empty(t, h.page.navigated)

	flashes := h.provider.TakeFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, FlashInfo, flashes[0].Kind)
}

func TestRegister_UserAutoConfirmed(t *testing.T) {
	h := newHarness(t)
	h.identity.signUpResp = userSession("access-2")

	result, err := h.provider.Register(t.Context(), h.page, RegisterRequest{
		Name: "Jane", Email: "jane@example.com", Password: "secret1", Kind: KindUser, CaptchaToken: "c1",
	})
	require.NoError(t, err)
	assert.False(t, result.Pending)
	assert.Equal(t, "access-2", h.page.token)
	assert.Equal(t, []string{DashboardPath}, h.page.navigated)
}

func TestRegister_Organizer(t *testing.T) {
	h := newHarness(t)

	result, err := h.provider.Register(t.Context(), h.page, RegisterRequest{
		Name: "Org", Email: "org@example.com", Password: "secret1", Kind: KindOrganizer, CaptchaToken: "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, RoleOrganizer, result.User.Role)
	assert.Equal(t, []string{"register"}, h.legacy.Calls())
	assert.Equal(t, []string{"c1"}, h.legacy.Captchas())
	assert.Empty(t, h.identity.Calls())
	assert.Equal(t, []string{DashboardPath}, h.page.navigated)
}

func TestStart_RestoresUserAndBecomesReady(t *testing.T) {
	h := newHarness(t)
	h.identity.restore = userSession("restored")

	assert.True(t, h.provider.Loading())
	h.provider.Start(t.Context(), "restored")

	select {
	case <-h.provider.Ready():
	case <-time.After(time.Second):
		t.Fatal("provider never became ready")
	}
	assert.False(t, h.provider.Loading())
	require.NotNil(t, h.provider.User())
	assert.Equal(t, "user-1", h.provider.User().ID)
	assert.Equal(t, "restored", h.provider.Session().AccessToken)

	// A second Start is ignored.
	h.provider.Start(t.Context(), "other")
	assert.Equal(t, []string{"restore"}, h.identity.Calls())
}

func TestStart_FailedRestoreStillReady(t *testing.T) {
	h := newHarness(t)
	h.identity.restoreErr = errors.New("bad token")

	h.provider.Start(t.Context(), "stale")
	<-h.provider.Ready()
	assert.False(t, h.provider.Authenticated())
}

func TestListener_SignedOutClearsUser(t *testing.T) {
	h := newHarness(t)
	h.provider.Start(t.Context(), "")
	<-h.provider.Ready()

	_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "jane@example.com", Password: "secret1", CaptchaToken: "c1"})
	require.NoError(t, err)

	// Token expired elsewhere: the identity stream reports sign-out.
	h.identity.publish(identity.EventSignedOut, nil)
	require.Eventually(t, func() bool { return !h.provider.Authenticated() }, time.Second, 5*time.Millisecond)
}

func TestClose_IgnoresLaterEvents(t *testing.T) {
	h := newHarness(t)
	h.provider.Start(t.Context(), "")
	<-h.provider.Ready()

	h.provider.Close()
	h.provider.Close()

	h.provider.apply(identity.AuthChange{Event: identity.EventSignedIn, Session: userSession("late")})
	assert.Nil(t, h.provider.Session())
	assert.Nil(t, h.provider.User())

	h.identity.mu.Lock()
	remaining := len(h.identity.subs)
	h.identity.mu.Unlock()
	assert.Equal(t, 0, remaining)
}

func TestRefreshProfile(t *testing.T) {
	h := newHarness(t)
	_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "org@example.com", Password: "secret1", Kind: KindOrganizer, CaptchaToken: "c1"})
	require.NoError(t, err)

	h.legacy.meResp = &legacyapi.User{ID: "17", Email: "org@example.com", Name: "Renamed Org", Role: "organizer"}
	require.NoError(t, h.provider.RefreshProfile(t.Context()))
	assert.Equal(t, "Renamed Org", h.provider.User().Name)
	assert.Equal(t, 2023, h.provider.User().CreatedAt.Year())

	h.legacy.meErr = &legacyapi.Error{Op: "me", Status: 500, Message: "boom"}
	require.Error(t, h.provider.RefreshProfile(t.Context()))
	assert.Equal(t, "Renamed Org", h.provider.User().Name)
}

func TestRefreshProfile_UserIsNoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.provider.RefreshProfile(t.Context()))
	assert.Empty(t, h.legacy.Calls())
}

func TestLiveSession(t *testing.T) {
	h := newHarness(t)
	assert.Nil(t, h.provider.LiveSession(t.Context()))

	_, err := h.provider.Login(t.Context(), h.page, LoginRequest{Email: "jane@example.com", Password: "secret1", CaptchaToken: "c1"})
	require.NoError(t, err)
	assert.NotNil(t, h.provider.LiveSession(t.Context()))
	assert.NotContains(t, h.identity.Calls(), "get_session")
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindUser, kind)

	kind, err = ParseKind(" Organizer ")
	require.NoError(t, err)
	assert.Equal(t, KindOrganizer, kind)

	_, err = ParseKind("admin")
	assert.Error(t, err)
}

func TestRejectedErrorUserMessage(t *testing.T) {
	assert.Equal(t, "Invalid email or password", (&RejectedError{Category: CategoryInvalidCredentials}).UserMessage())
	assert.Equal(t, "Email already registered", (&RejectedError{Category: CategoryUnknown, Message: "Email already registered"}).UserMessage())
	assert.Equal(t, "Authentication failed", (&RejectedError{Category: CategoryUnknown}).UserMessage())
}
