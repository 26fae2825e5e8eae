package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bodhi-industries/eventhub/internal/auth"
	"github.com/bodhi-industries/eventhub/internal/identity"
	"github.com/bodhi-industries/eventhub/internal/session"
	"github.com/rs/zerolog"
)

// PasswordResetter asks the identity provider to email reset instructions.
type PasswordResetter interface {
	ResetPasswordForEmail(ctx context.Context, email, redirectTo, captchaToken string) error
}

// AuthPages serves the login, register, forgot-password and logout routes.
type AuthPages struct {
	Site     *Site
	Bridge   *session.Bridge
	Resetter PasswordResetter
	// ResetRedirect is where the reset email links back to; empty lets the
	// identity provider use its configured site URL.
	ResetRedirect string
}

func NewAuthPages(site *Site, bridge *session.Bridge, resetter PasswordResetter, resetRedirect string) *AuthPages {
	return &AuthPages{Site: site, Bridge: bridge, Resetter: resetter, ResetRedirect: resetRedirect}
}

// authFormView is shared by the login and register templates.
type authFormView struct {
	Register bool
	Form     registerForm
	Errors   FieldErrors
	Message  string
}

const genericAuthFailure = "Authentication failed"

func (h *AuthPages) LoginPage(w http.ResponseWriter, r *http.Request) {
	if alreadySignedIn(r) {
		http.Redirect(w, r, auth.DashboardPath, http.StatusFound)
		return
	}
	h.renderAuth(w, r, http.StatusOK, authFormView{})
}

func (h *AuthPages) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if alreadySignedIn(r) {
		http.Redirect(w, r, auth.DashboardPath, http.StatusFound)
		return
	}
	h.renderAuth(w, r, http.StatusOK, authFormView{Register: true})
}

// Login handles POST /auth/login.
func (h *AuthPages) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderAuth(w, r, http.StatusBadRequest, authFormView{Message: "Invalid form submission"})
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Kind:     r.PostFormValue("kind"),
	}
	view := authFormView{Form: registerForm{Email: form.Email, Kind: form.Kind}}

	kind, kindErr := auth.ParseKind(form.Kind)
	if errs := validateForm(form); errs != nil || kindErr != nil {
		view.Errors = withKindError(errs, kindErr)
		h.renderAuth(w, r, http.StatusUnprocessableEntity, view)
		return
	}

	provider := auth.FromContext(r.Context())
	if provider == nil {
		h.sessionUnavailable(w, r)
		return
	}

	page := newBrowserPage(w, h.Bridge)
	_, err := provider.Login(r.Context(), page, auth.LoginRequest{
		Email:        form.Email,
		Password:     form.Password,
		Kind:         kind,
		CaptchaToken: r.PostFormValue(captchaField),
	})
	if err != nil {
		h.authFailed(w, r, view, err)
		return
	}
	page.redirect(r)
}

// Register handles POST /auth/register. A registration awaiting email
// confirmation re-renders the form with the provider's notice.
func (h *AuthPages) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderAuth(w, r, http.StatusBadRequest, authFormView{Register: true, Message: "Invalid form submission"})
		return
	}
	form := registerForm{
		Name:            strings.TrimSpace(r.PostFormValue("name")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
		Kind:            r.PostFormValue("kind"),
	}
	view := authFormView{
		Register: true,
		Form:     registerForm{Name: form.Name, Email: form.Email, Kind: form.Kind},
	}

	kind, kindErr := auth.ParseKind(form.Kind)
	if errs := validateForm(form); errs != nil || kindErr != nil {
		view.Errors = withKindError(errs, kindErr)
		h.renderAuth(w, r, http.StatusUnprocessableEntity, view)
		return
	}

	provider := auth.FromContext(r.Context())
	if provider == nil {
		h.sessionUnavailable(w, r)
		return
	}

	page := newBrowserPage(w, h.Bridge)
	result, err := provider.Register(r.Context(), page, auth.RegisterRequest{
		Name:         form.Name,
		Email:        form.Email,
		Password:     form.Password,
		Kind:         kind,
		CaptchaToken: r.PostFormValue(captchaField),
	})
	if err != nil {
		h.authFailed(w, r, view, err)
		return
	}
	if result.Pending || !page.redirect(r) {
		h.renderAuth(w, r, http.StatusOK, authFormView{Register: true})
	}
}

// Logout handles POST /auth/logout. The browser always ends up on the home
// page signed out; a failed remote sign-out only produces a toast.
func (h *AuthPages) Logout(w http.ResponseWriter, r *http.Request) {
	provider := auth.FromContext(r.Context())
	if provider == nil {
		h.Bridge.Clear(w)
		http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
		return
	}

	page := newBrowserPage(w, h.Bridge)
	if err := provider.Logout(r.Context(), page); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("logout completed locally only")
	}
	if !page.redirect(r) {
		http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
	}
}

type forgotPasswordView struct {
	Form   forgotPasswordForm
	Errors FieldErrors
}

const resetConfirmation = "Password reset instructions sent to your email"

func (h *AuthPages) ForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	h.Site.render(w, r, http.StatusOK, "forgot_password", h.Site.page(r, "Reset your password", forgotPasswordView{}))
}

// ForgotPassword handles POST /auth/forgot-password. Every well-formed
// request gets the same confirmation so the form cannot be used to probe
// which addresses have accounts.
func (h *AuthPages) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.Site.render(w, r, http.StatusBadRequest, "forgot_password", h.Site.page(r, "Reset your password", forgotPasswordView{}))
		return
	}
	form := forgotPasswordForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	if errs := validateForm(form); errs != nil {
		h.Site.render(w, r, http.StatusUnprocessableEntity, "forgot_password",
			h.Site.page(r, "Reset your password", forgotPasswordView{Form: form, Errors: errs}))
		return
	}

	logger := zerolog.Ctx(r.Context())
	if h.Resetter != nil {
		err := h.Resetter.ResetPasswordForEmail(r.Context(), form.Email, h.ResetRedirect, r.PostFormValue(captchaField))
		switch {
		case errors.Is(err, identity.ErrNotConfigured):
			logger.Debug().Msg("password reset skipped: identity provider not configured")
		case err != nil:
			logger.Warn().Err(err).Msg("password reset request failed")
		}
	}

	page := h.Site.page(r, "Reset your password", forgotPasswordView{})
	page.Flashes = append(page.Flashes, auth.Flash{Kind: auth.FlashSuccess, Message: resetConfirmation})
	h.Site.render(w, r, http.StatusOK, "forgot_password", page)
}

func (h *AuthPages) renderAuth(w http.ResponseWriter, r *http.Request, status int, view authFormView) {
	title := "Sign in"
	if view.Register {
		title = "Sign up"
	}
	h.Site.render(w, r, status, "auth", h.Site.page(r, title, view))
}

// authFailed re-renders the form for a failed provider call.
func (h *AuthPages) authFailed(w http.ResponseWriter, r *http.Request, view authFormView, err error) {
	var (
		validationErr *auth.ValidationError
		rejectedErr   *auth.RejectedError
	)
	status := http.StatusBadGateway
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusUnprocessableEntity
		view.Errors = FieldErrors{validationErr.Field: validationErr.Message}
	case errors.As(err, &rejectedErr):
		status = http.StatusUnauthorized
		if rejectedErr.Category == auth.CategoryRateLimited {
			status = http.StatusTooManyRequests
		}
		view.Message = rejectedErr.UserMessage()
	}

	page := h.Site.page(r, "Sign in", view)
	if view.Register {
		page.Title = "Sign up"
	}
	if status == http.StatusBadGateway {
		page.Flashes = append(page.Flashes, auth.Flash{Kind: auth.FlashError, Message: genericAuthFailure})
	}
	h.Site.render(w, r, status, "auth", page)
}

func (h *AuthPages) sessionUnavailable(w http.ResponseWriter, r *http.Request) {
	zerolog.Ctx(r.Context()).Error().Msg("no auth provider in request context")
	h.Site.render(w, r, http.StatusInternalServerError, "error", h.Site.page(r, "Error", errorView{
		Heading: "Something went wrong",
		Message: "Your session could not be started. Please reload the page.",
	}))
}

func alreadySignedIn(r *http.Request) bool {
	provider := auth.FromContext(r.Context())
	if provider == nil || provider.Loading() {
		return false
	}
	_, ok := provider.Kind()
	return ok
}

func withKindError(errs FieldErrors, kindErr error) FieldErrors {
	if kindErr == nil {
		return errs
	}
	if errs == nil {
		errs = FieldErrors{}
	}
	errs["kind"] = "Choose user or organizer"
	return errs
}
