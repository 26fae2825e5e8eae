package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bodhi-industries/eventhub/internal/auth"
	"github.com/bodhi-industries/eventhub/internal/email"
	"github.com/bodhi-industries/eventhub/internal/legacyapi"
	"github.com/bodhi-industries/eventhub/internal/metrics"
	"github.com/rs/zerolog"
)

// InterestSink stores organizer-interest submissions.
type InterestSink interface {
	SubmitInterest(ctx context.Context, in legacyapi.InterestRequest) error
}

// InterestNotifier tells the operations team about a submission.
type InterestNotifier interface {
	SendOrganizerInterest(ctx context.Context, notice email.InterestNotice) error
}

type InterestPages struct {
	Site     *Site
	Sink     InterestSink
	Notifier InterestNotifier
	now      func() time.Time
}

func NewInterestPages(site *Site, sink InterestSink, notifier InterestNotifier) *InterestPages {
	return &InterestPages{Site: site, Sink: sink, Notifier: notifier, now: time.Now}
}

type interestView struct {
	Form   interestForm
	Errors FieldErrors
}

const (
	interestTitle   = "Partner with EventHub"
	interestThanks  = "Thank you for your interest! We will contact you soon."
	interestFailure = "Failed to submit your information"
)

func (h *InterestPages) Form(w http.ResponseWriter, r *http.Request) {
	h.Site.render(w, r, http.StatusOK, "interest", h.Site.page(r, interestTitle, interestView{}))
}

// Submit handles POST /organizers/interest. A successful submission resets
// the form; the notification email is best effort.
func (h *InterestPages) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.Site.render(w, r, http.StatusBadRequest, "interest", h.Site.page(r, interestTitle, interestView{}))
		return
	}
	form := interestForm{
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		Email:        strings.TrimSpace(r.PostFormValue("email")),
		Organization: strings.TrimSpace(r.PostFormValue("organization")),
		Description:  strings.TrimSpace(r.PostFormValue("description")),
		Phone:        strings.TrimSpace(r.PostFormValue("phone")),
	}
	if errs := validateForm(form); errs != nil {
		metrics.InterestSubmissionsTotal.WithLabelValues("invalid").Inc()
		h.Site.render(w, r, http.StatusUnprocessableEntity, "interest",
			h.Site.page(r, interestTitle, interestView{Form: form, Errors: errs}))
		return
	}

	logger := zerolog.Ctx(r.Context())
	err := h.Sink.SubmitInterest(r.Context(), legacyapi.InterestRequest{
		Name:         form.Name,
		Email:        form.Email,
		Organization: form.Organization,
		Description:  form.Description,
		Phone:        form.Phone,
	})
	if err != nil {
		metrics.InterestSubmissionsTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("organizer interest submission failed")
		page := h.Site.page(r, interestTitle, interestView{Form: form})
		page.Flashes = append(page.Flashes, auth.Flash{Kind: auth.FlashError, Message: interestFailure})
		h.Site.render(w, r, http.StatusBadGateway, "interest", page)
		return
	}
	metrics.InterestSubmissionsTotal.WithLabelValues("success").Inc()
	logger.Info().Str("organization", form.Organization).Msg("organizer interest submitted")

	if h.Notifier != nil {
		notice := email.InterestNotice{
			Name:         form.Name,
			Email:        form.Email,
			Organization: form.Organization,
			Description:  form.Description,
			Phone:        form.Phone,
			SubmittedAt:  h.now(),
		}
		if err := h.Notifier.SendOrganizerInterest(r.Context(), notice); err != nil {
			logger.Warn().Err(err).Msg("organizer interest notification failed")
		}
	}

	page := h.Site.page(r, interestTitle, interestView{})
	page.Flashes = append(page.Flashes, auth.Flash{Kind: auth.FlashSuccess, Message: interestThanks})
	h.Site.render(w, r, http.StatusOK, "interest", page)
}
