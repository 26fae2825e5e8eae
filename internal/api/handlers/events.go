package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/bodhi-industries/eventhub/internal/api/render"
	"github.com/bodhi-industries/eventhub/internal/config"
	"github.com/bodhi-industries/eventhub/internal/legacyapi"
	"github.com/bodhi-industries/eventhub/internal/sanitize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// EventSource is the part of the legacy backend that serves event data.
type EventSource interface {
	ListEvents(ctx context.Context) ([]legacyapi.Event, error)
	EventDetail(ctx context.Context, id string) (*legacyapi.Event, error)
	TicketTiers(ctx context.Context, eventID string) ([]legacyapi.TicketTier, error)
}

type EventsPages struct {
	Site    *Site
	Events  EventSource
	Pages   config.PagesConfig
	BaseURL string
}

func NewEventsPages(site *Site, events EventSource, pages config.PagesConfig, baseURL string) *EventsPages {
	return &EventsPages{Site: site, Events: events, Pages: pages, BaseURL: strings.TrimRight(baseURL, "/")}
}

type eventCard struct {
	Name       string
	Date       string
	Venue      string
	BannerURL  string
	DetailsURL string
}

type eventsView struct {
	Failed bool
	Events []eventCard
}

// List serves GET /events.
func (h *EventsPages) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.Events.ListEvents(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to fetch events")
		h.Site.render(w, r, http.StatusBadGateway, "events", h.Site.page(r, "Events", eventsView{Failed: true}))
		return
	}

	view := eventsView{Events: make([]eventCard, 0, len(events))}
	for _, e := range events {
		if e.ID == "" {
			continue
		}
		view.Events = append(view.Events, eventCard{
			Name:       sanitize.Text(e.EventName),
			Date:       e.EventDate,
			Venue:      sanitize.Text(e.VenueAddress),
			BannerURL:  h.bannerURL(e.BannerImageURL),
			DetailsURL: "/event-details/" + url.PathEscape(e.ID.String()),
		})
	}
	h.Site.render(w, r, http.StatusOK, "events", h.Site.page(r, "Events", view))
}

type tierView struct {
	Name        string
	Price       string
	PurchaseURL string
}

type eventDetailsView struct {
	Name        string
	Date        string
	Venue       string
	BannerURL   string
	Description template.HTML
	Tiers       []tierView
	JSONLD      template.JS
}

// Details serves GET /event-details/{id}. The event and its ticket tiers are
// fetched concurrently; a failed tier fetch shows the event without tickets.
func (h *EventsPages) Details(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	logger := zerolog.Ctx(r.Context())
	if id == "" {
		h.unavailable(w, r, http.StatusNotFound)
		return
	}

	var (
		event *legacyapi.Event
		tiers []legacyapi.TicketTier
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		event, err = h.Events.EventDetail(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		tiers, err = h.Events.TicketTiers(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn().Err(err).Str("event_id", id).Msg("failed to fetch ticket tiers")
			}
			tiers = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, legacyapi.ErrIncompleteEvent) || legacyapi.StatusOf(err) == http.StatusNotFound {
			status = http.StatusNotFound
			logger.Info().Str("event_id", id).Msg("event data is incomplete")
		} else {
			logger.Error().Err(err).Str("event_id", id).Msg("failed to fetch event")
		}
		h.unavailable(w, r, status)
		return
	}

	view := h.detailsView(event, tiers)
	h.Site.render(w, r, http.StatusOK, "event_details", h.Site.page(r, view.Name, view))
}

func (h *EventsPages) detailsView(event *legacyapi.Event, tiers []legacyapi.TicketTier) eventDetailsView {
	eventID := event.ID.String()
	view := eventDetailsView{
		Name:        sanitize.Text(event.EventName),
		Date:        event.EventDate,
		Venue:       sanitize.Text(event.VenueAddress),
		BannerURL:   h.bannerURL(event.BannerImageURL),
		Description: sanitize.Description(event.EventDescription),
	}

	schema := render.EventSchema{
		Name:        view.Name,
		Description: sanitize.Text(event.EventDescription),
		StartDate:   event.EventDate,
		Venue:       view.Venue,
		Image:       view.BannerURL,
		URL:         h.BaseURL + "/event-details/" + url.PathEscape(eventID),
	}
	for _, t := range tiers {
		tier := tierView{
			Name:        sanitize.Text(t.TierName),
			Price:       render.FormatPrice(t.TierPrice.String()),
			PurchaseURL: h.purchaseURL(eventID, t.ID.String()),
		}
		view.Tiers = append(view.Tiers, tier)
		schema.Offers = append(schema.Offers, render.OfferSchema{
			Name:  tier.Name,
			Price: t.TierPrice.String(),
			URL:   tier.PurchaseURL,
		})
	}

	if js, err := render.EventJSONLD(schema); err == nil {
		view.JSONLD = js
	}
	return view
}

func (h *EventsPages) unavailable(w http.ResponseWriter, r *http.Request, status int) {
	h.Site.render(w, r, status, "event_unavailable", h.Site.page(r, "Event unavailable", nil))
}

func (h *EventsPages) bannerURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h.Pages.DefaultBannerURL
	}
	return raw
}

// purchaseURL fills the {event} and {tier} placeholders of the configured
// purchase link.
func (h *EventsPages) purchaseURL(eventID, tierID string) string {
	return strings.NewReplacer(
		"{event}", url.PathEscape(eventID),
		"{tier}", url.PathEscape(tierID),
	).Replace(h.Pages.PurchaseURLTemplate)
}
