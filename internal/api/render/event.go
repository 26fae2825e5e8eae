package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseDate reads the date formats the legacy backend is known to send.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders a backend date as "January 2, 2006". Unparseable values
// are shown as sent.
func FormatDate(value string) string {
	t, ok := ParseDate(value)
	if !ok {
		return value
	}
	return t.Format("January 2, 2006")
}

// FormatPrice renders a tier price in dollars. Non-numeric prices are shown
// as sent.
func FormatPrice(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	amount, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "$" + value
	}
	if amount == float64(int64(amount)) {
		return fmt.Sprintf("$%d", int64(amount))
	}
	return fmt.Sprintf("$%.2f", amount)
}

// EventSchema is the subset of schema.org/Event embedded in detail pages.
type EventSchema struct {
	Name        string
	Description string
	StartDate   string
	Venue       string
	Image       string
	URL         string
	Offers      []OfferSchema
}

type OfferSchema struct {
	Name  string
	Price string
	URL   string
}

// EventJSONLD returns the schema.org/Event document for a detail page.
// encoding/json escapes <, > and & so the result is safe inside a script
// element.
func EventJSONLD(e EventSchema) (template.JS, error) {
	doc := map[string]any{
		"@context": "https://schema.org",
		"@type":    "Event",
		"name":     e.Name,
	}
	if e.Description != "" {
		doc["description"] = e.Description
	}
	if t, ok := ParseDate(e.StartDate); ok {
		doc["startDate"] = t.Format(time.RFC3339)
	}
	if e.Venue != "" {
		doc["location"] = map[string]any{
			"@type":   "Place",
			"address": e.Venue,
		}
	}
	if e.Image != "" {
		doc["image"] = e.Image
	}
	if e.URL != "" {
		doc["url"] = e.URL
	}
	if len(e.Offers) > 0 {
		offers := make([]map[string]any, 0, len(e.Offers))
		for _, o := range e.Offers {
			offers = append(offers, map[string]any{
				"@type":         "Offer",
				"name":          o.Name,
				"price":         o.Price,
				"priceCurrency": "USD",
				"url":           o.URL,
			})
		}
		doc["offers"] = offers
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal event json-ld: %w", err)
	}
	// #nosec G203 -- json.Marshal output with HTML characters escaped
	return template.JS(payload), nil
}
