package source

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var publishedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

func parsePublished(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func cleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// validateItem enforces the fields every announcement needs.
func validateItem(provider string, item ContentItem) error {
	switch {
	case item.ID == "":
		return &MalformedError{Provider: provider, Field: "id", Reason: "is empty"}
	case item.Title == "":
		return &MalformedError{Provider: provider, Field: "title", Reason: "is empty"}
	case item.Link == "":
		return &MalformedError{Provider: provider, Field: "link", Reason: "is empty"}
	case item.PublishedAt.IsZero():
		return &MalformedError{Provider: provider, Field: "published", Reason: "is missing"}
	}
	return nil
}
