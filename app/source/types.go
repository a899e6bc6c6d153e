package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ContentItem is a video or live stream normalized from a provider.
type ContentItem struct {
	ID          string
	Title       string
	Link        string
	Thumbnail   string
	AccountName string
	PublishedAt time.Time
	IsShort     bool
	Game        string
}

type Uploads struct {
	Latest   ContentItem
	Previous []ContentItem
}

// All returns the latest upload followed by the previous ones.
func (u *Uploads) All() []ContentItem {
	return append([]ContentItem{u.Latest}, u.Previous...)
}

// UploadFeed returns the most recent uploads of an account.
type UploadFeed interface {
	Uploads(ctx context.Context, accountID string) (*Uploads, error)
}

// LiveStreams returns the active live stream of an account, or nil when the
// account is offline.
type LiveStreams interface {
	CurrentStream(ctx context.Context, accountID string) (*ContentItem, error)
}

// ErrNoContent is returned when a provider answered but has no latest upload
// for the account.
var ErrNoContent = errors.New("provider returned no content")

// StatusError is a non-success HTTP answer from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP error %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: HTTP error %d", e.Provider, e.StatusCode)
}

// MalformedError reports a provider payload that could not be normalized.
type MalformedError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: malformed payload: %s %s", e.Provider, e.Field, e.Reason)
}
