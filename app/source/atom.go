package source

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"golang.org/x/time/rate"
)

const (
	atomProvider       = "youtube-atom"
	DefaultAtomFeedURL = "https://www.youtube.com/feeds/videos.xml"
)

// AtomFeed reads uploads from YouTube's public channel Atom feed.
type AtomFeed struct {
	feedURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

var _ UploadFeed = (*AtomFeed)(nil)

func NewAtomFeed(feedURL string, httpClient *http.Client, limiter *rate.Limiter, userAgent string) *AtomFeed {
	return &AtomFeed{
		feedURL:    cmp.Or(feedURL, DefaultAtomFeedURL),
		httpClient: httpClient,
		limiter:    limiter,
		userAgent:  userAgent,
	}
}

func (f *AtomFeed) Uploads(ctx context.Context, accountID string) (*Uploads, error) {
	data, err := f.fetch(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// gofeed parsers keep per-document state, so each fetch gets its own.
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &MalformedError{Provider: atomProvider, Field: "body", Reason: err.Error()}
	}

	if len(feed.Items) == 0 {
		return nil, ErrNoContent
	}

	items := make([]ContentItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		item, err := normalizeAtomEntry(feed, entry)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	slices.SortStableFunc(items, func(a, b ContentItem) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	return &Uploads{Latest: items[0], Previous: items[1:]}, nil
}

func (f *AtomFeed) fetch(ctx context.Context, channelID string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	endpoint := f.feedURL + "?channel_id=" + url.QueryEscape(channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: atomProvider, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func normalizeAtomEntry(feed *gofeed.Feed, entry *gofeed.Item) (ContentItem, error) {
	videoID := extensionValue(entry.Extensions, "yt", "videoId")
	if videoID == "" {
		videoID = strings.TrimPrefix(entry.GUID, "yt:video:")
	}

	item := ContentItem{
		ID:          strings.TrimSpace(videoID),
		Title:       cleanText(entry.Title),
		Link:        strings.TrimSpace(entry.Link),
		Thumbnail:   atomThumbnail(entry, videoID),
		AccountName: cleanText(atomAuthor(feed, entry)),
		IsShort:     strings.Contains(entry.Link, "/shorts/"),
	}

	if entry.PublishedParsed != nil {
		item.PublishedAt = entry.PublishedParsed.UTC()
	}

	if err := validateItem(atomProvider, item); err != nil {
		return ContentItem{}, err
	}

	return item, nil
}

func atomAuthor(feed *gofeed.Feed, entry *gofeed.Item) string {
	for _, author := range entry.Authors {
		if author != nil && author.Name != "" {
			return author.Name
		}
	}
	return feed.Title
}

func atomThumbnail(entry *gofeed.Item, videoID string) string {
	for _, group := range entry.Extensions["media"]["group"] {
		for _, thumb := range group.Children["thumbnail"] {
			if u := thumb.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	if videoID != "" {
		return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
	}
	return ""
}

func extensionValue(extensions ext.Extensions, prefix, name string) string {
	for _, e := range extensions[prefix][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}
