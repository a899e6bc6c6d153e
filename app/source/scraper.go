package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

const scraperProvider = "youtube-scraper"

// ScraperFeed reads uploads from a scraper service that answers
// GET {baseURL}/{channelID} with {"latest": video, "previous": [video]}.
type ScraperFeed struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

var _ UploadFeed = (*ScraperFeed)(nil)

func NewScraperFeed(baseURL string, httpClient *http.Client, limiter *rate.Limiter, userAgent string) *ScraperFeed {
	return &ScraperFeed{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		userAgent:  userAgent,
	}
}

type scraperVideo struct {
	ID        string `json:"id"`
	IsShort   bool   `json:"isShort"`
	Link      string `json:"link"`
	Thumbnail string `json:"thumbnail"`
	Channel   struct {
		ID   string `json:"id"`
		Link string `json:"link"`
		Name string `json:"name"`
	} `json:"channel"`
	Title     string `json:"title"`
	Published struct {
		Date     string `json:"date"`
		Relative string `json:"relative"`
	} `json:"published"`
}

type scraperResponse struct {
	Latest   *scraperVideo  `json:"latest"`
	Previous []scraperVideo `json:"previous"`
}

func (f *ScraperFeed) Uploads(ctx context.Context, accountID string) (*Uploads, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	endpoint := f.baseURL + "/" + url.PathEscape(accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch uploads: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Provider: scraperProvider, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var payload scraperResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &MalformedError{Provider: scraperProvider, Field: "body", Reason: err.Error()}
	}

	if payload.Latest == nil || payload.Latest.ID == "" {
		return nil, ErrNoContent
	}

	latest, err := normalizeScraperVideo(*payload.Latest)
	if err != nil {
		return nil, err
	}

	uploads := &Uploads{Latest: latest, Previous: make([]ContentItem, 0, len(payload.Previous))}
	for _, video := range payload.Previous {
		item, err := normalizeScraperVideo(video)
		if err != nil {
			return nil, err
		}
		uploads.Previous = append(uploads.Previous, item)
	}

	return uploads, nil
}

func normalizeScraperVideo(v scraperVideo) (ContentItem, error) {
	published, ok := parsePublished(v.Published.Date)
	if !ok && strings.TrimSpace(v.Published.Date) != "" {
		return ContentItem{}, &MalformedError{Provider: scraperProvider, Field: "published.date", Reason: fmt.Sprintf("cannot parse %q", v.Published.Date)}
	}

	item := ContentItem{
		ID:          strings.TrimSpace(v.ID),
		Title:       cleanText(v.Title),
		Link:        strings.TrimSpace(v.Link),
		Thumbnail:   strings.TrimSpace(v.Thumbnail),
		AccountName: cleanText(v.Channel.Name),
		PublishedAt: published,
		IsShort:     v.IsShort,
	}

	if err := validateItem(scraperProvider, item); err != nil {
		return ContentItem{}, err
	}

	return item, nil
}
