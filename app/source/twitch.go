package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nicklaw5/helix/v2"
	"golang.org/x/time/rate"
)

const (
	twitchProvider        = "twitch"
	twitchThumbnailWidth  = "1280"
	twitchThumbnailHeight = "720"
)

// streamGetter is the part of the helix client used for live lookups.
type streamGetter interface {
	GetStreams(params *helix.StreamsParams) (*helix.StreamsResponse, error)
}

// TwitchStreams looks up the live stream of a Twitch login through Helix.
type TwitchStreams struct {
	client  streamGetter
	limiter *rate.Limiter
}

var _ LiveStreams = (*TwitchStreams)(nil)

func NewTwitchStreams(clientID, accessToken string, httpClient *http.Client, limiter *rate.Limiter) (*TwitchStreams, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("twitch client id is empty")
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("twitch access token is empty")
	}

	client, err := helix.NewClient(&helix.Options{
		ClientID:       clientID,
		AppAccessToken: accessToken,
		HTTPClient:     httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}

	return &TwitchStreams{client: client, limiter: limiter}, nil
}

func (s *TwitchStreams) CurrentStream(ctx context.Context, accountID string) (*ContentItem, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	// helix has no context support; bail out early if the cycle was cancelled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := s.client.GetStreams(&helix.StreamsParams{
		UserLogins: []string{accountID},
		First:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get streams: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: twitchProvider, StatusCode: resp.StatusCode, Message: resp.ErrorMessage}
	}

	if len(resp.Data.Streams) == 0 {
		return nil, nil
	}

	return normalizeStream(accountID, resp.Data.Streams[0])
}

func normalizeStream(login string, stream helix.Stream) (*ContentItem, error) {
	if stream.UserLogin != "" {
		login = stream.UserLogin
	}

	item := ContentItem{
		ID:          strings.TrimSpace(stream.ID),
		Title:       cleanText(stream.Title),
		Link:        "https://twitch.tv/" + strings.ToLower(login),
		Thumbnail:   streamThumbnail(stream.ThumbnailURL),
		AccountName: login,
		PublishedAt: stream.StartedAt.UTC(),
		Game:        cleanText(stream.GameName),
	}

	if err := validateItem(twitchProvider, item); err != nil {
		return nil, err
	}

	return &item, nil
}

func streamThumbnail(template string) string {
	return strings.NewReplacer(
		"{width}", twitchThumbnailWidth,
		"{height}", twitchThumbnailHeight,
	).Replace(template)
}
