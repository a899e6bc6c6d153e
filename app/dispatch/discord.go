package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/lysyi3m/announcer/app/message"
)

// Destination is where an instance's announcements go. The bot token is the
// tenant's own credential.
type Destination struct {
	InstanceID string
	BotToken   string
	ChannelID  string
}

type cachedSession struct {
	token   string
	session *discordgo.Session
}

// Discord posts rendered messages to Discord channels over the REST API.
type Discord struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration

	mu       sync.Mutex
	sessions map[string]cachedSession

	failures atomic.Int64
}

func NewDiscord(httpClient *http.Client, userAgent string, timeout time.Duration) *Discord {
	return &Discord{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
		sessions:   make(map[string]cachedSession),
	}
}

// Send makes exactly one delivery attempt.
func (d *Discord) Send(ctx context.Context, dest Destination, msg message.Message) error {
	if dest.BotToken == "" {
		return errors.New("bot token is empty")
	}
	if dest.ChannelID == "" {
		return errors.New("channel id is empty")
	}

	session, err := d.session(dest)
	if err != nil {
		return err
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	_, err = session.ChannelMessageSendComplex(dest.ChannelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// Deliver sends the message and reports success. Failures are logged and
// counted instead of returned.
func (d *Discord) Deliver(ctx context.Context, dest Destination, msg message.Message) bool {
	start := time.Now()

	if err := d.Send(ctx, dest, msg); err != nil {
		d.failures.Add(1)

		attrs := []any{"channel", dest.ChannelID, "duration", time.Since(start), "error", err}
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			attrs = append(attrs, "status", restErr.Response.StatusCode)
		}
		slog.Error("Delivery failed", attrs...)

		return false
	}

	slog.Debug("Delivery succeeded", "channel", dest.ChannelID, "duration", time.Since(start))
	return true
}

// Failures returns the number of failed deliveries since startup.
func (d *Discord) Failures() int64 {
	return d.failures.Load()
}

// session returns the cached session for the destination's instance. A
// rotated token replaces the instance's entry.
func (d *Discord) session(dest Destination) (*discordgo.Session, error) {
	key := dest.InstanceID
	if key == "" {
		key = dest.BotToken
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.sessions[key]; ok && cached.token == dest.BotToken {
		return cached.session, nil
	}

	s, err := discordgo.New("Bot " + dest.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	if d.httpClient != nil {
		s.Client = d.httpClient
	}
	if d.userAgent != "" {
		s.UserAgent = d.userAgent
	}
	s.MaxRestRetries = 0
	s.ShouldRetryOnRateLimit = false

	d.sessions[key] = cachedSession{token: dest.BotToken, session: s}
	return s, nil
}

func toMessageSend(msg message.Message) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content: msg.Content,
	}

	for _, embed := range msg.Embeds {
		e := &discordgo.MessageEmbed{
			Title:       embed.Title,
			Description: embed.Description,
			Color:       embed.Color,
		}
		if embed.Image != nil {
			e.Image = &discordgo.MessageEmbedImage{URL: embed.Image.URL}
		}
		send.Embeds = append(send.Embeds, e)
	}

	for _, row := range msg.Components {
		actions := discordgo.ActionsRow{}
		for _, button := range row.Components {
			actions.Components = append(actions.Components, discordgo.Button{
				Label: button.Label,
				Style: discordgo.LinkButton,
				URL:   button.URL,
			})
		}
		send.Components = append(send.Components, actions)
	}

	return send
}
