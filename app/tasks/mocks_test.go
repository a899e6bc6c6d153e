package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lysyi3m/announcer/app/database"
	"github.com/lysyi3m/announcer/app/dispatch"
	"github.com/lysyi3m/announcer/app/message"
	"github.com/lysyi3m/announcer/app/source"
)

type mockUploadFeed struct {
	mu      sync.Mutex
	uploads map[string]*source.Uploads
	errs    map[string]error
	panics  map[string]bool
	calls   int
}

var _ source.UploadFeed = (*mockUploadFeed)(nil)

func newMockUploadFeed() *mockUploadFeed {
	return &mockUploadFeed{
		uploads: make(map[string]*source.Uploads),
		errs:    make(map[string]error),
		panics:  make(map[string]bool),
	}
}

func (m *mockUploadFeed) Uploads(ctx context.Context, accountID string) (*source.Uploads, error) {
	m.mu.Lock()
	m.calls++
	uploads, err, panics := m.uploads[accountID], m.errs[accountID], m.panics[accountID]
	m.mu.Unlock()

	if panics {
		panic("upload feed exploded")
	}
	if err != nil {
		return nil, err
	}
	if uploads == nil {
		return nil, source.ErrNoContent
	}
	return uploads, nil
}

type mockLiveStreams struct {
	streams map[string]*source.ContentItem
	err     error
}

var _ source.LiveStreams = (*mockLiveStreams)(nil)

func (m *mockLiveStreams) CurrentStream(ctx context.Context, accountID string) (*source.ContentItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.streams[accountID], nil
}

type sentMessage struct {
	dest dispatch.Destination
	msg  message.Message
}

type mockDispatcher struct {
	mu       sync.Mutex
	sent     []sentMessage
	fail     bool
	failures atomic.Int64
}

var _ Dispatcher = (*mockDispatcher)(nil)

func (m *mockDispatcher) Send(ctx context.Context, dest dispatch.Destination, msg message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return errors.New("discord unavailable")
	}
	m.sent = append(m.sent, sentMessage{dest: dest, msg: msg})
	return nil
}

func (m *mockDispatcher) Deliver(ctx context.Context, dest dispatch.Destination, msg message.Message) bool {
	if err := m.Send(ctx, dest, msg); err != nil {
		m.failures.Add(1)
		return false
	}
	return true
}

func (m *mockDispatcher) Failures() int64 {
	return m.failures.Load()
}

func (m *mockDispatcher) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *mockDispatcher) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// gatedDispatcher holds each delivery until `parties` deliveries are in
// flight or the hold expires, then delegates to the wrapped dispatcher.
type gatedDispatcher struct {
	*mockDispatcher
	parties int
	hold    time.Duration

	mu      sync.Mutex
	arrived int
	open    chan struct{}
}

var _ Dispatcher = (*gatedDispatcher)(nil)

func newGatedDispatcher(inner *mockDispatcher, parties int, hold time.Duration) *gatedDispatcher {
	return &gatedDispatcher{
		mockDispatcher: inner,
		parties:        parties,
		hold:           hold,
		open:           make(chan struct{}),
	}
}

func (g *gatedDispatcher) Deliver(ctx context.Context, dest dispatch.Destination, msg message.Message) bool {
	g.mu.Lock()
	g.arrived++
	if g.arrived == g.parties {
		close(g.open)
	}
	g.mu.Unlock()

	select {
	case <-g.open:
	case <-time.After(g.hold):
	}

	return g.mockDispatcher.Deliver(ctx, dest, msg)
}

type testEnv struct {
	db         *database.DB
	store      *database.InstanceStore
	ledger     *database.Ledger
	uploads    *mockUploadFeed
	streams    *mockLiveStreams
	dispatcher *mockDispatcher
	announcer  *Announcer
	checker    *Checker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "announcer.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	env := &testEnv{
		db:         db,
		store:      database.NewInstanceStore(db),
		ledger:     database.NewLedger(db),
		uploads:    newMockUploadFeed(),
		streams:    &mockLiveStreams{streams: make(map[string]*source.ContentItem)},
		dispatcher: &mockDispatcher{},
	}
	env.announcer = NewAnnouncer(env.store, env.ledger,
		Sources{Uploads: env.uploads, Streams: env.streams},
		message.NewValidator(), env.dispatcher)
	env.checker = NewChecker(env.announcer, env.store, 4, 10*time.Second)

	return env
}

var instanceCreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const defaultTemplate = `{
	"content": "%username% uploaded",
	"embeds": [{"title": "%title%", "image": {"url": "%thumbnail%"}}],
	"components": [{"type": 1, "components": [{"type": 2, "label": "Watch", "style": 5, "url": "%link%"}]}]
}`

func (e *testEnv) addInstance(t *testing.T, name string, instanceType database.InstanceType, mutate ...func(*database.Instance)) *database.Instance {
	t.Helper()

	instance := &database.Instance{
		Name:       name,
		Type:       instanceType,
		AccountID:  name,
		BotToken:   "token-" + name,
		ChannelID:  "chan-" + name,
		Template:   defaultTemplate,
		Automation: true,
		CreatedAt:  instanceCreatedAt,
	}
	for _, fn := range mutate {
		fn(instance)
	}

	if err := e.store.Create(context.Background(), instance); err != nil {
		t.Fatalf("Failed to create instance: %v", err)
	}
	return instance
}

func video(id string, published time.Time) source.ContentItem {
	return source.ContentItem{
		ID:          id,
		Title:       "Video " + id,
		Link:        "https://www.youtube.com/watch?v=" + id,
		Thumbnail:   "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg",
		AccountName: "Astrid",
		PublishedAt: published,
	}
}

func (e *testEnv) setUploads(accountID string, latest source.ContentItem, previous ...source.ContentItem) {
	e.uploads.mu.Lock()
	defer e.uploads.mu.Unlock()
	e.uploads.uploads[accountID] = &source.Uploads{Latest: latest, Previous: previous}
}

func (e *testEnv) ledgerCount(t *testing.T) int {
	t.Helper()
	count, err := e.ledger.Count(context.Background())
	if err != nil {
		t.Fatalf("Failed to count announcements: %v", err)
	}
	return count
}
