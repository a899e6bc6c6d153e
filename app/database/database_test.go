package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "data", "announcer.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if version != 2 || dirty {
		t.Fatalf("Expected clean migration version 2, got %d (dirty=%v)", version, dirty)
	}

	return db
}

func newTestInstance(t *testing.T, store *InstanceStore, name string, automation bool) *Instance {
	t.Helper()

	instance := &Instance{
		Name:       name,
		Type:       InstanceTypeYouTube,
		AccountID:  "UC" + name,
		BotToken:   "token-" + name,
		ChannelID:  "chan-" + name,
		Template:   `{"content":"%title%"}`,
		Automation: automation,
		Managers:   []string{"owner@example.com"},
	}
	if err := store.Create(context.Background(), instance); err != nil {
		t.Fatalf("Failed to create instance: %v", err)
	}
	return instance
}

func TestNewConnectionRequiresPath(t *testing.T) {
	if _, err := NewConnection(""); err == nil {
		t.Error("Expected error for empty database path")
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected second run to succeed, got: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("Expected version 2, got %d (dirty=%v)", version, dirty)
	}
}

func TestInstanceStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewInstanceStore(newTestDB(t))

	created := newTestInstance(t, store, "astrid", true)
	if created.ID == "" {
		t.Fatal("Expected Create to assign an id")
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got.Name != "astrid" || got.Type != InstanceTypeYouTube || got.AccountID != "UCastrid" {
		t.Errorf("Unexpected instance: %+v", got)
	}
	if !got.Automation || got.IgnoreShorts {
		t.Errorf("Unexpected flags: automation=%v ignore_shorts=%v", got.Automation, got.IgnoreShorts)
	}
	if len(got.Managers) != 1 || got.Managers[0] != "owner@example.com" {
		t.Errorf("Unexpected managers: %v", got.Managers)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("Expected created_at %v, got %v", created.CreatedAt, got.CreatedAt)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestInstanceStoreRejectsUnknownType(t *testing.T) {
	store := NewInstanceStore(newTestDB(t))

	err := store.Create(context.Background(), &Instance{Name: "x", Type: "vimeo", AccountID: "a", BotToken: "b", ChannelID: "c"})
	if err == nil {
		t.Error("Expected error for unknown instance type")
	}
}

func TestInstanceStoreFindAutomationEnabled(t *testing.T) {
	ctx := context.Background()
	store := NewInstanceStore(newTestDB(t))

	newTestInstance(t, store, "on", true)
	newTestInstance(t, store, "off", false)

	instances, err := store.FindAutomationEnabled(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(instances) != 1 || instances[0].Name != "on" {
		t.Errorf("Expected only the enabled instance, got %+v", instances)
	}

	count, err := store.Count(ctx)
	if err != nil || count != 2 {
		t.Errorf("Expected count 2, got %d (err=%v)", count, err)
	}
}

func TestInstanceStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewInstanceStore(newTestDB(t))
	instance := newTestInstance(t, store, "astrid", true)

	disabled := false
	template := `{"content":"new"}`
	err := store.Update(ctx, instance.ID, InstanceUpdate{Automation: &disabled, Template: &template})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, err := store.Get(ctx, instance.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.Automation {
		t.Error("Expected automation to be disabled")
	}
	if got.Template != template {
		t.Errorf("Expected template %s, got %s", template, got.Template)
	}
	if got.ChannelID != instance.ChannelID {
		t.Errorf("Expected untouched channel id, got %s", got.ChannelID)
	}

	if err := store.Update(ctx, "missing", InstanceUpdate{Automation: &disabled}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestInstanceStoreUpsertKeepsOperatorFields(t *testing.T) {
	ctx := context.Background()
	store := NewInstanceStore(newTestDB(t))

	seed := &Instance{
		ID:         "seed-1",
		Name:       "Astrid",
		Type:       InstanceTypeTwitch,
		AccountID:  "astrid",
		BotToken:   "token",
		ChannelID:  "chan",
		Template:   `{"content":"live"}`,
		Automation: true,
	}

	created, err := store.Upsert(ctx, seed)
	if err != nil || !created {
		t.Fatalf("Expected first upsert to create, got created=%v err=%v", created, err)
	}

	disabled := false
	edited := `{"content":"edited"}`
	if err := store.Update(ctx, "seed-1", InstanceUpdate{Automation: &disabled, Template: &edited}); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	resync := *seed
	resync.ChannelID = "new-chan"
	created, err = store.Upsert(ctx, &resync)
	if err != nil || created {
		t.Fatalf("Expected second upsert to update, got created=%v err=%v", created, err)
	}

	got, err := store.Get(ctx, "seed-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.ChannelID != "new-chan" {
		t.Errorf("Expected channel to be refreshed, got %s", got.ChannelID)
	}
	if got.Template != edited || got.Automation {
		t.Errorf("Expected operator edits to survive resync, got template=%s automation=%v", got.Template, got.Automation)
	}
}

func TestInstanceStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewInstanceStore(db)
	ledger := NewLedger(db)

	instance := newTestInstance(t, store, "astrid", true)
	other := newTestInstance(t, store, "other", true)

	for _, id := range []string{"a", "b"} {
		if _, err := ledger.Record(ctx, instance.ID, id); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}
	if _, err := ledger.Record(ctx, other.ID, "a"); err != nil {
		t.Fatalf("Failed to record: %v", err)
	}

	if err := store.Delete(ctx, instance.ID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := store.Get(ctx, instance.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected instance to be gone, got: %v", err)
	}

	count, err := ledger.Count(ctx)
	if err != nil || count != 1 {
		t.Errorf("Expected only the other instance's announcement to remain, got %d (err=%v)", count, err)
	}

	if err := store.Delete(ctx, instance.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got: %v", err)
	}
}

func TestLedgerRecord(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedger(db)
	instance := newTestInstance(t, NewInstanceStore(db), "astrid", true)

	announced, err := ledger.HasAnnounced(ctx, instance.ID, "vid1")
	if err != nil || announced {
		t.Fatalf("Expected no announcement yet, got %v (err=%v)", announced, err)
	}

	created, err := ledger.Record(ctx, instance.ID, "vid1")
	if err != nil || !created {
		t.Fatalf("Expected first record to create, got %v (err=%v)", created, err)
	}

	created, err = ledger.Record(ctx, instance.ID, "vid1")
	if err != nil {
		t.Fatalf("Expected conflict to be benign, got: %v", err)
	}
	if created {
		t.Error("Expected second record to report an existing row")
	}

	announced, err = ledger.HasAnnounced(ctx, instance.ID, "vid1")
	if err != nil || !announced {
		t.Errorf("Expected announcement to exist, got %v (err=%v)", announced, err)
	}
}

func TestLedgerRecordRequiresInstance(t *testing.T) {
	ledger := NewLedger(newTestDB(t))

	if _, err := ledger.Record(context.Background(), "missing", "vid1"); err == nil {
		t.Error("Expected foreign key violation for unknown instance")
	}
}

func TestLedgerRecordConcurrent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedger(db)
	instance := newTestInstance(t, NewInstanceStore(db), "astrid", true)

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Record(ctx, instance.ID, "vid1")
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Errorf("Expected exactly one creating record, got %d", created.Load())
	}

	announcements, err := ledger.ListByInstance(ctx, instance.ID)
	if err != nil || len(announcements) != 1 {
		t.Errorf("Expected one stored announcement, got %d (err=%v)", len(announcements), err)
	}
}

func TestLedgerClaimAndRelease(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedger(db)
	instance := newTestInstance(t, NewInstanceStore(db), "astrid", true)

	claimed, err := ledger.Claim(ctx, instance.ID, "vid1")
	if err != nil || !claimed {
		t.Fatalf("Expected first claim to succeed, got %v (err=%v)", claimed, err)
	}

	claimed, err = ledger.Claim(ctx, instance.ID, "vid1")
	if err != nil || claimed {
		t.Errorf("Expected second claim to report an existing row, got %v (err=%v)", claimed, err)
	}

	if err := ledger.Release(ctx, instance.ID, "vid1"); err != nil {
		t.Fatalf("Expected release to succeed, got: %v", err)
	}

	announced, err := ledger.HasAnnounced(ctx, instance.ID, "vid1")
	if err != nil || announced {
		t.Errorf("Expected released claim to be gone, got %v (err=%v)", announced, err)
	}

	claimed, err = ledger.Claim(ctx, instance.ID, "vid1")
	if err != nil || !claimed {
		t.Errorf("Expected claim after release to succeed, got %v (err=%v)", claimed, err)
	}

	if err := ledger.Release(ctx, instance.ID, "missing"); err != nil {
		t.Errorf("Expected releasing an unknown claim to be a no-op, got: %v", err)
	}
}

func TestFormatTimeSortsLexically(t *testing.T) {
	times := []time.Time{
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 10, 0, 0, 100_000_000, time.UTC),
		time.Date(2024, 5, 1, 10, 0, 0, 120_000_000, time.UTC),
		time.Date(2024, 5, 1, 10, 0, 1, 0, time.UTC),
		time.Date(2024, 5, 1, 12, 0, 1, 5, time.FixedZone("CEST", 2*60*60)),
	}

	formatted := make([]string, len(times))
	for i, tm := range times {
		formatted[i] = formatTime(tm)
		if len(formatted[i]) != len(formatted[0]) {
			t.Errorf("Expected fixed width, got %q and %q", formatted[0], formatted[i])
		}

		parsed, err := parseTime(formatted[i])
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", formatted[i], err)
		}
		if !parsed.Equal(tm) {
			t.Errorf("Expected %v after round trip, got %v", tm, parsed)
		}
	}

	for i := 1; i < len(formatted); i++ {
		if formatted[i-1] >= formatted[i] {
			t.Errorf("Expected %q to sort before %q", formatted[i-1], formatted[i])
		}
	}
}

func TestLedgerFindByInstanceAndContentIDs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ledger := NewLedger(db)
	store := NewInstanceStore(db)
	instance := newTestInstance(t, store, "astrid", true)
	other := newTestInstance(t, store, "other", true)

	for _, id := range []string{"a", "c"} {
		if _, err := ledger.Record(ctx, instance.ID, id); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}
	if _, err := ledger.Record(ctx, other.ID, "b"); err != nil {
		t.Fatalf("Failed to record: %v", err)
	}

	found, err := ledger.FindByInstanceAndContentIDs(ctx, instance.ID, []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	ids := map[string]bool{}
	for _, a := range found {
		ids[a.ContentID] = true
		if !a.Announced {
			t.Errorf("Expected %s to be marked announced", a.ContentID)
		}
		if time.Since(a.CreatedAt) > time.Minute {
			t.Errorf("Unexpected created_at %v", a.CreatedAt)
		}
	}
	if len(ids) != 2 || !ids["a"] || !ids["c"] {
		t.Errorf("Expected a and c, got %v", ids)
	}

	empty, err := ledger.FindByInstanceAndContentIDs(ctx, instance.ID, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty result for no ids, got %v (err=%v)", empty, err)
	}
}
