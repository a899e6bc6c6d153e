package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Ledger records which content each instance has already announced. The
// UNIQUE (instance_id, content_id) constraint is the dedup gate.
type Ledger struct {
	db *DB
}

var _ AnnouncementRepository = (*Ledger)(nil)

// NewLedger creates a new announcement ledger
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) HasAnnounced(ctx context.Context, instanceID, contentID string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM announcements WHERE instance_id = ? AND content_id = ?
		)
	`, instanceID, contentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check announcement: %w", err)
	}
	return exists, nil
}

// Record stores an announcement. It reports true when this call created the
// row and false when one already existed.
func (l *Ledger) Record(ctx context.Context, instanceID, contentID string) (bool, error) {
	return l.insert(ctx, instanceID, contentID)
}

// Claim reserves the content for one sender before delivery. Only the caller
// that gets true may send; it must Release the claim if delivery fails.
func (l *Ledger) Claim(ctx context.Context, instanceID, contentID string) (bool, error) {
	return l.insert(ctx, instanceID, contentID)
}

// Release drops a claim whose delivery failed so the next cycle retries it.
func (l *Ledger) Release(ctx context.Context, instanceID, contentID string) error {
	_, err := l.db.ExecContext(ctx, `
		DELETE FROM announcements WHERE instance_id = ? AND content_id = ?
	`, instanceID, contentID)
	if err != nil {
		return fmt.Errorf("failed to release announcement claim: %w", err)
	}
	return nil
}

func (l *Ledger) insert(ctx context.Context, instanceID, contentID string) (bool, error) {
	result, err := l.db.ExecContext(ctx, `
		INSERT INTO announcements (instance_id, content_id, announced, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (instance_id, content_id) DO NOTHING
	`, instanceID, contentID, formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to record announcement: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}

func (l *Ledger) FindByInstanceAndContentIDs(ctx context.Context, instanceID string, contentIDs []string) ([]Announcement, error) {
	if len(contentIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(contentIDs)), ", ")
	args := make([]any, 0, len(contentIDs)+1)
	args = append(args, instanceID)
	for _, id := range contentIDs {
		args = append(args, id)
	}

	announcements, err := l.queryAnnouncements(ctx, `
		SELECT instance_id, content_id, announced, created_at
		FROM announcements
		WHERE instance_id = ? AND content_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find announcements: %w", err)
	}

	return announcements, nil
}

func (l *Ledger) ListByInstance(ctx context.Context, instanceID string) ([]Announcement, error) {
	announcements, err := l.queryAnnouncements(ctx, `
		SELECT instance_id, content_id, announced, created_at
		FROM announcements
		WHERE instance_id = ?
		ORDER BY created_at DESC, id DESC
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}

	return announcements, nil
}

func (l *Ledger) Count(ctx context.Context) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM announcements").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get announcement count: %w", err)
	}
	return count, nil
}

func (l *Ledger) queryAnnouncements(ctx context.Context, query string, args ...any) ([]Announcement, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var announcements []Announcement
	for rows.Next() {
		var (
			a         Announcement
			createdAt string
		)
		if err := rows.Scan(&a.InstanceID, &a.ContentID, &a.Announced, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan announcement row: %w", err)
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		announcements = append(announcements, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating announcement rows: %w", err)
	}

	return announcements, nil
}
