package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const instanceColumns = `id, name, type, account_id, bot_token, server_id, channel_id,
	template, automation, ignore_shorts, managers, created_at, updated_at`

// InstanceStore handles database operations for monitoring instances
type InstanceStore struct {
	db *DB
}

var _ InstanceRepository = (*InstanceStore)(nil)

// NewInstanceStore creates a new instance store
func NewInstanceStore(db *DB) *InstanceStore {
	return &InstanceStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*Instance, error) {
	var (
		instance             Instance
		instanceType         string
		managers             string
		createdAt, updatedAt string
	)

	err := row.Scan(
		&instance.ID, &instance.Name, &instanceType, &instance.AccountID, &instance.BotToken,
		&instance.ServerID, &instance.ChannelID, &instance.Template, &instance.Automation,
		&instance.IgnoreShorts, &managers, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.Type = InstanceType(instanceType)

	if err := json.Unmarshal([]byte(managers), &instance.Managers); err != nil {
		return nil, fmt.Errorf("failed to decode managers: %w", err)
	}
	if instance.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if instance.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &instance, nil
}

func encodeManagers(managers []string) (string, error) {
	if managers == nil {
		managers = []string{}
	}
	data, err := json.Marshal(managers)
	if err != nil {
		return "", fmt.Errorf("failed to encode managers: %w", err)
	}
	return string(data), nil
}

func (r *InstanceStore) queryInstances(ctx context.Context, query string, args ...any) ([]Instance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance row: %w", err)
		}
		instances = append(instances, *instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instance rows: %w", err)
	}

	return instances, nil
}

// Get retrieves an instance by id, returning ErrNotFound when it does not exist
func (r *InstanceStore) Get(ctx context.Context, id string) (*Instance, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id)

	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return instance, nil
}

func (r *InstanceStore) List(ctx context.Context) ([]Instance, error) {
	instances, err := r.queryInstances(ctx, `SELECT `+instanceColumns+` FROM instances ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

// FindAutomationEnabled returns the instances the check cycle should visit
func (r *InstanceStore) FindAutomationEnabled(ctx context.Context) ([]Instance, error) {
	instances, err := r.queryInstances(ctx, `SELECT `+instanceColumns+` FROM instances WHERE automation = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to find automation enabled instances: %w", err)
	}
	return instances, nil
}

func (r *InstanceStore) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM instances").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get instance count: %w", err)
	}
	return count, nil
}

// Create inserts a new instance, assigning an id and timestamps when unset
func (r *InstanceStore) Create(ctx context.Context, instance *Instance) error {
	if !instance.Type.Valid() {
		return fmt.Errorf("invalid instance type %q", instance.Type)
	}

	now := time.Now().UTC()
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = now
	if instance.Template == "" {
		instance.Template = "{}"
	}

	managers, err := encodeManagers(instance.Managers)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO instances (`+instanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, instance.ID, instance.Name, string(instance.Type), instance.AccountID, instance.BotToken,
		instance.ServerID, instance.ChannelID, instance.Template, instance.Automation,
		instance.IgnoreShorts, managers, formatTime(instance.CreatedAt), formatTime(instance.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}

	return nil
}

// Upsert inserts the instance or refreshes its connection fields. Template,
// automation and creation time are only written on insert so operator edits
// survive a resync. Reports whether a row was created.
func (r *InstanceStore) Upsert(ctx context.Context, instance *Instance) (bool, error) {
	if instance.ID == "" {
		return false, errors.New("instance id is required for upsert")
	}
	if !instance.Type.Valid() {
		return false, fmt.Errorf("invalid instance type %q", instance.Type)
	}

	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	if instance.Template == "" {
		instance.Template = "{}"
	}

	managers, err := encodeManagers(instance.Managers)
	if err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO instances (`+instanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, instance.ID, instance.Name, string(instance.Type), instance.AccountID, instance.BotToken,
		instance.ServerID, instance.ChannelID, instance.Template, instance.Automation,
		instance.IgnoreShorts, managers, formatTime(instance.CreatedAt), formatTime(now))
	if err != nil {
		return false, fmt.Errorf("failed to insert instance: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if inserted == 1 {
		return true, nil
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE instances
		SET name = ?, type = ?, account_id = ?, bot_token = ?, server_id = ?, channel_id = ?,
		    ignore_shorts = ?, managers = ?, updated_at = ?
		WHERE id = ?
	`, instance.Name, string(instance.Type), instance.AccountID, instance.BotToken, instance.ServerID,
		instance.ChannelID, instance.IgnoreShorts, managers, formatTime(now), instance.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update instance: %w", err)
	}

	return false, nil
}

// Update changes the non-nil fields of an instance
func (r *InstanceStore) Update(ctx context.Context, id string, update InstanceUpdate) error {
	var (
		sets []string
		args []any
	)

	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if update.Name != nil {
		set("name", *update.Name)
	}
	if update.AccountID != nil {
		set("account_id", *update.AccountID)
	}
	if update.BotToken != nil {
		set("bot_token", *update.BotToken)
	}
	if update.ServerID != nil {
		set("server_id", *update.ServerID)
	}
	if update.ChannelID != nil {
		set("channel_id", *update.ChannelID)
	}
	if update.Template != nil {
		set("template", *update.Template)
	}
	if update.Automation != nil {
		set("automation", *update.Automation)
	}
	if update.IgnoreShorts != nil {
		set("ignore_shorts", *update.IgnoreShorts)
	}
	if update.Managers != nil {
		managers, err := encodeManagers(update.Managers)
		if err != nil {
			return err
		}
		set("managers", managers)
	}

	set("updated_at", formatTime(time.Now()))
	args = append(args, id)

	result, err := r.db.ExecContext(ctx, `UPDATE instances SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes an instance together with its announcements
func (r *InstanceStore) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM announcements WHERE instance_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete announcements: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit instance deletion: %w", err)
	}

	return nil
}
