package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrViewNotFound is returned when no saved view has the requested ID.
var ErrViewNotFound = errors.New("saved view not found")

// SavedView is a named scenario selection that can be re-applied later.
type SavedView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ScenarioType string    `json:"scenario_type"`
	LogName      string    `json:"log_name"`
	ScenarioName string    `json:"scenario_name"`
	Planners     []string  `json:"planners"`
	Active       []int     `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateView inserts v. An empty ID is filled with a new UUID and a zero
// CreatedAt with the current time.
func (db *DB) CreateView(ctx context.Context, v *SavedView) error {
	if v.Name == "" {
		return fmt.Errorf("saved view name is required")
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	if v.Planners == nil {
		v.Planners = []string{}
	}
	if v.Active == nil {
		v.Active = []int{}
	}
	planners, err := json.Marshal(v.Planners)
	if err != nil {
		return fmt.Errorf("failed to encode planners: %w", err)
	}
	active, err := json.Marshal(v.Active)
	if err != nil {
		return fmt.Errorf("failed to encode active experiments: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO saved_views (
			view_id, name, scenario_type, log_name, scenario_name,
			planners_json, active_json, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.ScenarioType, v.LogName, v.ScenarioName,
		string(planners), string(active), v.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert saved view: %w", err)
	}
	return nil
}

const viewColumns = `view_id, name, scenario_type, log_name, scenario_name, planners_json, active_json, created_at_ns`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanView(row rowScanner) (SavedView, error) {
	var (
		v                SavedView
		planners, active string
		createdAtNs      int64
	)
	if err := row.Scan(&v.ID, &v.Name, &v.ScenarioType, &v.LogName, &v.ScenarioName, &planners, &active, &createdAtNs); err != nil {
		return SavedView{}, err
	}
	if err := json.Unmarshal([]byte(planners), &v.Planners); err != nil {
		return SavedView{}, fmt.Errorf("saved view %s: bad planners_json: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(active), &v.Active); err != nil {
		return SavedView{}, fmt.Errorf("saved view %s: bad active_json: %w", v.ID, err)
	}
	v.CreatedAt = time.Unix(0, createdAtNs)
	return v, nil
}

// GetView returns the saved view with the given ID.
func (db *DB) GetView(ctx context.Context, id string) (SavedView, error) {
	row := db.QueryRowContext(ctx, `SELECT `+viewColumns+` FROM saved_views WHERE view_id = ?`, id)
	v, err := scanView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedView{}, fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	return v, err
}

// ListViews returns every saved view, newest first.
func (db *DB) ListViews(ctx context.Context) ([]SavedView, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+viewColumns+` FROM saved_views ORDER BY created_at_ns DESC, view_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := []SavedView{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// DeleteView removes a saved view.
func (db *DB) DeleteView(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM saved_views WHERE view_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	return nil
}
