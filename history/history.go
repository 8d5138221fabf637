package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gwww/upb-lib/events"
	"github.com/gwww/upb-lib/registry"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

const schema = `
CREATE TABLE IF NOT EXISTS state_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	device_key TEXT NOT NULL,
	state      TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_state_history_device
	ON state_history (device_key, id);
`

// State is the persisted snapshot of a device's status.
type State struct {
	Level         int  `json:"level"`
	Transitioning bool `json:"transitioning"`
}

// Entry is one recorded state change.
type Entry struct {
	ID        int64
	DeviceKey string
	State     State
	Source    string
	CreatedAt time.Time
}

// Logger is the diagnostic sink for recording failures.
type Logger interface {
	Error(msg string, args ...any)
}

// Recorder appends device state changes to a SQLite database.
//
// Thread Safety:
//   - All methods are safe for concurrent use; database/sql serialises
//     access to the underlying connection.
type Recorder struct {
	db     *sql.DB
	logger Logger
	cancel func()
}

// Open creates or opens the history database at path. Use ":memory:" for an
// ephemeral database.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// SetLogger sets the sink for recording failures. Without one they are
// silently dropped; history is best-effort.
func (r *Recorder) SetLogger(logger Logger) { r.logger = logger }

// Attach subscribes the recorder to device-updated events on the bus. Call
// once; Close detaches.
func (r *Recorder) Attach(bus *events.Bus) {
	r.cancel = bus.Subscribe(events.DeviceUpdated, func(e events.Event) {
		if e.Device == nil {
			return
		}
		if err := r.Record(context.Background(), *e.Device, "event"); err != nil {
			if r.logger != nil {
				r.logger.Error("recording state change failed",
					"device", e.Device.Key(), "error", err)
			}
		}
	})
}

// Record inserts one state change row for a device.
func (r *Recorder) Record(ctx context.Context, d registry.Device, source string) error {
	state, err := json.Marshal(State{
		Level:         d.Status.Level,
		Transitioning: d.Status.Transitioning,
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	createdAt := d.Status.UpdatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (device_key, state, source, created_at) VALUES (?, ?, ?, ?)",
		d.Key(), string(state), source, createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert state history: %w", err)
	}
	return nil
}

// History returns recent entries for a device, newest first. limit defaults
// to 50 and is capped at 200.
func (r *Recorder) History(ctx context.Context, deviceKey string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_key, state, source, created_at
		 FROM state_history
		 WHERE device_key = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		deviceKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var stateJSON, createdAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceKey, &stateJSON,
			&entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
		entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the given duration and returns how many
// rows were removed.
func (r *Recorder) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete state history: %w", err)
	}
	return result.RowsAffected()
}

// Close detaches from the bus and closes the database.
func (r *Recorder) Close() error {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return r.db.Close()
}
