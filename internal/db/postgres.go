package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/amirphl/order-stack/internal/journal"
	"github.com/amirphl/order-stack/internal/order"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// PostgresStorage backs the order stack with postgres. Orders live in a
// single table keyed by a serial id, with the full flat order document as
// JSONB plus the identity key and active flag as columns for lookups.
type PostgresStorage struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) (*PostgresStorage, error) {
	if db == nil {
		return nil, errors.New("nil *sql.DB")
	}
	return &PostgresStorage{db: db}, nil
}

func (p *PostgresStorage) GetDB() *sql.DB { return p.db }

func (p *PostgresStorage) Close() error { return p.db.Close() }

// Migrate creates the order stack schema if it does not exist.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		key TEXT NOT NULL,
		active BOOLEAN NOT NULL,
		doc JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_key_active ON orders (key, active);
	CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		time TIMESTAMPTZ NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		data JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_events_type_time ON events (type, time);`)
	if err != nil {
		return fmt.Errorf("failed to migrate order stack schema: %w", err)
	}
	return nil
}

// executeWithTransaction executes a function with proper transaction management.
// If a transaction exists in context, it uses that. Otherwise, it creates a new one.
func (p *PostgresStorage) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// -------- Order store --------

func (p *PostgresStorage) Get(ctx context.Context, orderID int) (*order.Order, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM orders WHERE id=$1`, orderID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", orderID, order.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order %d: %w", orderID, err)
	}
	return unmarshalOrder(doc, orderID)
}

func (p *PostgresStorage) Insert(ctx context.Context, o *order.Order) (int, error) {
	var id int
	err := p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		doc, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order %s: %w", o.Key(), err)
		}
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO orders (key, active, doc) VALUES ($1,$2,$3) RETURNING id`,
			o.Key(), o.Active, doc).Scan(&id); err != nil {
			return fmt.Errorf("failed to insert order %s: %w", o.Key(), err)
		}

		// Rewrite the document so the stored order carries its assigned id.
		stored := o.Copy()
		stored.OrderID = id
		doc, err = json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal order %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET doc=$1 WHERE id=$2`, doc, id); err != nil {
			return fmt.Errorf("failed to store order %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return order.NoOrderID, err
	}
	return id, nil
}

func (p *PostgresStorage) Remove(ctx context.Context, orderID int) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM orders WHERE id=$1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to remove order %d: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove order %d: %w", orderID, err)
	}
	if n == 0 {
		return fmt.Errorf("order %d: %w", orderID, order.ErrNotFound)
	}
	return nil
}

func (p *PostgresStorage) CompareAndSet(ctx context.Context, orderID int, expected func(*order.Order) bool, updated *order.Order) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		var doc []byte
		err := tx.QueryRowContext(ctx, `SELECT doc FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&doc)
		if err == sql.ErrNoRows {
			return fmt.Errorf("order %d: %w", orderID, order.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read order %d: %w", orderID, err)
		}
		existing, err := unmarshalOrder(doc, orderID)
		if err != nil {
			return err
		}
		if expected != nil && !expected(existing) {
			return fmt.Errorf("order %d failed the update precondition: %w", orderID, order.ErrConflict)
		}

		stored := updated.Copy()
		stored.OrderID = orderID
		newDoc, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal order %d: %w", orderID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET key=$1, active=$2, doc=$3 WHERE id=$4`,
			stored.Key(), stored.Active, newDoc, orderID); err != nil {
			return fmt.Errorf("failed to update order %d: %w", orderID, err)
		}
		return nil
	})
}

func (p *PostgresStorage) ListOrderIDs(ctx context.Context) ([]int, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list order ids: %w", err)
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list order ids: %w", err)
	}
	return ids, nil
}

func unmarshalOrder(doc []byte, orderID int) (*order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order %d: %w", orderID, err)
	}
	o.OrderID = orderID
	return &o, nil
}

// -------- Journal --------

func (p *PostgresStorage) LogEvent(ctx context.Context, event journal.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO events (time, type, description, data) VALUES ($1,$2,$3,$4)`,
		event.Time.UTC(), event.Type, event.Description, data)
	if err != nil {
		return fmt.Errorf("failed to log event %s: %w", event.Type, err)
	}
	return nil
}

func (p *PostgresStorage) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT time, type, description, data FROM events WHERE type=$1 AND time >= $2 AND time < $3 ORDER BY time`,
		eventType, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	defer rows.Close()
	var out []journal.Event
	for rows.Next() {
		var e journal.Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return out, nil
}
