// Package db
package db

import (
	"database/sql"

	"github.com/amirphl/order-stack/internal/journal"
	"github.com/amirphl/order-stack/internal/order"
)

// Storage is the interface for all persistent storage behind the order
// stack: the keyed order store plus the event journal.
type Storage interface {
	GetDB() *sql.DB
	order.Store
	journal.Journaler
	Close() error
}
