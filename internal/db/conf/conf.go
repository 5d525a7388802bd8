// Package conf provisions throwaway postgres databases for storage tests.
package conf

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"testing"
)

// Config holds test database connection and metadata
type Config struct {
	Name    string
	DB      *sql.DB
	ConnStr string
	AdminDB *sql.DB
}

// NewTestConfig creates a database with a random name and returns its
// connection plus a cleanup function that drops it. The test is skipped
// when postgres is not reachable, so the suite stays runnable without one.
func NewTestConfig(t *testing.T) (*Config, func()) {
	t.Helper()

	host := envOr("TEST_PG_HOST", "localhost")
	port := envOr("TEST_PG_PORT", "5432")
	user := envOr("TEST_PG_USER", "postgres")
	password := envOr("TEST_PG_PASSWORD", "postgres")

	// Connect to the default database to create the test one.
	adminConnStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=postgres sslmode=disable",
		host, port, user, password)

	adminDB, err := sql.Open("postgres", adminConnStr)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}

	if err := adminDB.Ping(); err != nil {
		adminDB.Close()
		t.Skipf("Skipping test: PostgreSQL is not running or not accessible: %v", err)
		return nil, func() {}
	}

	// Random name to avoid conflicts between concurrent test runs.
	dbName := fmt.Sprintf("test_db_%d", rand.Int31())

	if _, err := adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		adminDB.Close()
		t.Fatalf("Failed to create test database: %v", err)
	}

	dbConnStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbName)

	db, err := sql.Open("postgres", dbConnStr)
	if err != nil {
		adminDB.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	cfg := &Config{
		Name:    dbName,
		DB:      db,
		ConnStr: dbConnStr,
		AdminDB: adminDB,
	}

	cleanup := func() {
		db.Close()

		if _, err := adminDB.Exec(fmt.Sprintf("DROP DATABASE %s WITH (FORCE)", dbName)); err != nil {
			t.Logf("Warning: Failed to drop test database %s: %v", dbName, err)
		}

		adminDB.Close()
	}

	return cfg, cleanup
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
