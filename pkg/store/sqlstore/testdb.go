package sqlstore

import (
	"testing"
)

// OpenTestDB returns a store on a fresh in-memory SQLite database
// with all migrations applied. The database is closed when the test
// finishes.
func OpenTestDB(t *testing.T) *DatabaseStore {
	t.Helper()
	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}
