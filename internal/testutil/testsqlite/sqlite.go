package testsqlite

import (
	"path/filepath"
	"testing"
)

// DSN returns the path of a fresh SQLite database file removed when the test ends.
func DSN(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "unimsg.db") + "?_busy_timeout=5000"
}
