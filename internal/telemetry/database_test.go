package telemetry

import (
	"strings"
	"testing"
)

func TestWithSearchPath(t *testing.T) {
	t.Run("adds search_path to url dsn", func(t *testing.T) {
		got, err := WithSearchPath("postgres://u:p@localhost:5432/store?sslmode=disable", "store")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(got, "search_path=store") {
			t.Errorf("expected search_path in %s", got)
		}
		if !strings.Contains(got, "sslmode=disable") {
			t.Errorf("expected sslmode preserved in %s", got)
		}
	})

	t.Run("rejects keyword dsn", func(t *testing.T) {
		if _, err := WithSearchPath("host=localhost dbname=store", "store"); err == nil {
			t.Error("expected error for keyword dsn")
		}
	})
}
