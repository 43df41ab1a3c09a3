package recipients

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_CreatesSampleWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipients.csv")
	src := NewCSV(path)

	got, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("first run must yield no recipients, got %d", len(got))
	}

	// the sample is a valid source on the next run
	again, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 2 {
		t.Fatalf("want 2 sample rows, got %d", len(again))
	}
	if again[0].Email != "user@example.com" || again[1].Email != "another@example.com" {
		t.Fatalf("unexpected sample rows: %+v", again)
	}
}

func TestLoad_PreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipients.csv")
	content := "name,email,subject,body\n" +
		"Ann,ann@y.com,Hi Ann,\"Hello, Ann\"\n" +
		"Bob,bob@y.com,Hi Bob,<p>Bob</p>\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewCSV(path).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 rows, got %d", len(got))
	}
	if got[0].Name != "Ann" || got[0].Body != "Hello, Ann" || got[1].Email != "bob@y.com" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestLoad_HeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipients.csv")
	if err := os.WriteFile(path, []byte("name,email,subject,body\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewCSV(path).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("want 0 rows, got %d", len(got))
	}
}
