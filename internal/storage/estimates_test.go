package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yourusername/event-cardinality/pkg/sketch"
)

type fakeExecer struct {
	queries []string
	args    [][]interface{}
	err     error
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return nil, f.err
}

func TestSaveBuildsSingleInsert(t *testing.T) {
	fake := &fakeExecer{}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := &EstimateStore{db: fake, now: func() time.Time { return ts }}

	err := store.Save(context.Background(), []sketch.Estimate{
		{Counter: "daily-users", Value: 42, Precision: 14, MemoryBytes: 16384},
		{Counter: "weekly-repos", Value: 7, Precision: 12, MemoryBytes: 4096},
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if len(fake.queries) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(fake.queries))
	}
	if !strings.Contains(fake.queries[0], "($6, $7, $8, $9, $10)") {
		t.Errorf("unexpected placeholders: %s", fake.queries[0])
	}
	args := fake.args[0]
	if len(args) != 10 || args[0] != "daily-users" || args[5] != "weekly-repos" {
		t.Fatalf("unexpected args: %v", args)
	}
	if taken, ok := args[4].(time.Time); !ok || !taken.Equal(ts) {
		t.Errorf("expected taken_at %s, got %v", ts, args[4])
	}
}

func TestSaveEmptyIsNoop(t *testing.T) {
	fake := &fakeExecer{}
	store := &EstimateStore{db: fake, now: time.Now}
	if err := store.Save(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(fake.queries) != 0 {
		t.Errorf("expected no statements, got %d", len(fake.queries))
	}
}

func TestSaveWrapsErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := &EstimateStore{db: &fakeExecer{err: boom}, now: time.Now}

	err := store.Save(context.Background(), []sketch.Estimate{{Counter: "a"}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if err := store.EnsureSchema(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped schema error, got %v", err)
	}
}
