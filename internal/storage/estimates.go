package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/event-cardinality/pkg/sketch"
)

const createEstimatesTableStatement = `
CREATE TABLE IF NOT EXISTS cardinality_estimates (
    id           BIGSERIAL PRIMARY KEY,
    counter      TEXT             NOT NULL,
    estimate     DOUBLE PRECISION NOT NULL,
    precision    SMALLINT         NOT NULL,
    memory_bytes BIGINT           NOT NULL,
    taken_at     TIMESTAMPTZ      NOT NULL
)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EstimateStore appends point-in-time estimate readings. Register contents
// are never written.
type EstimateStore struct {
	db  execer
	now func() time.Time
}

func NewEstimateStore(db *sql.DB) *EstimateStore {
	return &EstimateStore{db: db, now: time.Now}
}

// EnsureSchema creates the estimates table if it does not exist.
func (s *EstimateStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createEstimatesTableStatement); err != nil {
		return fmt.Errorf("creating cardinality_estimates table: %w", err)
	}
	return nil
}

// Save writes all readings in a single statement with a shared timestamp.
func (s *EstimateStore) Save(ctx context.Context, estimates []sketch.Estimate) error {
	if len(estimates) == 0 {
		return nil
	}

	takenAt := s.now().UTC()
	var sb strings.Builder
	sb.WriteString("INSERT INTO cardinality_estimates (counter, estimate, precision, memory_bytes, taken_at) VALUES ")

	args := make([]interface{}, 0, len(estimates)*5)
	for i, e := range estimates {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, e.Counter, e.Value, e.Precision, e.MemoryBytes, takenAt)
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("inserting estimates: %w", err)
	}
	return nil
}
