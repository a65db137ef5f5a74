package history

import "context"

// Repository persists prediction records.
type Repository interface {
	// Record appends r.
	Record(ctx context.Context, r *Record) error

	// List returns the newest records first.
	List(ctx context.Context, q Query) ([]*Record, error)

	Stats(ctx context.Context) (*Stats, error)
}

// RunRepository persists training runs.
type RunRepository interface {
	RecordRun(ctx context.Context, r *Run) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
}
