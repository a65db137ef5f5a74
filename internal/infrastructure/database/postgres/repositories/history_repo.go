package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ChemPredict/internal/domain/history"
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/infrastructure/database/postgres"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

const recordColumns = `id, substrate_degree, leaving_group, nucleophile, solvent_type, steric_hindrance,
	temperature, mechanism, probabilities, model_version, backend, cache_hit, latency_ms, created_at`

// HistoryRepo stores predictions in prediction_history and training runs in
// training_runs.
type HistoryRepo struct {
	db  queryExecutor
	log logging.Logger
}

var (
	_ history.Repository    = (*HistoryRepo)(nil)
	_ history.RunRepository = (*HistoryRepo)(nil)
)

// NewHistoryRepo returns a repository over conn.
func NewHistoryRepo(conn *postgres.Connection, log logging.Logger) *HistoryRepo {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &HistoryRepo{db: conn.DB(), log: log}
}

func (r *HistoryRepo) Record(ctx context.Context, rec *history.Record) error {
	probs, err := json.Marshal(rec.Probabilities)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode probabilities")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO prediction_history (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID.String(), rec.SubstrateDegree, rec.LeavingGroup, rec.Nucleophile, rec.SolventType,
		rec.StericHindrance, rec.Temperature, string(rec.Mechanism), string(probs), rec.ModelVersion,
		rec.Backend, rec.CacheHit, millis(rec.Latency), rec.CreatedAt,
	)
	if err != nil {
		r.log.Error("failed to record prediction", logging.Err(err), logging.String("id", rec.ID.String()))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to record prediction")
	}
	return nil
}

func (r *HistoryRepo) List(ctx context.Context, q history.Query) ([]*history.Record, error) {
	q = q.Normalize()

	var (
		where []string
		args  []interface{}
	)
	if q.Mechanism != "" {
		args = append(args, string(q.Mechanism))
		where = append(where, "mechanism = $"+strconv.Itoa(len(args)))
	}
	if q.Backend != "" {
		args = append(args, q.Backend)
		where = append(where, "backend = $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + recordColumns + ` FROM prediction_history`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, q.Limit)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list predictions")
	}
	defer rows.Close()

	var out []*history.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list predictions")
	}
	return out, nil
}

func scanRecord(s scanner) (*history.Record, error) {
	var (
		rec       history.Record
		id        string
		mechanism string
		probs     []byte
		latencyMs float64
	)
	if err := s.Scan(&id, &rec.SubstrateDegree, &rec.LeavingGroup, &rec.Nucleophile, &rec.SolventType,
		&rec.StericHindrance, &rec.Temperature, &mechanism, &probs, &rec.ModelVersion, &rec.Backend,
		&rec.CacheHit, &latencyMs, &rec.CreatedAt); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan prediction")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "invalid prediction id").WithDetail(id)
	}
	rec.ID = parsed
	rec.Mechanism = reaction.Mechanism(mechanism)
	rec.Latency = time.Duration(latencyMs * float64(time.Millisecond))
	if len(probs) > 0 {
		if err := json.Unmarshal(probs, &rec.Probabilities); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "invalid probabilities").WithDetail(id)
		}
	}
	return &rec, nil
}

func (r *HistoryRepo) Stats(ctx context.Context) (*history.Stats, error) {
	st := &history.Stats{ByMechanism: make(map[reaction.Mechanism]int64)}
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0), MAX(created_at)
		FROM prediction_history`,
	).Scan(&st.Total, &st.CacheHits, &st.AvgLatencyMs, &last)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to aggregate predictions")
	}
	if last.Valid {
		t := last.Time
		st.LastAt = &t
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT mechanism, COUNT(*) FROM prediction_history GROUP BY mechanism`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to aggregate predictions")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m string
			n int64
		)
		if err := rows.Scan(&m, &n); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan mechanism count")
		}
		st.ByMechanism[reaction.Mechanism(m)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to aggregate predictions")
	}
	return st, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Training runs
// ─────────────────────────────────────────────────────────────────────────────

func (r *HistoryRepo) RecordRun(ctx context.Context, run *history.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO training_runs (model_id, version, rows, train_rows, test_rows, accuracy, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ModelID, run.Version, run.Rows, run.TrainRows, run.TestRows, run.Accuracy,
		millis(run.Duration), run.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to record training run").WithDetail(run.ModelID)
	}
	r.log.Debug("training run recorded", logging.String("model_id", run.ModelID))
	return nil
}

func (r *HistoryRepo) ListRuns(ctx context.Context, limit int) ([]*history.Run, error) {
	limit = history.Query{Limit: limit}.Normalize().Limit
	rows, err := r.db.QueryContext(ctx,
		`SELECT model_id, version, rows, train_rows, test_rows, accuracy, duration_ms, created_at
		FROM training_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list training runs")
	}
	defer rows.Close()

	var out []*history.Run
	for rows.Next() {
		var (
			run        history.Run
			durationMs float64
		)
		if err := rows.Scan(&run.ModelID, &run.Version, &run.Rows, &run.TrainRows, &run.TestRows,
			&run.Accuracy, &durationMs, &run.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan training run")
		}
		run.Duration = time.Duration(durationMs * float64(time.Millisecond))
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list training runs")
	}
	return out, nil
}
