package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/ChemPredict/internal/domain/history"
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/infrastructure/database/postgres"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/ChemPredict/pkg/errors"
)

var recordCols = []string{
	"id", "substrate_degree", "leaving_group", "nucleophile", "solvent_type", "steric_hindrance",
	"temperature", "mechanism", "probabilities", "model_version", "backend", "cache_hit", "latency_ms", "created_at",
}

type HistoryRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *sql.DB
	repo *HistoryRepo
	now  time.Time
}

func (s *HistoryRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)
	s.repo = NewHistoryRepo(postgres.NewConnectionWithDB(s.db, nil), logging.NewNopLogger())
	s.now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
}

func (s *HistoryRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *HistoryRepoTestSuite) record() *history.Record {
	return &history.Record{
		ID:              uuid.MustParse("8d3c7a52-6f0e-4f55-9d7a-0a1b2c3d4e5f"),
		SubstrateDegree: "Tertiary",
		LeavingGroup:    "Br-",
		Nucleophile:     "H2O",
		SolventType:     "Polar Protic",
		StericHindrance: "Low",
		Temperature:     25,
		Mechanism:       reaction.SN1,
		Probabilities:   map[reaction.Mechanism]float64{reaction.SN1: 1},
		ModelVersion:    "2.20240101000000",
		Backend:         "forest",
		Latency:         3 * time.Millisecond,
		CreatedAt:       s.now,
	}
}

func (s *HistoryRepoTestSuite) TestRecord() {
	rec := s.record()
	s.mock.ExpectExec("INSERT INTO prediction_history").
		WithArgs(rec.ID.String(), "Tertiary", "Br-", "H2O", "Polar Protic", "Low", 25.0, "SN1",
			`{"SN1":1}`, "2.20240101000000", "forest", false, 3.0, s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Record(context.Background(), rec))
}

func (s *HistoryRepoTestSuite) TestRecord_AssignsIDAndTimestamp() {
	rec := s.record()
	rec.ID = uuid.Nil
	rec.CreatedAt = time.Time{}
	s.mock.ExpectExec("INSERT INTO prediction_history").WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Record(context.Background(), rec))
	s.NotEqual(uuid.Nil, rec.ID)
	s.False(rec.CreatedAt.IsZero())
}

func (s *HistoryRepoTestSuite) TestRecord_Error() {
	s.mock.ExpectExec("INSERT INTO prediction_history").WillReturnError(sql.ErrConnDone)

	err := s.repo.Record(context.Background(), s.record())
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *HistoryRepoTestSuite) TestList_Filtered() {
	rec := s.record()
	rows := sqlmock.NewRows(recordCols).AddRow(
		rec.ID.String(), "Tertiary", "Br-", "H2O", "Polar Protic", "Low", 25.0, "SN1",
		[]byte(`{"SN1":1}`), "2.20240101000000", "forest", true, 1.5, s.now,
	)
	s.mock.ExpectQuery(regexp.QuoteMeta("WHERE mechanism = $1 AND backend = $2 ORDER BY created_at DESC LIMIT $3")).
		WithArgs("SN1", "forest", 10).
		WillReturnRows(rows)

	got, err := s.repo.List(context.Background(), history.Query{Limit: 10, Mechanism: reaction.SN1, Backend: "forest"})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(rec.ID, got[0].ID)
	s.Equal(reaction.SN1, got[0].Mechanism)
	s.True(got[0].CacheHit)
	s.Equal(1500*time.Microsecond, got[0].Latency)
	s.InDelta(1.0, got[0].Probabilities[reaction.SN1], 1e-12)
}

func (s *HistoryRepoTestSuite) TestList_DefaultLimit() {
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM prediction_history ORDER BY created_at DESC LIMIT $1")).
		WithArgs(history.DefaultLimit).
		WillReturnRows(sqlmock.NewRows(recordCols))

	got, err := s.repo.List(context.Background(), history.Query{})
	s.NoError(err)
	s.Empty(got)
}

func (s *HistoryRepoTestSuite) TestList_BadID() {
	rows := sqlmock.NewRows(recordCols).AddRow(
		"not-a-uuid", "Tertiary", "Br-", "H2O", "Polar Protic", "Low", 25.0, "SN1",
		[]byte(`{}`), "v", "forest", false, 0.0, s.now,
	)
	s.mock.ExpectQuery("FROM prediction_history").WillReturnRows(rows)

	_, err := s.repo.List(context.Background(), history.Query{})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func (s *HistoryRepoTestSuite) TestStats() {
	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*), COALESCE(")).
		WillReturnRows(sqlmock.NewRows([]string{"count", "hits", "avg", "max"}).AddRow(int64(4), int64(1), 2.5, s.now))
	s.mock.ExpectQuery("GROUP BY mechanism").
		WillReturnRows(sqlmock.NewRows([]string{"mechanism", "count"}).AddRow("SN1", int64(3)).AddRow("E2", int64(1)))

	st, err := s.repo.Stats(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(4), st.Total)
	s.Equal(int64(1), st.CacheHits)
	s.InDelta(2.5, st.AvgLatencyMs, 1e-12)
	s.Require().NotNil(st.LastAt)
	s.True(s.now.Equal(*st.LastAt))
	s.Equal(map[reaction.Mechanism]int64{reaction.SN1: 3, reaction.E2: 1}, st.ByMechanism)
}

func (s *HistoryRepoTestSuite) TestStats_Empty() {
	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*), COALESCE(")).
		WillReturnRows(sqlmock.NewRows([]string{"count", "hits", "avg", "max"}).AddRow(int64(0), int64(0), 0.0, nil))
	s.mock.ExpectQuery("GROUP BY mechanism").
		WillReturnRows(sqlmock.NewRows([]string{"mechanism", "count"}))

	st, err := s.repo.Stats(context.Background())
	s.Require().NoError(err)
	s.Zero(st.Total)
	s.Nil(st.LastAt)
	s.Empty(st.ByMechanism)
}

func (s *HistoryRepoTestSuite) TestRecordRun() {
	run := &history.Run{
		ModelID: "m-1", Version: "2.x", Rows: 100, TrainRows: 80, TestRows: 20,
		Accuracy: 0.9, Duration: 2 * time.Second, CreatedAt: s.now,
	}
	s.mock.ExpectExec("INSERT INTO training_runs").
		WithArgs("m-1", "2.x", 100, 80, 20, 0.9, 2000.0, s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.RecordRun(context.Background(), run))
}

func (s *HistoryRepoTestSuite) TestListRuns() {
	s.mock.ExpectQuery("FROM training_runs ORDER BY created_at DESC").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"model_id", "version", "rows", "train_rows", "test_rows", "accuracy", "duration_ms", "created_at"}).
			AddRow("m-1", "2.x", 100, 80, 20, 0.9, 2000.0, s.now))

	runs, err := s.repo.ListRuns(context.Background(), 5)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal("m-1", runs[0].ModelID)
	s.Equal(2*time.Second, runs[0].Duration)
}

func TestHistoryRepoTestSuite(t *testing.T) {
	suite.Run(t, new(HistoryRepoTestSuite))
}
