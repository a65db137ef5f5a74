package redis

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	pkgerrors "github.com/turtacn/ChemPredict/pkg/errors"
)

type CacheTestSuite struct {
	suite.Suite
	client *Client
	mock   redismock.ClientMock
	cache  Cache
	log    logging.Logger
}

func (s *CacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	s.log = logging.NewNopLogger()
	s.client = NewClientFromUniversal(db, s.log)
	s.cache = NewRedisCache(s.client, s.log, WithPrefix("test:"), WithTTLJitter(0))
}

func (s *CacheTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

type testStruct struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func (s *CacheTestSuite) TestGet_CacheHit() {
	val := testStruct{Name: "John", Age: 30}
	bytes, _ := json.Marshal(val)
	s.mock.ExpectGet("test:key1").SetVal(string(bytes))

	var dest testStruct
	err := s.cache.Get(context.Background(), "key1", &dest)

	assert.NoError(s.T(), err)
	assert.Equal(s.T(), val, dest)
}

func (s *CacheTestSuite) TestGet_CacheMiss() {
	s.mock.ExpectGet("test:key1").RedisNil()

	var dest testStruct
	err := s.cache.Get(context.Background(), "key1", &dest)
	assert.ErrorIs(s.T(), err, ErrCacheMiss)
}

func (s *CacheTestSuite) TestGet_BadPayload() {
	s.mock.ExpectGet("test:key1").SetVal("{not json")

	var dest testStruct
	err := s.cache.Get(context.Background(), "key1", &dest)
	assert.True(s.T(), pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func (s *CacheTestSuite) TestGet_RedisError() {
	s.mock.ExpectGet("test:key1").SetErr(assert.AnError)

	var dest testStruct
	err := s.cache.Get(context.Background(), "key1", &dest)
	assert.True(s.T(), pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func (s *CacheTestSuite) TestSet() {
	val := testStruct{Name: "Jane", Age: 25}
	bytes, _ := json.Marshal(val)
	s.mock.ExpectSet("test:key1", bytes, time.Minute).SetVal("OK")

	err := s.cache.Set(context.Background(), "key1", val, time.Minute)
	assert.NoError(s.T(), err)
}

func (s *CacheTestSuite) TestSet_DefaultTTL() {
	bytes, _ := json.Marshal(1)
	s.mock.ExpectSet("test:n", bytes, 24*time.Hour).SetVal("OK")

	assert.NoError(s.T(), s.cache.Set(context.Background(), "n", 1, 0))
}

func (s *CacheTestSuite) TestDelete() {
	s.mock.ExpectDel("test:a", "test:b").SetVal(2)
	assert.NoError(s.T(), s.cache.Delete(context.Background(), "a", "b"))
	assert.NoError(s.T(), s.cache.Delete(context.Background()))
}

func (s *CacheTestSuite) TestDeleteByPrefix() {
	s.mock.ExpectScan(0, "test:prediction:*", 100).SetVal([]string{"test:prediction:a"}, 7)
	s.mock.ExpectDel("test:prediction:a").SetVal(1)
	s.mock.ExpectScan(7, "test:prediction:*", 100).SetVal([]string{"test:prediction:b", "test:prediction:c"}, 0)
	s.mock.ExpectDel("test:prediction:b", "test:prediction:c").SetVal(2)

	n, err := s.cache.DeleteByPrefix(context.Background(), "prediction:")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(3), n)
}

func (s *CacheTestSuite) TestClosedClient() {
	assert.NoError(s.T(), s.client.Close())
	assert.NoError(s.T(), s.client.Close())

	var dest testStruct
	err := s.cache.Get(context.Background(), "key1", &dest)
	assert.True(s.T(), pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
	assert.ErrorIs(s.T(), s.cache.Ping(context.Background()), ErrClientClosed)
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func TestJitterTTL(t *testing.T) {
	c := &redisCache{jitter: 0.1}
	for i := 0; i < 50; i++ {
		got := c.jitterTTL(time.Hour)
		assert.GreaterOrEqual(t, got, 54*time.Minute)
		assert.LessOrEqual(t, got, 66*time.Minute)
	}
	assert.Equal(t, time.Duration(0), c.jitterTTL(0))
}

// ─────────────────────────────────────────────────────────────────────────────
// Prediction cache
// ─────────────────────────────────────────────────────────────────────────────

type PredictionCacheTestSuite struct {
	suite.Suite
	mock  redismock.ClientMock
	pc    *PredictionCache
	input mechanism.Input
	pred  *mechanism.Prediction
}

func (s *PredictionCacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	client := NewClientFromUniversal(db, nil)
	cache := NewRedisCache(client, nil, WithPrefix("cp:"), WithTTLJitter(0))
	s.pc = NewPredictionCache(cache, time.Hour, nil)

	temp := 25.0
	s.input = mechanism.Input{
		SubstrateDegree: "Tertiary",
		LeavingGroup:    "Br-",
		Nucleophile:     "H2O",
		SolventType:     "Polar Protic",
		StericHindrance: "Low",
		Temperature:     &temp,
	}
	s.pred = &mechanism.Prediction{
		Mechanism:     reaction.SN1,
		Probabilities: map[reaction.Mechanism]float64{reaction.SN1: 1},
		ModelVersion:  "2.20240101000000",
		Backend:       mechanism.BackendForest,
	}
}

func (s *PredictionCacheTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *PredictionCacheTestSuite) TestMissThenStore() {
	key := "cp:" + PredictionKey(mechanism.BackendForest, s.input)
	payload, _ := json.Marshal(s.pred)
	s.mock.ExpectGet(key).RedisNil()
	s.mock.ExpectSet(key, payload, time.Hour).SetVal("OK")

	var calls int32
	got, hit, err := s.pc.GetOrPredict(context.Background(), mechanism.BackendForest, s.input,
		func(context.Context) (*mechanism.Prediction, error) {
			atomic.AddInt32(&calls, 1)
			return s.pred, nil
		})
	s.Require().NoError(err)
	s.False(hit)
	s.Equal(reaction.SN1, got.Mechanism)
	s.Equal(int32(1), calls)
}

func (s *PredictionCacheTestSuite) TestHit() {
	key := "cp:" + PredictionKey(mechanism.BackendForest, s.input)
	payload, _ := json.Marshal(s.pred)
	s.mock.ExpectGet(key).SetVal(string(payload))

	got, hit, err := s.pc.GetOrPredict(context.Background(), mechanism.BackendForest, s.input,
		func(context.Context) (*mechanism.Prediction, error) {
			s.Fail("predictor must not run on a hit")
			return nil, nil
		})
	s.Require().NoError(err)
	s.True(hit)
	s.Equal(s.pred.ModelVersion, got.ModelVersion)
	s.InDelta(1.0, got.Probabilities[reaction.SN1], 1e-12)
}

func (s *PredictionCacheTestSuite) TestCacheFailureFallsThrough() {
	key := "cp:" + PredictionKey(mechanism.BackendForest, s.input)
	payload, _ := json.Marshal(s.pred)
	s.mock.ExpectGet(key).SetErr(assert.AnError)
	s.mock.ExpectSet(key, payload, time.Hour).SetErr(assert.AnError)

	got, hit, err := s.pc.GetOrPredict(context.Background(), mechanism.BackendForest, s.input,
		func(context.Context) (*mechanism.Prediction, error) { return s.pred, nil })
	s.Require().NoError(err)
	s.False(hit)
	s.Equal(reaction.SN1, got.Mechanism)
}

func (s *PredictionCacheTestSuite) TestPredictorErrorNotCached() {
	key := "cp:" + PredictionKey(mechanism.BackendForest, s.input)
	s.mock.ExpectGet(key).RedisNil()

	_, _, err := s.pc.GetOrPredict(context.Background(), mechanism.BackendForest, s.input,
		func(context.Context) (*mechanism.Prediction, error) {
			return nil, pkgerrors.ArtifactMissing("chemistry_model_v2.json")
		})
	s.True(pkgerrors.IsArtifactMissing(err))
}

func (s *PredictionCacheTestSuite) TestInvalidate() {
	s.mock.ExpectScan(0, "cp:prediction:*", 100).SetVal([]string{"cp:prediction:x"}, 0)
	s.mock.ExpectDel("cp:prediction:x").SetVal(1)

	n, err := s.pc.Invalidate(context.Background())
	s.NoError(err)
	s.Equal(int64(1), n)
}

func TestPredictionCacheTestSuite(t *testing.T) {
	suite.Run(t, new(PredictionCacheTestSuite))
}

func TestPredictionKey(t *testing.T) {
	a := mechanism.Input{SubstrateDegree: "Primary"}
	b := mechanism.Input{SubstrateDegree: "Secondary"}
	assert.NotEqual(t, PredictionKey("forest", a), PredictionKey("forest", b))
	assert.NotEqual(t, PredictionKey("forest", a), PredictionKey("rules", a))
	assert.Equal(t, PredictionKey("forest", a), PredictionKey("forest", a))
	assert.Contains(t, PredictionKey("rules", a), "prediction:rules:")
}
