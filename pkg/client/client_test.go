package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemPredict/internal/application/prediction"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	chttp "github.com/turtacn/ChemPredict/internal/interfaces/http"
	"github.com/turtacn/ChemPredict/internal/interfaces/http/handlers"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

func fastRetry() Option { return WithRetryWait(time.Millisecond, 2*time.Millisecond) }

// newRulesServer serves the real router over the rule engine.
func newRulesServer(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := prediction.NewService(mechanism.NewRulePredictor(), mechanism.BackendRules)
	srv := httptest.NewServer(chttp.NewRouter(chttp.RouterConfig{
		PredictionHandler: handlers.NewPredictionHandler(svc),
		HealthHandler:     handlers.NewHealthHandler("test"),
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/", fastRetry())
	require.NoError(t, err)
	return c
}

func newStubServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, fastRetry())
	require.NoError(t, err)
	return c
}

func tertiaryAt(t float64) Reaction {
	return Reaction{
		SubstrateDegree: "Tertiary",
		LeavingGroup:    "Br-",
		Nucleophile:     "H2O",
		SolventType:     "Polar Protic",
		StericHindrance: "Low",
		Temperature:     Celsius(t),
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Equal(t, "chempredict-go/"+Version, c.userAgent)

	for _, bad := range []string{"", "ftp://host", "no-scheme"} {
		_, err := NewClient(bad)
		assert.ErrorIs(t, err, ErrInvalidConfig, bad)
	}
}

func TestOptions(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	c, err := NewClient("https://api.example.com",
		WithHTTPClient(hc),
		WithRetryMax(1),
		WithRetryWait(10*time.Millisecond, time.Millisecond),
		WithUserAgent("ua"),
		WithLogger(nil),
	)
	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, 1, c.retryMax)
	assert.Equal(t, 10*time.Millisecond, c.retryWaitMin)
	assert.Equal(t, 5*time.Second, c.retryWaitMax)
	assert.Equal(t, "ua", c.userAgent)
	assert.NotNil(t, c.logger)
}

func TestPredict_Rules(t *testing.T) {
	c := newRulesServer(t)

	p, err := c.Predict(context.Background(), tertiaryAt(25))
	require.NoError(t, err)
	assert.Equal(t, "SN1", p.Mechanism)
	assert.Equal(t, mechanism.BackendRules, p.Backend)
	assert.InDelta(t, 1.0, p.Probabilities["SN1"], 1e-9)
	assert.NotEmpty(t, p.ID)

	p, err = c.Predict(context.Background(), tertiaryAt(80))
	require.NoError(t, err)
	assert.Equal(t, "E1", p.Mechanism)
}

func TestEvaluateRules(t *testing.T) {
	c := newRulesServer(t)
	ev, err := c.EvaluateRules(context.Background(), tertiaryAt(25))
	require.NoError(t, err)
	assert.Equal(t, "SN1", ev.Mechanism)
	assert.NotEmpty(t, ev.Rule)
	assert.NotEmpty(t, ev.Rationale)
	assert.Equal(t, "Tertiary", ev.Descriptor.SubstrateDegree)
}

func TestPredict_UnknownCategory(t *testing.T) {
	c := newRulesServer(t)
	r := tertiaryAt(25)
	r.SubstrateDegree = "Quaternary"

	_, err := c.Predict(context.Background(), r)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.True(t, apiErr.IsUnknownCategory())
	assert.Equal(t, "Substrate_Degree", apiErr.Field)
	assert.Contains(t, apiErr.Accepted, "Tertiary")
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestPredict_MissingTemperature(t *testing.T) {
	c := newRulesServer(t)
	r := tertiaryAt(25)
	r.Temperature = nil

	_, err := c.Predict(context.Background(), r)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsInvalidInput())
	assert.Contains(t, apiErr.Message, "Temperature")
}

func TestCatalogAndModel(t *testing.T) {
	c := newRulesServer(t)
	ctx := context.Background()

	cat, err := c.Catalog(ctx)
	require.NoError(t, err)
	assert.Contains(t, cat.SubstrateDegrees, "Tertiary")
	assert.Contains(t, cat.Mechanisms, "No Reaction")
	assert.Equal(t, 100.0, cat.Temperature.Max)
	assert.NotEmpty(t, cat.LeavingGroups)

	m, err := c.Model(ctx)
	require.NoError(t, err)
	assert.Equal(t, mechanism.BackendRules, m.Backend)
	assert.Nil(t, m.Metadata)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", h.Version)
}

func TestHistory_Disabled(t *testing.T) {
	c := newRulesServer(t)
	_, err := c.History(context.Background(), HistoryQuery{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestHistory_Query(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/history", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "SN2", r.URL.Query().Get("mechanism"))
		assert.Empty(t, r.URL.Query().Get("backend"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[{"id":"a","mechanism":"SN2","backend":"forest"}],"count":1}`))
	})
	recs, err := c.History(context.Background(), HistoryQuery{Limit: 5, Mechanism: "SN2"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "SN2", recs[0].Mechanism)
	assert.Equal(t, "", HistoryQuery{}.encode())
}

func TestStats(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":4,"cache_hits":1,"cache_hit_ratio":0.25,"by_mechanism":{"SN1":4}}`))
	})
	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Total)
	assert.Equal(t, 0.25, st.CacheHitRatio)
	assert.Equal(t, int64(4), st.ByMechanism["SN1"])
}

func TestRetry_ServerError(t *testing.T) {
	var calls int32
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":"COMMON_001","message":"internal server error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"backend":"forest"}`))
	})
	m, err := c.Model(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "forest", m.Backend)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetry_Exhausted(t *testing.T) {
	var calls int32
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})
	_, err := c.Catalog(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestNoRetry_ArtifactMissing(t *testing.T) {
	var calls int32
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":"` + string(errors.ErrCodeArtifactMissing) + `","message":"model artifact not found","detail":"chemistry_model_v2.json"}`))
	})
	_, err := c.Predict(context.Background(), tertiaryAt(25))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsArtifactMissing())
	assert.Contains(t, apiErr.Error(), "chemistry_model_v2.json")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNoRetry_ClientError(t *testing.T) {
	var calls int32
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.Model(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestContextCancelled(t *testing.T) {
	c := newStubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.retryWaitMin, c.retryWaitMax = time.Second, time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Catalog(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCalculateBackoff(t *testing.T) {
	c, err := NewClient("http://x", WithRetryWait(100*time.Millisecond, 300*time.Millisecond))
	require.NoError(t, err)
	b := c.calculateBackoff(1)
	assert.GreaterOrEqual(t, b, 100*time.Millisecond)
	assert.Less(t, b, 125*time.Millisecond)
	b = c.calculateBackoff(5)
	assert.GreaterOrEqual(t, b, 300*time.Millisecond)
	assert.Less(t, b, 375*time.Millisecond)
}
