package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ChemPredict/internal/application/prediction"
	"github.com/turtacn/ChemPredict/internal/domain/history"
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
)

// PredictionService is what the handlers need from prediction.Service.
type PredictionService interface {
	Predict(ctx context.Context, in mechanism.Input) (*prediction.Result, error)
	History(ctx context.Context, q history.Query) ([]*history.Record, error)
	Stats(ctx context.Context) (*history.Stats, error)
	Model(ctx context.Context) (*mechanism.Metadata, error)
	Backend() string
}

// PredictionHandler serves predictions, rule evaluations and the audit log.
type PredictionHandler struct {
	svc PredictionService
}

// NewPredictionHandler returns a handler over svc.
func NewPredictionHandler(svc PredictionService) *PredictionHandler {
	return &PredictionHandler{svc: svc}
}

// Predict handles POST /api/v1/predict.
func (h *PredictionHandler) Predict(c *gin.Context) {
	var in mechanism.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "request body must be a JSON object with the reaction fields", err)
		return
	}
	res, err := h.svc.Predict(c.Request.Context(), in)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RuleEvaluation is the response of POST /api/v1/rules/evaluate.
type RuleEvaluation struct {
	Descriptor    reaction.Descriptor            `json:"descriptor"`
	Mechanism     reaction.Mechanism             `json:"mechanism"`
	Rule          reaction.RuleID                `json:"rule"`
	Rationale     string                         `json:"rationale"`
	Probabilities map[reaction.Mechanism]float64 `json:"probabilities"`
}

// EvaluateRules handles POST /api/v1/rules/evaluate.  It answers from the
// rule engine regardless of the configured backend.
func (h *PredictionHandler) EvaluateRules(c *gin.Context) {
	var in mechanism.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "request body must be a JSON object with the reaction fields", err)
		return
	}
	d, err := in.Descriptor()
	if err != nil {
		writeAppError(c, err)
		return
	}
	dec := reaction.Evaluate(d)
	c.JSON(http.StatusOK, RuleEvaluation{
		Descriptor:    d,
		Mechanism:     dec.Mechanism,
		Rule:          dec.Rule,
		Rationale:     dec.Rationale,
		Probabilities: dec.Probabilities(),
	})
}

// ModelResponse describes the active model.
type ModelResponse struct {
	Backend  string              `json:"backend"`
	Metadata *mechanism.Metadata `json:"metadata,omitempty"`
}

// Model handles GET /api/v1/model.
func (h *PredictionHandler) Model(c *gin.Context) {
	if h.svc.Backend() == mechanism.BackendRules {
		c.JSON(http.StatusOK, ModelResponse{Backend: mechanism.BackendRules})
		return
	}
	meta, err := h.svc.Model(c.Request.Context())
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, ModelResponse{Backend: h.svc.Backend(), Metadata: meta})
}

// HistoryResponse is a page of the prediction log.
type HistoryResponse struct {
	Records []*history.Record `json:"records"`
	Count   int               `json:"count"`
}

// History handles GET /api/v1/history?limit=&mechanism=&backend=.
func (h *PredictionHandler) History(c *gin.Context) {
	var q history.Query
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer", err)
			return
		}
		q.Limit = n
	}
	if v := c.Query("mechanism"); v != "" {
		m, err := reaction.ParseMechanism(v)
		if err != nil {
			writeAppError(c, err)
			return
		}
		q.Mechanism = m
	}
	q.Backend = c.Query("backend")

	recs, err := h.svc.History(c.Request.Context(), q)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if recs == nil {
		recs = []*history.Record{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Records: recs, Count: len(recs)})
}

// StatsResponse adds the derived hit ratio to history.Stats.
type StatsResponse struct {
	*history.Stats
	CacheHitRatio float64 `json:"cache_hit_ratio"`
}

// Stats handles GET /api/v1/history/stats.
func (h *PredictionHandler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{Stats: st, CacheHitRatio: st.HitRatio()})
}

// Catalog handles GET /api/v1/catalog.
func Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, reaction.Snapshot())
}
