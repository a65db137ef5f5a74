package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// Reaction is one set of reaction conditions.  Field names follow the
// dataset columns.
type Reaction struct {
	SubstrateDegree string   `json:"Substrate_Degree"`
	LeavingGroup    string   `json:"Leaving_Group"`
	Nucleophile     string   `json:"Nucleophile"`
	SolventType     string   `json:"Solvent_Type"`
	StericHindrance string   `json:"Steric_Hindrance"`
	Temperature     *float64 `json:"Temperature"`
}

// Celsius returns a Temperature value.
func Celsius(t float64) *float64 { return &t }

// Prediction is the response of Predict.
type Prediction struct {
	ID            string             `json:"id"`
	Mechanism     string             `json:"mechanism"`
	Probabilities map[string]float64 `json:"probabilities"`
	ModelVersion  string             `json:"model_version"`
	Backend       string             `json:"backend"`
	Rule          string             `json:"rule,omitempty"`
	CacheHit      bool               `json:"cache_hit"`
	LatencyMs     float64            `json:"latency_ms"`
}

// RuleEvaluation is the response of EvaluateRules.
type RuleEvaluation struct {
	Descriptor    Reaction           `json:"descriptor"`
	Mechanism     string             `json:"mechanism"`
	Rule          string             `json:"rule"`
	Rationale     string             `json:"rationale"`
	Probabilities map[string]float64 `json:"probabilities"`
}

type LeavingGroup struct {
	Name    string `json:"name"`
	Quality string `json:"quality"`
}

type Nucleophile struct {
	Name      string `json:"name"`
	Strength  string `json:"strength"`
	Hindrance string `json:"hindrance"`
}

// Catalog lists the accepted value of every reaction field.
type Catalog struct {
	SubstrateDegrees []string       `json:"substrate_degrees"`
	LeavingGroups    []LeavingGroup `json:"leaving_groups"`
	Nucleophiles     []Nucleophile  `json:"nucleophiles"`
	SolventTypes     []string       `json:"solvent_types"`
	Hindrances       []string       `json:"steric_hindrances"`
	Mechanisms       []string       `json:"mechanisms"`
	Temperature      struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"temperature"`
}

// ModelMetadata describes a trained classifier.
type ModelMetadata struct {
	ModelID      string             `json:"model_id"`
	ModelName    string             `json:"model_name"`
	Version      string             `json:"version"`
	Architecture string             `json:"architecture"`
	TrainedAt    time.Time          `json:"trained_at"`
	Rows         int                `json:"rows"`
	Features     []string           `json:"features"`
	Classes      []string           `json:"classes"`
	Metrics      map[string]float64 `json:"metrics"`
}

// ModelInfo is the response of Model.  Metadata is nil for the rules
// backend.
type ModelInfo struct {
	Backend  string         `json:"backend"`
	Metadata *ModelMetadata `json:"metadata,omitempty"`
}

// HistoryRecord is one logged prediction.
type HistoryRecord struct {
	ID              string             `json:"id"`
	SubstrateDegree string             `json:"substrate_degree"`
	LeavingGroup    string             `json:"leaving_group"`
	Nucleophile     string             `json:"nucleophile"`
	SolventType     string             `json:"solvent_type"`
	StericHindrance string             `json:"steric_hindrance"`
	Temperature     float64            `json:"temperature"`
	Mechanism       string             `json:"mechanism"`
	Probabilities   map[string]float64 `json:"probabilities"`
	ModelVersion    string             `json:"model_version"`
	Backend         string             `json:"backend"`
	CacheHit        bool               `json:"cache_hit"`
	CreatedAt       time.Time          `json:"created_at"`
}

// HistoryQuery filters History.  Zero fields are not sent.
type HistoryQuery struct {
	Limit     int
	Mechanism string
	Backend   string
}

func (q HistoryQuery) encode() string {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Mechanism != "" {
		v.Set("mechanism", q.Mechanism)
	}
	if q.Backend != "" {
		v.Set("backend", q.Backend)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// Stats aggregates the prediction log.
type Stats struct {
	Total         int64            `json:"total"`
	CacheHits     int64            `json:"cache_hits"`
	CacheHitRatio float64          `json:"cache_hit_ratio"`
	ByMechanism   map[string]int64 `json:"by_mechanism"`
	AvgLatencyMs  float64          `json:"avg_latency_ms"`
	LastAt        *time.Time       `json:"last_at,omitempty"`
}

// Health is the response of Health.
type Health struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Components map[string]struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Error   string `json:"error,omitempty"`
	} `json:"components,omitempty"`
}

const apiPrefix = "/api/v1"

// Predict classifies r with the server's configured backend.
func (c *Client) Predict(ctx context.Context, r Reaction) (*Prediction, error) {
	var out Prediction
	if err := c.post(ctx, apiPrefix+"/predict", r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EvaluateRules classifies r with the rule engine only.
func (c *Client) EvaluateRules(ctx context.Context, r Reaction) (*RuleEvaluation, error) {
	var out RuleEvaluation
	if err := c.post(ctx, apiPrefix+"/rules/evaluate", r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Catalog(ctx context.Context) (*Catalog, error) {
	var out Catalog
	if err := c.get(ctx, apiPrefix+"/catalog", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Model(ctx context.Context) (*ModelInfo, error) {
	var out ModelInfo
	if err := c.get(ctx, apiPrefix+"/model", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists logged predictions, newest first.
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]HistoryRecord, error) {
	var out struct {
		Records []HistoryRecord `json:"records"`
	}
	if err := c.get(ctx, apiPrefix+"/history"+q.encode(), &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.get(ctx, apiPrefix+"/history/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health calls /healthz.  A degraded server answers 503 and is reported as
// an *APIError.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.get(ctx, "/healthz", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
