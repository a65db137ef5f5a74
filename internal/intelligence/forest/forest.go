// Package forest fits bagged ID3 decision-tree ensembles with golearn and
// exports them to a JSON node table that predicts without golearn.
package forest

import (
	"context"

	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/evaluation"
	"github.com/sjwhitworth/golearn/meta"
	"github.com/sjwhitworth/golearn/trees"
	"gonum.org/v1/gonum/floats"

	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Params configures the ensemble.
type Params struct {
	NEstimators int `json:"n_estimators"`
	// MaxFeatures is the number of input columns each tree is grown on; 0
	// selects every column.
	MaxFeatures int `json:"max_features"`
}

// DefaultParams returns 200 trees over every column.
func DefaultParams() Params {
	return Params{NEstimators: 200}
}

func (p Params) validate() error {
	switch {
	case p.NEstimators <= 0:
		return errors.InvalidInput("n_estimators must be positive")
	case p.MaxFeatures < 0:
		return errors.InvalidInput("max_features must not be negative")
	}
	return nil
}

// Forest is a fitted ensemble.  Trees vote; the class probabilities are the
// vote fractions.
type Forest struct {
	Params Params  `json:"params"`
	Schema Schema  `json:"schema"`
	Trees  []*Tree `json:"trees"`

	// model is the golearn ensemble, present only in the fitting process.
	model *meta.BaggedModel
}

// Fit grows p.NEstimators bootstrapped ID3 trees on train, each restricted
// to p.MaxFeatures randomly drawn columns, and exports them.
func Fit(ctx context.Context, train base.FixedDataGrid, s Schema, p Params) (f *Forest, err error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if _, rows := train.Size(); rows == 0 {
		return nil, errors.DatasetInvalid("no training rows")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTrainingFailed, "forest training aborted")
	}

	features := p.MaxFeatures
	if features == 0 || features > len(s.Columns) {
		features = len(s.Columns)
	}
	model := &meta.BaggedModel{RandomFeatures: features}
	for i := 0; i < p.NEstimators; i++ {
		model.AddModel(trees.NewID3DecisionTree(0))
	}

	// golearn reports most failures by panicking.
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, errors.Newf(errors.ErrCodeTrainingFailed, "forest training failed: %v", r)
		}
	}()
	model.Fit(train)
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTrainingFailed, "forest training aborted")
	}

	exp := newExporter(&s)
	out := make([]*Tree, len(model.Models))
	for i, m := range model.Models {
		id3, ok := m.(*trees.ID3DecisionTree)
		if !ok || id3.Root == nil {
			return nil, errors.Newf(errors.ErrCodeTrainingFailed, "member %d is not a fitted ID3 tree", i)
		}
		if out[i], err = exp.export(id3.Root); err != nil {
			return nil, err
		}
	}
	return &Forest{Params: p, Schema: s, Trees: out, model: model}, nil
}

// NClasses returns the number of target classes.
func (f *Forest) NClasses() int { return len(f.Schema.Classes) }

// NFeatures returns the number of input columns.
func (f *Forest) NFeatures() int { return len(f.Schema.Columns) }

// PredictProba returns the fraction of trees voting for each class.
func (f *Forest) PredictProba(x []float64) []float64 {
	out := make([]float64, f.NClasses())
	for _, t := range f.Trees {
		out[t.predict(&f.Schema, x)]++
	}
	if len(f.Trees) > 0 {
		floats.Scale(1/float64(len(f.Trees)), out)
	}
	return out
}

// Predict returns the most voted class code.  Ties go to the lowest code.
func (f *Forest) Predict(x []float64) int {
	return floats.MaxIdx(f.PredictProba(x))
}

// SplitShare returns, per column, the fraction of split nodes across all
// trees that test it.
func (f *Forest) SplitShare() []float64 {
	out := make([]float64, f.NFeatures())
	for _, t := range f.Trees {
		for i := range t.Nodes {
			if n := &t.Nodes[i]; !n.IsLeaf() {
				out[n.Feature]++
			}
		}
	}
	if s := floats.Sum(out); s > 0 {
		floats.Scale(1/s, out)
	}
	return out
}

// Evaluation scores a forest on held-out rows.
type Evaluation struct {
	Accuracy float64
	// Confusion counts [truth][predicted] in class code order.
	Confusion [][]int
}

// Evaluate predicts test with the golearn ensemble and scores it with
// golearn's confusion matrix.  Only a forest fitted in this process can be
// evaluated.
func (f *Forest) Evaluate(test base.FixedDataGrid) (*Evaluation, error) {
	if f.model == nil {
		return nil, errors.New(errors.ErrCodeTrainingFailed, "forest has no fitted ensemble to evaluate")
	}
	pred, err := f.model.Predict(test)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTrainingFailed, "forest evaluation failed")
	}
	cm, err := evaluation.GetConfusionMatrix(test, pred)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTrainingFailed, "failed to build confusion matrix")
	}

	classes := f.Schema.Classes
	confusion := make([][]int, len(classes))
	for i, truth := range classes {
		confusion[i] = make([]int, len(classes))
		for j, guess := range classes {
			confusion[i][j] = cm[truth][guess]
		}
	}
	return &Evaluation{Accuracy: evaluation.GetAccuracy(cm), Confusion: confusion}, nil
}

// Validate checks the structure of a deserialised forest.
func (f *Forest) Validate() error {
	if f == nil || len(f.Trees) == 0 {
		return errors.New(errors.ErrCodeArtifactCorrupt, "forest has no trees")
	}
	if f.NClasses() == 0 || f.NFeatures() == 0 {
		return errors.New(errors.ErrCodeArtifactCorrupt, "forest dimensions are invalid")
	}
	for ti, t := range f.Trees {
		if err := t.validate(&f.Schema, ti); err != nil {
			return err
		}
	}
	return nil
}
