package mechanism

import (
	"github.com/turtacn/ChemPredict/internal/domain/reaction"
	"github.com/turtacn/ChemPredict/internal/intelligence/forest"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Encoders holds one label encoder per categorical input column and one for
// the target mechanism.
type Encoders struct {
	Features map[string]*forest.LabelEncoder
	Target   *forest.LabelEncoder
}

// FitEncoders fits every encoder on the given categorical columns and target
// labels.  cols maps column name to that column's values in row order.
func FitEncoders(cols map[string][]string, targets []string) *Encoders {
	e := &Encoders{Features: make(map[string]*forest.LabelEncoder, len(reaction.CategoricalColumns))}
	for _, c := range reaction.CategoricalColumns {
		e.Features[c] = forest.NewLabelEncoder(c).Fit(cols[c])
	}
	e.Target = forest.NewLabelEncoder(reaction.ColTarget).Fit(targets)
	return e
}

// Vector encodes a row into the model's feature order (reaction.FeatureColumns):
// categorical codes followed by the raw temperature.
func (e *Encoders) Vector(cats map[string]string, temperature float64) ([]float64, error) {
	x := make([]float64, 0, len(reaction.FeatureColumns))
	for _, c := range reaction.CategoricalColumns {
		enc, ok := e.Features[c]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeArtifactCorrupt, "no encoder for column %s", c)
		}
		code, err := enc.Transform(cats[c])
		if err != nil {
			return nil, err
		}
		x = append(x, float64(code))
	}
	return append(x, temperature), nil
}

// Schema describes the feature layout produced by Vector for the forest.
func (e *Encoders) Schema() forest.Schema {
	cols := make([]forest.Column, 0, len(reaction.FeatureColumns))
	for _, c := range reaction.CategoricalColumns {
		cols = append(cols, forest.Column{Name: c, Values: e.Features[c].Classes})
	}
	cols = append(cols, forest.Column{Name: reaction.ColTemperature})
	return forest.Schema{Columns: cols, Target: reaction.ColTarget, Classes: e.Target.Classes}
}

// Mechanisms returns the target classes in code order.
func (e *Encoders) Mechanisms() []reaction.Mechanism {
	out := make([]reaction.Mechanism, len(e.Target.Classes))
	for i, c := range e.Target.Classes {
		out[i] = reaction.Mechanism(c)
	}
	return out
}

// Validate checks that every column has a sorted encoder and that every
// target class is a known mechanism.
func (e *Encoders) Validate() error {
	if e == nil || e.Target == nil || e.Target.Len() == 0 {
		return errors.New(errors.ErrCodeArtifactCorrupt, "target encoder is empty")
	}
	for _, c := range reaction.CategoricalColumns {
		enc, ok := e.Features[c]
		if !ok || enc.Len() == 0 {
			return errors.Newf(errors.ErrCodeArtifactCorrupt, "encoder for %s is missing", c)
		}
		if err := enc.Validate(); err != nil {
			return err
		}
	}
	if err := e.Target.Validate(); err != nil {
		return err
	}
	for _, m := range e.Mechanisms() {
		if !m.IsValid() {
			return errors.Newf(errors.ErrCodeArtifactCorrupt, "unknown target class %q", string(m))
		}
	}
	return nil
}

// encodersBlob is the wire form of the encoder artifact: column → classes.
type encodersBlob struct {
	ModelID string              `json:"model_id"`
	Columns map[string][]string `json:"columns"`
}

func (e *Encoders) blob(modelID string) encodersBlob {
	cols := make(map[string][]string, len(e.Features)+1)
	for c, enc := range e.Features {
		cols[c] = enc.Classes
	}
	cols[reaction.ColTarget] = e.Target.Classes
	return encodersBlob{ModelID: modelID, Columns: cols}
}

func (b encodersBlob) encoders() *Encoders {
	e := &Encoders{Features: make(map[string]*forest.LabelEncoder, len(reaction.CategoricalColumns))}
	for c, classes := range b.Columns {
		enc := &forest.LabelEncoder{Column: c, Classes: classes}
		if c == reaction.ColTarget {
			e.Target = enc
			continue
		}
		e.Features[c] = enc
	}
	return e
}
